package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type bucketEntry struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	windowStart time.Time
	lastSeen    time.Time
}

// TokenBucket hands each identifier a full bucket of Requests tokens at the
// start of its window. The bucket trickles one token per Window, so it
// never refills inside the window it was issued for; a fresh bucket
// replaces it once Window has elapsed. At most Requests calls are admitted
// per window.
type TokenBucket struct {
	cfg     Config
	limit   rate.Limit
	buckets *lru.Cache[string, *bucketEntry]
	nowFunc func() time.Time
}

// NewTokenBucket creates a token bucket limiter.
func NewTokenBucket(cfg Config) (*TokenBucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	buckets, err := lru.New[string, *bucketEntry](cfg.MaxClients)
	if err != nil {
		return nil, err
	}

	return &TokenBucket{
		cfg:     cfg,
		limit:   rate.Every(cfg.Window),
		buckets: buckets,
		nowFunc: time.Now,
	}, nil
}

// Allow takes a token for key if one is available.
func (t *TokenBucket) Allow(_ context.Context, key string) (Decision, error) {
	b := t.bucket(key)
	now := t.nowFunc()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen = now
	if b.limiter == nil || now.Sub(b.windowStart) >= t.cfg.Window {
		b.limiter = rate.NewLimiter(t.limit, t.cfg.Requests)
		b.windowStart = now
	}

	if b.limiter.AllowN(now, 1) {
		return Decision{
			Allowed:   true,
			Limit:     t.cfg.Requests,
			Remaining: int(b.limiter.TokensAt(now)),
		}, nil
	}

	r := b.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{
		Allowed:    false,
		Limit:      t.cfg.Requests,
		RetryAfter: delay,
	}, nil
}

func (t *TokenBucket) bucket(key string) *bucketEntry {
	if b, ok := t.buckets.Get(key); ok {
		return b
	}
	fresh := &bucketEntry{}
	if prev, ok, _ := t.buckets.PeekOrAdd(key, fresh); ok {
		return prev
	}
	return fresh
}

// Sweep removes buckets idle longer than IdleTTL. IdleTTL is at least
// Window, so a dropped bucket would have been replaced anyway.
func (t *TokenBucket) Sweep() int {
	now := t.nowFunc()
	removed := 0
	for _, key := range t.buckets.Keys() {
		b, ok := t.buckets.Peek(key)
		if !ok {
			continue
		}
		b.mu.Lock()
		idle := now.Sub(b.lastSeen) > t.cfg.IdleTTL
		b.mu.Unlock()
		if idle {
			t.buckets.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *TokenBucket) Len() int {
	return t.buckets.Len()
}
