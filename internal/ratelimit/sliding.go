package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// clientLog is the ordered admission history of one key.
type clientLog struct {
	mu       sync.Mutex
	times    []time.Time
	lastSeen time.Time
	evicted  atomic.Bool
}

// SlidingWindow is an in-process sliding log limiter. Keys are held in an
// LRU bounded by MaxClients; Sweep drops keys idle longer than IdleTTL.
type SlidingWindow struct {
	cfg     Config
	clients *lru.Cache[string, *clientLog]
	nowFunc func() time.Time
}

// NewSlidingWindow creates a sliding log limiter.
func NewSlidingWindow(cfg Config) (*SlidingWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	clients, err := lru.NewWithEvict[string, *clientLog](cfg.MaxClients, func(_ string, c *clientLog) {
		c.evicted.Store(true)
	})
	if err != nil {
		return nil, err
	}

	return &SlidingWindow{cfg: cfg, clients: clients, nowFunc: time.Now}, nil
}

// Allow records a request for key if it fits in the current window.
func (s *SlidingWindow) Allow(_ context.Context, key string) (Decision, error) {
	for {
		c := s.client(key)

		c.mu.Lock()
		if c.evicted.Load() {
			// swept between lookup and lock; pick up the replacement
			c.mu.Unlock()
			continue
		}
		d := s.admit(c, s.nowFunc())
		c.mu.Unlock()
		return d, nil
	}
}

// admit runs prune, count and record. c.mu must be held.
func (s *SlidingWindow) admit(c *clientLog, now time.Time) Decision {
	c.lastSeen = now

	cutoff := now.Add(-s.cfg.Window)
	i := 0
	for i < len(c.times) && !c.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(c.times, c.times[i:])
		c.times = c.times[:n]
	}

	if len(c.times) >= s.cfg.Requests {
		return Decision{
			Allowed:    false,
			Limit:      s.cfg.Requests,
			Remaining:  0,
			RetryAfter: c.times[0].Add(s.cfg.Window).Sub(now),
		}
	}

	c.times = append(c.times, now)
	return Decision{
		Allowed:   true,
		Limit:     s.cfg.Requests,
		Remaining: s.cfg.Requests - len(c.times),
	}
}

func (s *SlidingWindow) client(key string) *clientLog {
	if c, ok := s.clients.Get(key); ok {
		return c
	}
	fresh := &clientLog{}
	if prev, ok, _ := s.clients.PeekOrAdd(key, fresh); ok {
		return prev
	}
	return fresh
}

// Sweep removes keys whose last request is older than IdleTTL.
func (s *SlidingWindow) Sweep() int {
	now := s.nowFunc()
	removed := 0
	for _, key := range s.clients.Keys() {
		c, ok := s.clients.Peek(key)
		if !ok {
			continue
		}

		c.mu.Lock()
		idle := now.Sub(c.lastSeen) > s.cfg.IdleTTL
		if idle {
			c.evicted.Store(true)
		}
		c.mu.Unlock()

		if idle {
			s.clients.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *SlidingWindow) Len() int {
	return s.clients.Len()
}
