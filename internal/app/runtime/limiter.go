package runtime

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/payme/internal/config"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
	"github.com/R3E-Network/payme/internal/ratelimit"
)

// newLimiter builds the limiter named by cfg.Algorithm. The redis client is
// returned so the caller can close it on shutdown.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, *redis.Client, error) {
	limits := ratelimit.Config{
		Requests:   cfg.Requests,
		Window:     cfg.Window,
		MaxClients: cfg.MaxClients,
		IdleTTL:    cfg.IdleTTL,
	}

	switch cfg.Algorithm {
	case config.AlgorithmSliding, "":
		l, err := ratelimit.NewSlidingWindow(limits)
		return l, nil, err
	case config.AlgorithmToken:
		l, err := ratelimit.NewTokenBucket(limits)
		return l, nil, err
	case config.AlgorithmRedis:
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		l, err := ratelimit.NewRedisSlidingWindow(client, limits)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return l, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit algorithm %q", cfg.Algorithm)
	}
}

// sweepSchedule runs the idle-identifier sweep once per window.
func sweepSchedule(cfg config.RateLimitConfig) string {
	return "@every " + cfg.Window.String()
}

// newScheduler registers housekeeping jobs. Limiters without process-local
// state get no sweep job.
func newScheduler(cfg config.RateLimitConfig, limiter ratelimit.Limiter, log *logging.Logger, m *metrics.Metrics) (*cron.Cron, error) {
	cronLog := cron.PrintfLogger(log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	sweeper, ok := limiter.(ratelimit.Sweeper)
	if !ok {
		return c, nil
	}
	if _, err := c.AddFunc(sweepSchedule(cfg), func() { sweep(sweeper, log, m) }); err != nil {
		return nil, fmt.Errorf("schedule limiter sweep: %w", err)
	}
	return c, nil
}

func sweep(s ratelimit.Sweeper, log *logging.Logger, m *metrics.Metrics) int {
	n := s.Sweep()
	if m != nil {
		m.RecordLimiterSweep(n)
	}
	if n > 0 {
		log.WithField("evicted", n).Debug("rate limiter sweep")
	}
	return n
}
