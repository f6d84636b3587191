// Package ratelimit implements per-client request admission.
//
// Every limiter admits at most Requests calls per Window for each key.
// Keys never interfere with each other, and the check-and-record step for a
// single key is atomic.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Sweeper is implemented by limiters that hold per-key state in process.
type Sweeper interface {
	// Sweep drops idle keys and returns how many were removed.
	Sweep() int
}

// Config holds limiter settings.
type Config struct {
	Requests   int
	Window     time.Duration
	MaxClients int
	IdleTTL    time.Duration
}

// DefaultConfig returns 60 requests per minute for up to 10000 clients.
func DefaultConfig() Config {
	return Config{
		Requests:   60,
		Window:     time.Minute,
		MaxClients: 10000,
		IdleTTL:    5 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.Requests <= 0 {
		return fmt.Errorf("requests must be positive, got %d", c.Requests)
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxClients <= 0 {
		c.MaxClients = 10000
	}
	// an idle key may only be dropped once its whole log has expired
	if c.IdleTTL < c.Window {
		c.IdleTTL = c.Window
	}
	return c
}
