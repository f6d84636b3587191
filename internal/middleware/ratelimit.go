// Package middleware provides the HTTP request pipeline: panic recovery,
// tracing, metrics, CORS, rate limiting and the wallet guard.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/httputil"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
	"github.com/R3E-Network/payme/internal/ratelimit"
)

// RateLimiter admits requests per client IP.
type RateLimiter struct {
	limiter    ratelimit.Limiter
	algorithm  string
	window     string
	trustProxy bool
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// RateLimiterOptions configures the middleware.
type RateLimiterOptions struct {
	Algorithm string
	// Window is rendered in 429 details, e.g. "60s".
	Window            string
	TrustProxyHeaders bool
	Metrics           *metrics.Metrics
}

// NewRateLimiter wraps limiter as HTTP middleware.
func NewRateLimiter(limiter ratelimit.Limiter, logger *logging.Logger, opts RateLimiterOptions) *RateLimiter {
	return &RateLimiter{
		limiter:    limiter,
		algorithm:  opts.Algorithm,
		window:     opts.Window,
		trustProxy: opts.TrustProxyHeaders,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key := ClientIP(r, rl.trustProxy)
		decision, err := rl.limiter.Allow(r.Context(), key)
		if err != nil {
			// fail open
			rl.logger.WithContext(r.Context()).WithError(err).Warn("rate limiter unavailable, admitting request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited(rl.algorithm)
			}

			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			serviceErr := errors.RateLimitExceeded(decision.Limit, rl.window)
			httputil.WriteServiceError(w, r, serviceErr)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the identifier used for rate limiting. Forwarding headers
// are honoured only when the deployment sits behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				xff = xff[:idx]
			}
			if ip := strings.TrimSpace(xff); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
