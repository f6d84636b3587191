package middleware

import (
	"net/http"
	"time"

	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/logging"
)

// TraceHeader carries the request trace id in both directions.
const TraceHeader = "X-Trace-ID"

// TracingMiddleware adds a trace ID to every request and logs its completion.
type TracingMiddleware struct {
	logger *logging.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *logging.Logger) *TracingMiddleware {
	return &TracingMiddleware{
		logger: logger,
	}
}

// Handler returns the tracing middleware handler
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" || len(traceID) > 128 {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		start := time.Now()
		req := r.WithContext(ctx)
		next.ServeHTTP(rw, req)

		// the wallet guard runs further in; pick the caller up from the header
		logCtx := ctx
		if caller := chain.NormalizeAddress(r.Header.Get(WalletHeader)); caller != "" {
			logCtx = logging.WithCallerAddress(ctx, caller)
		}
		m.logger.LogRequest(logCtx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
