package middleware

import (
	"context"
	"net/http"

	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/httputil"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
)

// WalletHeader carries the caller's claimed wallet address. The claim is
// trusted as-is; no signature proves ownership of the address.
const WalletHeader = "X-Wallet-Address"

// WalletAuthMiddleware attaches the claimed caller address to the request
// context and requires it on mutating methods.
type WalletAuthMiddleware struct {
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewWalletAuthMiddleware creates the wallet guard.
func NewWalletAuthMiddleware(logger *logging.Logger, m *metrics.Metrics) *WalletAuthMiddleware {
	return &WalletAuthMiddleware{logger: logger, metrics: m}
}

// Handler returns the middleware handler.
func (m *WalletAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := chain.NormalizeAddress(r.Header.Get(WalletHeader))

		if caller == "" {
			if isMutating(r.Method) {
				m.respondError(w, r, errors.AuthenticationRequired(WalletHeader+" header required"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := logging.WithCallerAddress(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *WalletAuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, serviceErr *errors.ServiceError) {
	httputil.WriteServiceError(w, r, serviceErr)

	m.logger.LogSecurityEvent(r.Context(), "wallet_header_missing", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": serviceErr.HTTPStatus,
	})
	if m.metrics != nil {
		m.metrics.RecordAuthRejected("missing_wallet_header")
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// CallerAddress returns the lower-cased claimed address, if the request
// carried one.
func CallerAddress(ctx context.Context) (string, bool) {
	caller := logging.GetCallerAddress(ctx)
	return caller, caller != ""
}
