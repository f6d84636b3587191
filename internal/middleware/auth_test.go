package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
)

const testWallet = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"

func scrape(m *metrics.Metrics) string {
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func TestWalletAuth_MutatingWithoutHeader(t *testing.T) {
	logger := logging.New("test", "info", "json")
	m := metrics.New()
	mw := NewWalletAuthMiddleware(logger, m)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		called := false
		handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		req := httptest.NewRequest(method, "/invoices", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want %d", method, rr.Code, http.StatusUnauthorized)
		}
		if called {
			t.Errorf("%s handler should not run without wallet header", method)
		}
	}

	if body := scrape(m); !strings.Contains(body, `payme_auth_rejections_total{reason="missing_wallet_header"} 4`) {
		t.Errorf("auth rejections not recorded:\n%s", body)
	}
}

func TestWalletAuth_ReadWithoutHeader(t *testing.T) {
	mw := NewWalletAuthMiddleware(logging.New("test", "info", "json"), nil)

	var hasCaller bool
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasCaller = CallerAddress(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/invoices", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if hasCaller {
		t.Error("caller should be absent")
	}
}

func TestWalletAuth_LowerCasesHeader(t *testing.T) {
	mw := NewWalletAuthMiddleware(logging.New("test", "info", "json"), nil)

	var caller string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = CallerAddress(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/invoices", nil)
	req.Header.Set(WalletHeader, "  "+testWallet+" ")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusCreated)
	}
	if caller != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("caller = %q, want lower-cased address", caller)
	}
}

func TestWalletAuth_MalformedHeaderPassesThrough(t *testing.T) {
	mw := NewWalletAuthMiddleware(logging.New("test", "info", "json"), nil)

	var caller string
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ = CallerAddress(r.Context())
	}))

	req := httptest.NewRequest(http.MethodDelete, "/contacts/1", nil)
	req.Header.Set(WalletHeader, "NOT-AN-ADDRESS")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if caller != "not-an-address" {
		t.Errorf("caller = %q", caller)
	}
}
