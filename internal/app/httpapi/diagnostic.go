package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/httputil"
)

// ChainProber reports chain reachability.
type ChainProber interface {
	Probe(ctx context.Context) chain.Status
}

// StoreProbe is the subset of storage.Store the diagnostic needs.
type StoreProbe interface {
	storage.Pinger
	Kind() string
}

// Diagnostic describes what /diagnostic reports.
type Diagnostic struct {
	Store           StoreProbe
	URLProvided     bool
	Chain           ChainProber
	ChainID         string
	Vercel          bool
	FrontendBaseURL string
	Timeout         time.Duration
	// Secrets are redacted from reported errors, e.g. the database URL.
	Secrets []string
}

type databaseStatus struct {
	Type        string  `json:"type"`
	Connected   bool    `json:"connected"`
	Error       *string `json:"error"`
	URLProvided bool    `json:"urlProvided"`
}

type chainStatus struct {
	ChainID string `json:"chainId"`
	chain.Status
}

type environmentStatus struct {
	Vercel          bool   `json:"vercel"`
	FrontendBaseURL string `json:"frontendBaseUrl"`
}

type diagnosticView struct {
	Status      string            `json:"status"`
	Database    databaseStatus    `json:"database"`
	Chain       *chainStatus      `json:"chain,omitempty"`
	Environment environmentStatus `json:"environment"`
}

// diagnose always answers 200; failures are reported in the body.
func (h *handler) diagnose(w http.ResponseWriter, r *http.Request) {
	d := h.diagnostic
	if d == nil {
		d = &Diagnostic{}
	}
	httputil.WriteJSON(w, http.StatusOK, d.report(r.Context()))
}

func (d *Diagnostic) report(ctx context.Context) diagnosticView {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	view := diagnosticView{
		Status: "online",
		Environment: environmentStatus{
			Vercel:          d.Vercel,
			FrontendBaseURL: d.FrontendBaseURL,
		},
		Database: databaseStatus{URLProvided: d.URLProvided},
	}

	if d.Store == nil {
		msg := "store not configured"
		view.Database.Error = &msg
	} else {
		view.Database.Type = d.Store.Kind()
		if err := d.Store.Ping(ctx); err != nil {
			msg := d.redact(err.Error())
			view.Database.Error = &msg
		} else {
			view.Database.Connected = true
		}
	}

	if d.Chain != nil {
		status := d.Chain.Probe(ctx)
		status.Error = d.redact(status.Error)
		view.Chain = &chainStatus{ChainID: d.ChainID, Status: status}
	}
	return view
}

var credentialsInURL = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/@\s]+@`)

// redact strips configured secrets and URL credentials from msg.
func (d *Diagnostic) redact(msg string) string {
	for _, secret := range d.Secrets {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "[redacted]")
		}
	}
	return credentialsInURL.ReplaceAllString(msg, "${1}[redacted]@")
}
