// Package httpapi exposes the invoice and contact services over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/payme/internal/app"
	"github.com/R3E-Network/payme/internal/app/services/contacts"
	"github.com/R3E-Network/payme/internal/app/services/invoices"
	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/httputil"
	"github.com/R3E-Network/payme/internal/middleware"
)

// Options configures the optional endpoints.
type Options struct {
	// Metrics is served on /metrics when set.
	Metrics    http.Handler
	Diagnostic *Diagnostic
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app        *app.Application
	diagnostic *Diagnostic
}

// NewHandler returns a router exposing the REST API. Middleware is applied
// by the caller.
func NewHandler(application *app.Application, opts Options) *mux.Router {
	h := &handler{app: application, diagnostic: opts.Diagnostic}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/diagnostic", h.diagnose).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/invoices", h.createInvoice).Methods(http.MethodPost)
	r.HandleFunc("/invoices", h.listInvoices).Methods(http.MethodGet)
	r.HandleFunc("/invoices/{id}", h.getInvoice).Methods(http.MethodGet)
	r.HandleFunc("/invoices/{id}", h.deleteInvoice).Methods(http.MethodDelete)
	r.HandleFunc("/invoices/{id}/pay", h.payInvoice).Methods(http.MethodPost)

	r.HandleFunc("/contacts/lookup", h.lookupContact).Methods(http.MethodGet)
	r.HandleFunc("/contacts", h.listContacts).Methods(http.MethodGet)
	r.HandleFunc("/contacts", h.createContact).Methods(http.MethodPost)
	r.HandleFunc("/contacts/{id}", h.deleteContact).Methods(http.MethodDelete)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- invoices ---------------------------------------------------------------

func (h *handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var payload createInvoiceRequest
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	amount, ok := rawText(payload.Amount)
	if !ok {
		httputil.WriteServiceError(w, r, errors.Validation("amount must be a decimal string or number"))
		return
	}
	sponsored, ok := rawFlag(payload.FeeSponsored)
	if !ok {
		httputil.WriteServiceError(w, r, errors.Validation("feeSponsored must be a boolean"))
		return
	}

	inv, err := h.app.Invoices.Create(r.Context(), invoices.CreateInput{
		MerchantAddress: payload.MerchantAddress,
		CustomerEmail:   payload.CustomerEmail,
		Amount:          amount,
		TokenAddress:    payload.TokenAddress,
		Memo:            payload.Memo,
		FeeSponsored:    sponsored,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInvoiceView(inv))
}

func (h *handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Invoices.List(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInvoiceViews(list))
}

func (h *handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.app.Invoices.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInvoiceView(inv))
}

func (h *handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Invoices.Delete(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

func (h *handler) payInvoice(w http.ResponseWriter, r *http.Request) {
	var payload payRequest
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	inv, err := h.app.Invoices.Pay(r.Context(), mux.Vars(r)["id"], invoices.PayInput{
		TxHash:       payload.TxHash,
		PayerAddress: payload.PayerAddress,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInvoiceView(inv))
}

// --- contacts ---------------------------------------------------------------

func (h *handler) listContacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.app.Contacts.List(r.Context(), r.URL.Query().Get("wallet"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toContactViews(list))
}

func (h *handler) lookupContact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, found, err := h.app.Contacts.Lookup(r.Context(), q.Get("wallet"), q.Get("email"), q.Get("phone"))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	resp := lookupView{Found: found}
	if found {
		view := toContactView(c)
		resp.Contact = &view
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *handler) createContact(w http.ResponseWriter, r *http.Request) {
	var payload createContactRequest
	if !httputil.DecodeJSON(w, r, &payload) {
		return
	}

	walletAddress := payload.WalletAddress
	if walletAddress == "" {
		walletAddress = payload.Address
	}

	c, err := h.app.Contacts.Create(r.Context(), caller(r), contacts.CreateInput{
		OwnerWallet:   payload.OwnerWallet,
		Name:          payload.Name,
		WalletAddress: walletAddress,
		Email:         payload.Email,
		Phone:         payload.Phone,
	})
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toContactView(c))
}

func (h *handler) deleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Contacts.Delete(r.Context(), mux.Vars(r)["id"], caller(r)); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// caller returns the lower-cased address attached by the wallet guard, or "".
func caller(r *http.Request) string {
	address, _ := middleware.CallerAddress(r.Context())
	return address
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(errors.CodeNotFound), "route not found", nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}
