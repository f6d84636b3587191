// Package invoices implements invoice creation, listing, deletion and the
// payment transition.
package invoices

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
	"github.com/R3E-Network/payme/internal/policy"
)

// Options carries the values snapshotted onto new invoices.
type Options struct {
	FrontendBaseURL string
	ChainID         string
	RPCURL          string
	StablecoinName  string
	// TTL sets expiresAt = createdAt + TTL when positive.
	TTL    time.Duration
	Policy invoice.PaymentPolicy
}

// CreateInput is a validated-on-create invoice request.
type CreateInput struct {
	MerchantAddress string
	CustomerEmail   string
	Amount          string
	TokenAddress    string
	Memo            string
	FeeSponsored    bool
}

// PayInput reports an on-chain settlement.
type PayInput struct {
	TxHash       string
	PayerAddress string
}

// Service manages invoices.
type Service struct {
	store   storage.InvoiceStore
	opts    Options
	log     *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New constructs an invoice service. m may be nil.
func New(store storage.InvoiceStore, opts Options, log *logging.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logging.NewDefault("invoices")
	}
	if opts.StablecoinName == "" {
		opts.StablecoinName = invoice.DefaultStablecoinName
	}
	if opts.Policy == "" {
		opts.Policy = invoice.PolicyOverwrite
	}
	return &Service{store: store, opts: opts, log: log, metrics: m, now: time.Now}
}

// Policy returns the active payment policy.
func (s *Service) Policy() invoice.PaymentPolicy {
	return s.opts.Policy
}

// Create validates the request and stores a PENDING invoice.
func (s *Service) Create(ctx context.Context, in CreateInput) (invoice.Invoice, error) {
	if !chain.IsValidAddress(in.MerchantAddress) {
		return invoice.Invoice{}, errors.Validation("invalid merchant address")
	}
	if !chain.IsValidAddress(in.TokenAddress) {
		return invoice.Invoice{}, errors.Validation("invalid token address")
	}
	amount, err := invoice.NormalizeAmount(in.Amount)
	if err != nil {
		return invoice.Invoice{}, errors.Validation(err.Error())
	}

	id := uuid.NewString()
	memo := strings.TrimSpace(in.Memo)
	if memo == "" {
		memo = invoice.DefaultMemo(id)
	}

	createdAt := s.now().UTC().Truncate(time.Microsecond)
	inv := invoice.Invoice{
		ID:              id,
		MerchantAddress: strings.TrimSpace(in.MerchantAddress),
		CustomerEmail:   strings.TrimSpace(in.CustomerEmail),
		Amount:          amount,
		TokenAddress:    strings.TrimSpace(in.TokenAddress),
		Memo:            memo,
		Status:          invoice.StatusPending,
		CreatedAt:       createdAt,
		PaymentLink:     invoice.PaymentLink(s.opts.FrontendBaseURL, id),
		TempoChainID:    s.opts.ChainID,
		TempoRPC:        s.opts.RPCURL,
		StablecoinName:  s.opts.StablecoinName,
		FeeSponsored:    in.FeeSponsored,
	}
	if s.opts.TTL > 0 {
		expiresAt := createdAt.Add(s.opts.TTL)
		inv.ExpiresAt = &expiresAt
	}

	created, err := s.store.CreateInvoice(ctx, inv)
	if err != nil {
		return invoice.Invoice{}, s.storeError(ctx, "create invoice", err)
	}

	s.log.WithContext(ctx).
		WithField("invoice_id", created.ID).
		WithField("merchant", chain.NormalizeAddress(created.MerchantAddress)).
		Info("invoice created")
	return created, nil
}

// List returns invoices newest first, filtered to wallet as merchant or
// payer when wallet is set.
func (s *Service) List(ctx context.Context, wallet string) ([]invoice.Invoice, error) {
	list, err := s.store.ListInvoices(ctx, strings.TrimSpace(wallet))
	if err != nil {
		return nil, s.storeError(ctx, "list invoices", err)
	}
	return list, nil
}

// Get fetches a single invoice.
func (s *Service) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return invoice.Invoice{}, s.storeError(ctx, "get invoice", err)
	}
	return inv, nil
}

// Delete removes an invoice owned by caller. An empty caller is not
// checked.
func (s *Service) Delete(ctx context.Context, id, caller string) error {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return s.storeError(ctx, "get invoice", err)
	}
	if err := policy.Authorize(caller, caller != "", inv.MerchantAddress); err != nil {
		s.log.LogSecurityEvent(ctx, "ownership_denied", map[string]interface{}{
			"resource": "invoice",
			"id":       id,
		})
		return errors.AuthorizationDenied("not your invoice")
	}

	if err := s.store.DeleteInvoice(ctx, id); err != nil {
		return s.storeError(ctx, "delete invoice", err)
	}
	s.log.WithContext(ctx).WithField("invoice_id", id).Info("invoice deleted")
	return nil
}

// Pay marks an invoice PAID. Any caller may confirm a payment.
func (s *Service) Pay(ctx context.Context, id string, in PayInput) (invoice.Invoice, error) {
	payer := strings.TrimSpace(in.PayerAddress)
	if payer != "" && !chain.IsValidAddress(payer) {
		return invoice.Invoice{}, errors.Validation("invalid payer address")
	}
	txHash := strings.TrimSpace(in.TxHash)
	if txHash == "" {
		return invoice.Invoice{}, errors.MissingField("txHash")
	}

	current, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return invoice.Invoice{}, s.storeError(ctx, "get invoice", err)
	}
	from := string(current.Status)

	paid, err := s.store.MarkInvoicePaid(ctx, id, invoice.Payment{
		TxHash:       txHash,
		PayerAddress: payer,
		PaidAt:       s.now(),
	}, s.opts.Policy)
	if err != nil {
		s.recordTransition(from, "rejected")
		return invoice.Invoice{}, s.storeError(ctx, "mark invoice paid", err)
	}

	outcome := "paid"
	if from == string(invoice.StatusPaid) {
		outcome = "overwritten"
		s.log.WithContext(ctx).
			WithField("invoice_id", id).
			Warn("payment overwrote an earlier settlement")
	}
	s.recordTransition(from, outcome)

	s.log.WithContext(ctx).
		WithField("invoice_id", id).
		WithField("tx_hash", txHash).
		Info("invoice paid")
	return paid, nil
}

func (s *Service) recordTransition(from, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordInvoiceTransition(from, string(invoice.StatusPaid), outcome)
	}
}

// storeError maps store failures onto the service taxonomy. Unknown
// failures are logged and surface as BackendUnavailable.
func (s *Service) storeError(ctx context.Context, op string, err error) error {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return errors.NotFound("invoice")
	case stderrors.Is(err, storage.ErrAlreadyPaid):
		return errors.Conflict("invoice already paid")
	case errors.GetServiceError(err) != nil:
		return err
	}
	s.log.WithContext(ctx).WithError(err).WithField("op", op).Error("invoice store failure")
	return errors.BackendUnavailable(op, err)
}
