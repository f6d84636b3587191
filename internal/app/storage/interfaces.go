package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyPaid is returned by a guarded payment on a PAID invoice.
var ErrAlreadyPaid = invoice.ErrAlreadyPaid

// InvoiceStore persists invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error)
	GetInvoice(ctx context.Context, id string) (invoice.Invoice, error)
	// ListInvoices returns invoices newest first. A non-empty wallet keeps
	// invoices where it is the merchant or the payer, compared
	// case-insensitively.
	ListInvoices(ctx context.Context, wallet string) ([]invoice.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	// MarkInvoicePaid applies the payment transition atomically and returns
	// the updated invoice.
	MarkInvoicePaid(ctx context.Context, id string, payment invoice.Payment, policy invoice.PaymentPolicy) (invoice.Invoice, error)
}

// ContactStore persists address book entries.
type ContactStore interface {
	CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error)
	GetContact(ctx context.Context, id string) (contact.Contact, error)
	// ListContacts filters by owner wallet, case-insensitively, when owner is
	// non-empty.
	ListContacts(ctx context.Context, owner string) ([]contact.Contact, error)
	// FindContactByEmail matches email case-insensitively within owner's book.
	FindContactByEmail(ctx context.Context, owner, email string) (contact.Contact, error)
	// FindContactByPhone matches phone exactly within owner's book.
	FindContactByPhone(ctx context.Context, owner, phone string) (contact.Contact, error)
	DeleteContact(ctx context.Context, id string) error
}

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the full record store used by the runtime.
type Store interface {
	InvoiceStore
	ContactStore
	Pinger
	// Kind names the backend for diagnostics, e.g. "PostgreSQL".
	Kind() string
	Close() error
}
