package app

import (
	"github.com/R3E-Network/payme/internal/app/services/contacts"
	"github.com/R3E-Network/payme/internal/app/services/invoices"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Invoices storage.InvoiceStore
	Contacts storage.ContactStore
}

// Application ties the domain services together.
type Application struct {
	log *logging.Logger

	Invoices *invoices.Service
	Contacts *contacts.Service
}

// New builds an application over the provided stores. m may be nil.
func New(stores Stores, opts invoices.Options, log *logging.Logger, m *metrics.Metrics) *Application {
	if log == nil {
		log = logging.NewDefault("app")
	}

	if stores.Invoices == nil || stores.Contacts == nil {
		mem := storage.NewMemory()
		if stores.Invoices == nil {
			stores.Invoices = mem
		}
		if stores.Contacts == nil {
			stores.Contacts = mem
		}
	}

	return &Application{
		log:      log,
		Invoices: invoices.New(stores.Invoices, opts, log, m),
		Contacts: contacts.New(stores.Contacts, log),
	}
}
