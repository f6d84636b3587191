package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/app/storage/boltstore"
	"github.com/R3E-Network/payme/internal/app/storage/sqlstore"
	"github.com/R3E-Network/payme/internal/config"
	"github.com/R3E-Network/payme/internal/platform/migrations"
)

// errReadOnlyHost is reported when a serverless host has no DATABASE_URL and
// so no writable place for the SQLite file.
var errReadOnlyHost = errors.New("DATABASE_URL not set on a serverless host; local SQLite storage is unavailable")

// migrator is implemented by stores with a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

// openStore builds the record store selected by cfg.Database.Driver.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	db := cfg.Database
	switch db.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), nil
	case config.DriverBolt:
		return boltstore.Open(db.BoltPath, db.ConnectTimeout)
	case config.DriverPostgres:
		return sqlstore.Open(ctx, sqlstore.Config{
			Dialect:        migrations.Postgres,
			DSN:            db.URL,
			ConnectTimeout: db.ConnectTimeout,
			MaxOpenConns:   db.MaxOpenConns,
			MaxIdleConns:   db.MaxIdleConns,
		})
	case config.DriverSQLite:
		if cfg.Platform.Serverless() {
			return nil, errReadOnlyHost
		}
		return sqlstore.Open(ctx, sqlstore.Config{
			Dialect:        migrations.SQLite,
			DSN:            db.Path,
			ConnectTimeout: db.ConnectTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", db.Driver)
	}
}

// driverKind names a driver the way the stores report themselves.
func driverKind(driver string) string {
	switch driver {
	case config.DriverPostgres:
		return "PostgreSQL"
	case config.DriverSQLite:
		return "SQLite"
	case config.DriverBolt:
		return "BoltDB"
	case config.DriverMemory:
		return "Memory"
	}
	return driver
}

// offlineStore stands in for a backend that could not be opened. Every call
// fails with the open error and /diagnostic reports the cause.
type offlineStore struct {
	kind string
	err  error
}

func newOfflineStore(kind string, err error) *offlineStore {
	return &offlineStore{kind: kind, err: fmt.Errorf("store offline: %w", err)}
}

func (s *offlineStore) Kind() string               { return s.kind }
func (s *offlineStore) Ping(context.Context) error { return s.err }
func (s *offlineStore) Close() error               { return nil }

func (s *offlineStore) CreateInvoice(context.Context, invoice.Invoice) (invoice.Invoice, error) {
	return invoice.Invoice{}, s.err
}

func (s *offlineStore) GetInvoice(context.Context, string) (invoice.Invoice, error) {
	return invoice.Invoice{}, s.err
}

func (s *offlineStore) ListInvoices(context.Context, string) ([]invoice.Invoice, error) {
	return nil, s.err
}

func (s *offlineStore) DeleteInvoice(context.Context, string) error { return s.err }

func (s *offlineStore) MarkInvoicePaid(context.Context, string, invoice.Payment, invoice.PaymentPolicy) (invoice.Invoice, error) {
	return invoice.Invoice{}, s.err
}

func (s *offlineStore) CreateContact(context.Context, contact.Contact) (contact.Contact, error) {
	return contact.Contact{}, s.err
}

func (s *offlineStore) GetContact(context.Context, string) (contact.Contact, error) {
	return contact.Contact{}, s.err
}

func (s *offlineStore) ListContacts(context.Context, string) ([]contact.Contact, error) {
	return nil, s.err
}

func (s *offlineStore) FindContactByEmail(context.Context, string, string) (contact.Contact, error) {
	return contact.Contact{}, s.err
}

func (s *offlineStore) FindContactByPhone(context.Context, string, string) (contact.Contact, error) {
	return contact.Contact{}, s.err
}

func (s *offlineStore) DeleteContact(context.Context, string) error { return s.err }
