// Package sqlstore implements storage.Store on PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/platform/migrations"
)

// Config configures the connection pool.
type Config struct {
	Dialect        migrations.Dialect
	DSN            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

// Store implements the storage interfaces on a SQL database. Every call is
// bounded by the connect timeout.
type Store struct {
	db      *sqlx.DB
	dialect migrations.Dialect
	timeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// New wraps an open handle. The handle's driver name must be "postgres" or
// "sqlite3" so placeholders are rebound correctly.
func New(db *sqlx.DB, dialect migrations.Dialect, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Store{db: db, dialect: dialect, timeout: timeout}
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	driver, dsn := "postgres", cfg.DSN
	if cfg.Dialect == migrations.SQLite {
		driver, dsn = "sqlite3", sqliteDSN(cfg.DSN)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.Dialect == migrations.SQLite {
		// one writer at a time; concurrent connections only trade for SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	store := New(db, cfg.Dialect, cfg.ConnectTimeout)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000"
}

// Migrate creates or upgrades the schema.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return migrations.Apply(ctx, s.db.DB, s.dialect)
}

func (s *Store) Kind() string {
	if s.dialect == migrations.SQLite {
		return "SQLite"
	}
	return "PostgreSQL"
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

// --- InvoiceStore -----------------------------------------------------------

const invoiceColumns = `id, merchant_address, customer_email, amount, token_address, memo, status,
	created_at, paid_at, expires_at, payment_link, tempo_tx_hash, payer_address,
	tempo_chain_id, tempo_rpc, stablecoin_name, fee_sponsored`

func (s *Store) CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := toInvoiceRow(inv)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :merchant_address, :customer_email, :amount, :token_address, :memo, :status,
			:created_at, :paid_at, :expires_at, :payment_link, :tempo_tx_hash, :payer_address,
			:tempo_chain_id, :tempo_rpc, :stablecoin_name, :fee_sponsored)
	`, row)
	if err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (invoice.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var row invoiceRow
	if err := s.db.GetContext(ctx, &row, s.q(`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`), id); err != nil {
		return invoice.Invoice{}, notFound(err)
	}
	return row.toInvoice()
}

func (s *Store) ListInvoices(ctx context.Context, wallet string) ([]invoice.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		rows []invoiceRow
		err  error
	)
	if wallet != "" {
		err = s.db.SelectContext(ctx, &rows, s.q(`
			SELECT `+invoiceColumns+` FROM invoices
			WHERE LOWER(merchant_address) = LOWER(?) OR LOWER(payer_address) = LOWER(?)
			ORDER BY created_at DESC
		`), wallet, wallet)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, err
	}

	result := make([]invoice.Invoice, 0, len(rows))
	for _, row := range rows {
		inv, err := row.toInvoice()
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM invoices WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkInvoicePaid reads, transitions and writes the invoice in one
// transaction. Postgres locks the row; SQLite runs on a single connection.
func (s *Store) MarkInvoicePaid(ctx context.Context, id string, payment invoice.Payment, policy invoice.PaymentPolicy) (invoice.Invoice, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return invoice.Invoice{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	if s.dialect == migrations.Postgres {
		query += ` FOR UPDATE`
	}

	var row invoiceRow
	if err := tx.GetContext(ctx, &row, tx.Rebind(query), id); err != nil {
		return invoice.Invoice{}, notFound(err)
	}
	inv, err := row.toInvoice()
	if err != nil {
		return invoice.Invoice{}, err
	}

	if err := inv.MarkPaid(payment, policy); err != nil {
		return invoice.Invoice{}, err
	}

	update := `UPDATE invoices SET status = ?, paid_at = ?, tempo_tx_hash = ?, payer_address = ? WHERE id = ?`
	if policy == invoice.PolicyGuarded {
		update += ` AND COALESCE(status, 'PENDING') = 'PENDING'`
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(update),
		string(inv.Status), invoice.FormatTime(*inv.PaidAt), inv.TempoTxHash, inv.PayerAddress, id)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return invoice.Invoice{}, storage.ErrAlreadyPaid
	}

	if err := tx.Commit(); err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

// --- ContactStore -----------------------------------------------------------

const contactColumns = `id, owner_wallet, name, wallet_address, email, phone`

func (s *Store) CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (:id, :owner_wallet, :name, :wallet_address, :email, :phone)
	`, toContactRow(c))
	if err != nil {
		return contact.Contact{}, err
	}
	return c, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (contact.Contact, error) {
	return s.getContact(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
}

func (s *Store) ListContacts(ctx context.Context, owner string) ([]contact.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var (
		rows []contactRow
		err  error
	)
	if owner != "" {
		err = s.db.SelectContext(ctx, &rows, s.q(`SELECT `+contactColumns+` FROM contacts WHERE LOWER(owner_wallet) = LOWER(?)`), owner)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT `+contactColumns+` FROM contacts`)
	}
	if err != nil {
		return nil, err
	}

	result := make([]contact.Contact, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toContact())
	}
	return result, nil
}

func (s *Store) FindContactByEmail(ctx context.Context, owner, email string) (contact.Contact, error) {
	return s.getContact(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE LOWER(owner_wallet) = LOWER(?) AND LOWER(email) = LOWER(?)
		LIMIT 1
	`, owner, email)
}

func (s *Store) FindContactByPhone(ctx context.Context, owner, phone string) (contact.Contact, error) {
	return s.getContact(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE LOWER(owner_wallet) = LOWER(?) AND phone = ?
		LIMIT 1
	`, owner, phone)
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, s.q(`DELETE FROM contacts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) getContact(ctx context.Context, query string, args ...interface{}) (contact.Contact, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var row contactRow
	if err := s.db.GetContext(ctx, &row, s.q(query), args...); err != nil {
		return contact.Contact{}, notFound(err)
	}
	return row.toContact(), nil
}
