// Package boltstore provides a single-file embedded store backed by BoltDB.
// It suits single-node deployments that do not want an external database.
package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
)

var (
	invoicesBucket = []byte("invoices")
	contactsBucket = []byte("contacts")
)

// Store persists records as JSON values keyed by id.
type Store struct {
	db *bolt.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database file and ensures the buckets exist.
func Open(path string, timeout time.Duration) (*Store, error) {
	if path == "" {
		return nil, errors.New("bolt path not configured")
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{invoicesBucket, contactsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Kind() string { return "BoltDB" }

func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(invoicesBucket) == nil {
			return errors.New("invoices bucket missing")
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// invoiceRecord is the stored JSON form. Seq breaks createdAt ties.
type invoiceRecord struct {
	Seq             uint64  `json:"seq"`
	ID              string  `json:"id"`
	MerchantAddress string  `json:"merchant_address"`
	CustomerEmail   string  `json:"customer_email"`
	Amount          string  `json:"amount"`
	TokenAddress    string  `json:"token_address"`
	Memo            string  `json:"memo"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	PaidAt          *string `json:"paid_at"`
	ExpiresAt       *string `json:"expires_at"`
	PaymentLink     string  `json:"payment_link"`
	TempoTxHash     string  `json:"tempo_tx_hash"`
	PayerAddress    string  `json:"payer_address"`
	TempoChainID    string  `json:"tempo_chain_id"`
	TempoRPC        string  `json:"tempo_rpc"`
	StablecoinName  string  `json:"stablecoin_name"`
	FeeSponsored    bool    `json:"fee_sponsored"`
}

type contactRecord struct {
	Seq           uint64 `json:"seq"`
	ID            string `json:"id"`
	OwnerWallet   string `json:"owner_wallet"`
	Name          string `json:"name"`
	WalletAddress string `json:"wallet_address"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
}

// --- InvoiceStore -----------------------------------------------------------

func (s *Store) CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(invoicesBucket)
		if b.Get([]byte(inv.ID)) != nil {
			return fmt.Errorf("invoice %s already exists", inv.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, inv.ID, toInvoiceRecord(seq, inv))
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}

	var rec invoiceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(invoicesBucket), id, &rec)
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	return rec.toInvoice()
}

func (s *Store) ListInvoices(ctx context.Context, wallet string) ([]invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []invoiceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(invoicesBucket).ForEach(func(_, v []byte) error {
			var rec invoiceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if wallet != "" &&
				!strings.EqualFold(rec.MerchantAddress, wallet) &&
				!strings.EqualFold(rec.PayerAddress, wallet) {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// created_at is fixed-width text, so string order is time order.
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt > records[j].CreatedAt
		}
		return records[i].Seq > records[j].Seq
	})

	result := make([]invoice.Invoice, 0, len(records))
	for _, rec := range records {
		inv, err := rec.toInvoice()
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteKey(tx.Bucket(invoicesBucket), id)
	})
}

// MarkInvoicePaid runs inside a single read-write transaction; bolt allows
// one writer at a time.
func (s *Store) MarkInvoicePaid(ctx context.Context, id string, payment invoice.Payment, policy invoice.PaymentPolicy) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}

	var updated invoice.Invoice
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(invoicesBucket)

		var rec invoiceRecord
		if err := getJSON(b, id, &rec); err != nil {
			return err
		}
		inv, err := rec.toInvoice()
		if err != nil {
			return err
		}
		if err := inv.MarkPaid(payment, policy); err != nil {
			return err
		}

		updated = inv
		return putJSON(b, id, toInvoiceRecord(rec.Seq, inv))
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	return updated, nil
}

// --- ContactStore -----------------------------------------------------------

func (s *Store) CreateContact(ctx context.Context, c contact.Contact) (contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return contact.Contact{}, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(contactsBucket)
		if b.Get([]byte(c.ID)) != nil {
			return fmt.Errorf("contact %s already exists", c.ID)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, c.ID, contactRecord{
			Seq:           seq,
			ID:            c.ID,
			OwnerWallet:   c.OwnerWallet,
			Name:          c.Name,
			WalletAddress: c.WalletAddress,
			Email:         c.Email,
			Phone:         c.Phone,
		})
	})
	if err != nil {
		return contact.Contact{}, err
	}
	return c, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return contact.Contact{}, err
	}

	var rec contactRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(contactsBucket), id, &rec)
	})
	if err != nil {
		return contact.Contact{}, err
	}
	return rec.toContact(), nil
}

func (s *Store) ListContacts(ctx context.Context, owner string) ([]contact.Contact, error) {
	return s.findContacts(ctx, func(rec contactRecord) bool {
		return owner == "" || strings.EqualFold(rec.OwnerWallet, owner)
	})
}

func (s *Store) FindContactByEmail(ctx context.Context, owner, email string) (contact.Contact, error) {
	return first(s.findContacts(ctx, func(rec contactRecord) bool {
		return strings.EqualFold(rec.OwnerWallet, owner) && strings.EqualFold(rec.Email, email)
	}))
}

func (s *Store) FindContactByPhone(ctx context.Context, owner, phone string) (contact.Contact, error) {
	return first(s.findContacts(ctx, func(rec contactRecord) bool {
		return strings.EqualFold(rec.OwnerWallet, owner) && rec.Phone == phone
	}))
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return deleteKey(tx.Bucket(contactsBucket), id)
	})
}

// findContacts returns matches in insertion order.
func (s *Store) findContacts(ctx context.Context, match func(contactRecord) bool) ([]contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []contactRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(contactsBucket).ForEach(func(_, v []byte) error {
			var rec contactRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if match(rec) {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	result := make([]contact.Contact, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.toContact())
	}
	return result, nil
}

func first(found []contact.Contact, err error) (contact.Contact, error) {
	if err != nil {
		return contact.Contact{}, err
	}
	if len(found) == 0 {
		return contact.Contact{}, storage.ErrNotFound
	}
	return found[0], nil
}

// --- encoding ---------------------------------------------------------------

func putJSON(b *bolt.Bucket, id string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(id), data)
}

func getJSON(b *bolt.Bucket, id string, v interface{}) error {
	data := b.Get([]byte(id))
	if data == nil {
		return storage.ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func deleteKey(b *bolt.Bucket, id string) error {
	if b.Get([]byte(id)) == nil {
		return storage.ErrNotFound
	}
	return b.Delete([]byte(id))
}

func toInvoiceRecord(seq uint64, inv invoice.Invoice) invoiceRecord {
	return invoiceRecord{
		Seq:             seq,
		ID:              inv.ID,
		MerchantAddress: inv.MerchantAddress,
		CustomerEmail:   inv.CustomerEmail,
		Amount:          inv.Amount,
		TokenAddress:    inv.TokenAddress,
		Memo:            inv.Memo,
		Status:          string(inv.Status),
		CreatedAt:       invoice.FormatTime(inv.CreatedAt),
		PaidAt:          formatOptional(inv.PaidAt),
		ExpiresAt:       formatOptional(inv.ExpiresAt),
		PaymentLink:     inv.PaymentLink,
		TempoTxHash:     inv.TempoTxHash,
		PayerAddress:    inv.PayerAddress,
		TempoChainID:    inv.TempoChainID,
		TempoRPC:        inv.TempoRPC,
		StablecoinName:  inv.StablecoinName,
		FeeSponsored:    inv.FeeSponsored,
	}
}

func (r invoiceRecord) toInvoice() (invoice.Invoice, error) {
	createdAt, err := invoice.ParseTime(r.CreatedAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: created_at: %w", r.ID, err)
	}
	paidAt, err := parseOptional(r.PaidAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: paid_at: %w", r.ID, err)
	}
	expiresAt, err := parseOptional(r.ExpiresAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: expires_at: %w", r.ID, err)
	}

	status := invoice.Status(r.Status)
	if status == "" {
		status = invoice.StatusPending
	}

	return invoice.Invoice{
		ID:              r.ID,
		MerchantAddress: r.MerchantAddress,
		CustomerEmail:   r.CustomerEmail,
		Amount:          r.Amount,
		TokenAddress:    r.TokenAddress,
		Memo:            r.Memo,
		Status:          status,
		CreatedAt:       createdAt,
		PaidAt:          paidAt,
		ExpiresAt:       expiresAt,
		PaymentLink:     r.PaymentLink,
		TempoTxHash:     r.TempoTxHash,
		PayerAddress:    r.PayerAddress,
		TempoChainID:    r.TempoChainID,
		TempoRPC:        r.TempoRPC,
		StablecoinName:  r.StablecoinName,
		FeeSponsored:    r.FeeSponsored,
	}, nil
}

func (r contactRecord) toContact() contact.Contact {
	return contact.Contact{
		ID:            r.ID,
		OwnerWallet:   r.OwnerWallet,
		Name:          r.Name,
		WalletAddress: r.WalletAddress,
		Email:         r.Email,
		Phone:         r.Phone,
	}
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := invoice.FormatTime(*t)
	return &s
}

func parseOptional(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := invoice.ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
