package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
)

// Memory is a thread-safe in-memory persistence layer implementing Store.
// It is intended for tests and ephemeral deployments.
type Memory struct {
	mu       sync.RWMutex
	seq      int64
	invoices map[string]memInvoice
	contacts map[string]memContact
}

type memInvoice struct {
	seq int64
	inv invoice.Invoice
}

type memContact struct {
	seq int64
	c   contact.Contact
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		invoices: make(map[string]memInvoice),
		contacts: make(map[string]memContact),
	}
}

func (m *Memory) Kind() string               { return "Memory" }
func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

// InvoiceStore implementation -------------------------------------------------

func (m *Memory) CreateInvoice(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if _, exists := m.invoices[inv.ID]; exists {
		return invoice.Invoice{}, fmt.Errorf("invoice %s already exists", inv.ID)
	}

	m.seq++
	m.invoices[inv.ID] = memInvoice{seq: m.seq, inv: cloneInvoice(inv)}
	return cloneInvoice(inv), nil
}

func (m *Memory) GetInvoice(_ context.Context, id string) (invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.invoices[id]
	if !ok {
		return invoice.Invoice{}, ErrNotFound
	}
	return cloneInvoice(entry.inv), nil
}

func (m *Memory) ListInvoices(_ context.Context, wallet string) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]memInvoice, 0, len(m.invoices))
	for _, entry := range m.invoices {
		if wallet != "" &&
			!strings.EqualFold(entry.inv.MerchantAddress, wallet) &&
			!strings.EqualFold(entry.inv.PayerAddress, wallet) {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.inv.CreatedAt.Equal(b.inv.CreatedAt) {
			return a.inv.CreatedAt.After(b.inv.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]invoice.Invoice, 0, len(entries))
	for _, entry := range entries {
		result = append(result, cloneInvoice(entry.inv))
	}
	return result, nil
}

func (m *Memory) DeleteInvoice(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *Memory) MarkInvoicePaid(_ context.Context, id string, payment invoice.Payment, policy invoice.PaymentPolicy) (invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.invoices[id]
	if !ok {
		return invoice.Invoice{}, ErrNotFound
	}

	updated := cloneInvoice(entry.inv)
	if err := updated.MarkPaid(payment, policy); err != nil {
		return invoice.Invoice{}, err
	}
	entry.inv = updated
	m.invoices[id] = entry
	return cloneInvoice(updated), nil
}

// ContactStore implementation -------------------------------------------------

func (m *Memory) CreateContact(_ context.Context, c contact.Contact) (contact.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := m.contacts[c.ID]; exists {
		return contact.Contact{}, fmt.Errorf("contact %s already exists", c.ID)
	}

	m.seq++
	m.contacts[c.ID] = memContact{seq: m.seq, c: c}
	return c, nil
}

func (m *Memory) GetContact(_ context.Context, id string) (contact.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.contacts[id]
	if !ok {
		return contact.Contact{}, ErrNotFound
	}
	return entry.c, nil
}

func (m *Memory) ListContacts(_ context.Context, owner string) ([]contact.Contact, error) {
	return m.findContacts(func(c contact.Contact) bool {
		return owner == "" || strings.EqualFold(c.OwnerWallet, owner)
	}), nil
}

func (m *Memory) FindContactByEmail(_ context.Context, owner, email string) (contact.Contact, error) {
	found := m.findContacts(func(c contact.Contact) bool {
		return strings.EqualFold(c.OwnerWallet, owner) && strings.EqualFold(c.Email, email)
	})
	if len(found) == 0 {
		return contact.Contact{}, ErrNotFound
	}
	return found[0], nil
}

func (m *Memory) FindContactByPhone(_ context.Context, owner, phone string) (contact.Contact, error) {
	found := m.findContacts(func(c contact.Contact) bool {
		return strings.EqualFold(c.OwnerWallet, owner) && c.Phone == phone
	})
	if len(found) == 0 {
		return contact.Contact{}, ErrNotFound
	}
	return found[0], nil
}

func (m *Memory) DeleteContact(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(m.contacts, id)
	return nil
}

// findContacts returns matches in insertion order.
func (m *Memory) findContacts(match func(contact.Contact) bool) []contact.Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]memContact, 0, len(m.contacts))
	for _, entry := range m.contacts {
		if match(entry.c) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]contact.Contact, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.c)
	}
	return result
}

func cloneInvoice(inv invoice.Invoice) invoice.Invoice {
	clone := inv
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		clone.PaidAt = &t
	}
	if inv.ExpiresAt != nil {
		t := *inv.ExpiresAt
		clone.ExpiresAt = &t
	}
	return clone
}
