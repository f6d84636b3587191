// Package storagetest holds the behaviour every storage.Store backend must
// share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
)

const (
	Merchant = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	Payer    = "0x1111111111111111111111111111111111111111"
	Token    = "0x20c0000000000000000000000000000000000001"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) storage.Store

// NewInvoice returns a pending invoice with a fresh id.
func NewInvoice(createdAt time.Time) invoice.Invoice {
	id := uuid.NewString()
	return invoice.Invoice{
		ID:              id,
		MerchantAddress: Merchant,
		CustomerEmail:   "buyer@example.com",
		Amount:          "12.50",
		TokenAddress:    Token,
		Memo:            invoice.DefaultMemo(id),
		Status:          invoice.StatusPending,
		CreatedAt:       createdAt.UTC().Truncate(time.Microsecond),
		PaymentLink:     invoice.PaymentLink("http://localhost:5173", id),
		TempoChainID:    "42431",
		TempoRPC:        "https://rpc.moderato.tempo.xyz",
		StablecoinName:  invoice.DefaultStablecoinName,
		FeeSponsored:    true,
	}
}

// Run executes the shared store behaviour against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InvoiceRoundTrip", func(t *testing.T) { testInvoiceRoundTrip(t, newStore(t)) })
	t.Run("InvoiceNotFound", func(t *testing.T) { testInvoiceNotFound(t, newStore(t)) })
	t.Run("InvoiceListFilter", func(t *testing.T) { testInvoiceListFilter(t, newStore(t)) })
	t.Run("MarkPaidOverwrite", func(t *testing.T) { testMarkPaidOverwrite(t, newStore(t)) })
	t.Run("MarkPaidGuarded", func(t *testing.T) { testMarkPaidGuarded(t, newStore(t)) })
	t.Run("MarkPaidGuardedConcurrent", func(t *testing.T) { testMarkPaidGuardedConcurrent(t, newStore(t)) })
	t.Run("DeleteInvoice", func(t *testing.T) { testDeleteInvoice(t, newStore(t)) })
	t.Run("Contacts", func(t *testing.T) { testContacts(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { assert.NoError(t, newStore(t).Ping(context.Background())) })
}

func testInvoiceRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inv := NewInvoice(time.Now())
	expires := inv.CreatedAt.Add(24 * time.Hour)
	inv.ExpiresAt = &expires

	created, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, created.ID)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", got.Amount)
	assert.Equal(t, inv.MerchantAddress, got.MerchantAddress)
	assert.Equal(t, invoice.StatusPending, got.Status)
	assert.True(t, inv.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Nil(t, got.PaidAt)
	assert.Empty(t, got.TempoTxHash)
	assert.Empty(t, got.PayerAddress)
	assert.True(t, got.FeeSponsored)
	assert.Equal(t, invoice.DefaultStablecoinName, got.StablecoinName)
	assert.Equal(t, "42431", got.TempoChainID)
}

func testInvoiceNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.GetInvoice(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.DeleteInvoice(ctx, "missing"), storage.ErrNotFound)

	_, err = s.MarkInvoicePaid(ctx, "missing", invoice.Payment{TxHash: "0x1", PaidAt: time.Now()}, invoice.PolicyOverwrite)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testInvoiceListFilter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	older := NewInvoice(base)
	newer := NewInvoice(base.Add(time.Minute))
	other := NewInvoice(base.Add(2 * time.Minute))
	other.MerchantAddress = "0x2222222222222222222222222222222222222222"
	paidToUs := NewInvoice(base.Add(3 * time.Minute))
	paidToUs.MerchantAddress = "0x3333333333333333333333333333333333333333"

	for _, inv := range []invoice.Invoice{older, newer, other, paidToUs} {
		_, err := s.CreateInvoice(ctx, inv)
		require.NoError(t, err)
	}
	_, err := s.MarkInvoicePaid(ctx, paidToUs.ID, invoice.Payment{TxHash: "0xt", PayerAddress: Payer, PaidAt: time.Now()}, invoice.PolicyOverwrite)
	require.NoError(t, err)

	all, err := s.ListInvoices(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, paidToUs.ID, all[0].ID)
	assert.Equal(t, older.ID, all[3].ID)

	mine, err := s.ListInvoices(ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	payer, err := s.ListInvoices(ctx, Payer)
	require.NoError(t, err)
	require.Len(t, payer, 1)
	assert.Equal(t, paidToUs.ID, payer[0].ID)

	none, err := s.ListInvoices(ctx, "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMarkPaidOverwrite(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inv := NewInvoice(time.Now())
	_, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	first := time.Now().UTC().Truncate(time.Microsecond)
	paid, err := s.MarkInvoicePaid(ctx, inv.ID, invoice.Payment{TxHash: "0xfirst", PayerAddress: Payer, PaidAt: first}, invoice.PolicyOverwrite)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "0xfirst", paid.TempoTxHash)

	second := first.Add(time.Minute)
	again, err := s.MarkInvoicePaid(ctx, inv.ID, invoice.Payment{TxHash: "0xsecond", PaidAt: second}, invoice.PolicyOverwrite)
	require.NoError(t, err)
	assert.Equal(t, "0xsecond", again.TempoTxHash)
	assert.Empty(t, again.PayerAddress)

	stored, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xsecond", stored.TempoTxHash)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, second.Equal(*stored.PaidAt))
}

func testMarkPaidGuarded(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inv := NewInvoice(time.Now())
	_, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	_, err = s.MarkInvoicePaid(ctx, inv.ID, invoice.Payment{TxHash: "0xfirst", PaidAt: time.Now()}, invoice.PolicyGuarded)
	require.NoError(t, err)

	_, err = s.MarkInvoicePaid(ctx, inv.ID, invoice.Payment{TxHash: "0xsecond", PaidAt: time.Now()}, invoice.PolicyGuarded)
	assert.ErrorIs(t, err, storage.ErrAlreadyPaid)

	stored, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xfirst", stored.TempoTxHash)
}

func testMarkPaidGuardedConcurrent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inv := NewInvoice(time.Now())
	_, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []string
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hash := "0x" + uuid.NewString()
			if _, err := s.MarkInvoicePaid(ctx, inv.ID, invoice.Payment{TxHash: hash, PaidAt: time.Now()}, invoice.PolicyGuarded); err == nil {
				mu.Lock()
				succeeded = append(succeeded, hash)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, succeeded, 1)
	stored, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, succeeded[0], stored.TempoTxHash)
}

func testDeleteInvoice(t *testing.T, s storage.Store) {
	ctx := context.Background()
	inv := NewInvoice(time.Now())
	_, err := s.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	require.NoError(t, s.DeleteInvoice(ctx, inv.ID))
	_, err = s.GetInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testContacts(t *testing.T, s storage.Store) {
	ctx := context.Background()

	alice, err := s.CreateContact(ctx, contact.Contact{
		ID:            uuid.NewString(),
		OwnerWallet:   Merchant,
		Name:          "Alice",
		WalletAddress: Payer,
		Email:         "Alice@Example.com",
		Phone:         "+15551234567",
	})
	require.NoError(t, err)

	_, err = s.CreateContact(ctx, contact.Contact{
		ID:            uuid.NewString(),
		OwnerWallet:   "0x2222222222222222222222222222222222222222",
		Name:          "Bob",
		WalletAddress: Payer,
		Email:         "alice@example.com",
	})
	require.NoError(t, err)

	got, err := s.GetContact(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, Payer, got.WalletAddress)

	all, err := s.ListContacts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.ListContacts(ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.ID, mine[0].ID)

	byEmail, err := s.FindContactByEmail(ctx, Merchant, "alice@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	byPhone, err := s.FindContactByPhone(ctx, Merchant, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byPhone.ID)

	_, err = s.FindContactByPhone(ctx, Merchant, "15551234567")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.FindContactByEmail(ctx, Merchant, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteContact(ctx, alice.ID))
	assert.ErrorIs(t, s.DeleteContact(ctx, alice.ID), storage.ErrNotFound)
	_, err = s.GetContact(ctx, alice.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	remaining, err := s.ListContacts(ctx, "")
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, c := range remaining {
		ids = append(ids, c.Name)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"Bob"}, ids)
}
