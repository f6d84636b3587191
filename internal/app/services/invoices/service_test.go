package invoices

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
)

const (
	merchant = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	token    = "0x20c0000000000000000000000000000000000001"
	payer    = "0x1111111111111111111111111111111111111111"
	stranger = "0x2222222222222222222222222222222222222222"
)

func newService(t *testing.T, policy invoice.PaymentPolicy) (*Service, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	svc := New(store, Options{
		FrontendBaseURL: "https://pay.example.com",
		ChainID:         "42431",
		RPCURL:          "https://rpc.moderato.tempo.xyz",
		Policy:          policy,
	}, logging.NewNop(), metrics.New())
	return svc, store
}

func validInput() CreateInput {
	return CreateInput{
		MerchantAddress: merchant,
		CustomerEmail:   "buyer@example.com",
		Amount:          "12.50",
		TokenAddress:    token,
	}
}

func statusOf(err error) int {
	return errors.HTTPStatus(err)
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)

	inv, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "12.50", inv.Amount)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Equal(t, "INV-"+inv.ID[:8], inv.Memo)
	assert.Equal(t, "https://pay.example.com/?invoiceId="+inv.ID, inv.PaymentLink)
	assert.Equal(t, "42431", inv.TempoChainID)
	assert.Equal(t, "https://rpc.moderato.tempo.xyz", inv.TempoRPC)
	assert.Equal(t, invoice.DefaultStablecoinName, inv.StablecoinName)
	assert.Nil(t, inv.PaidAt)
	assert.Nil(t, inv.ExpiresAt)
	assert.Empty(t, inv.TempoTxHash)
}

func TestCreateKeepsMemoAndSetsExpiry(t *testing.T) {
	store := storage.NewMemory()
	svc := New(store, Options{TTL: time.Hour}, logging.NewNop(), nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	in := validInput()
	in.Memo = "  March rent "
	in.FeeSponsored = true
	inv, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "March rent", inv.Memo)
	assert.True(t, inv.FeeSponsored)
	require.NotNil(t, inv.ExpiresAt)
	assert.Equal(t, fixed.Add(time.Hour), *inv.ExpiresAt)
}

func TestCreateValidation(t *testing.T) {
	svc, store := newService(t, invoice.PolicyOverwrite)

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		detail string
	}{
		{"merchant", func(in *CreateInput) { in.MerchantAddress = "0x123" }, "invalid merchant address"},
		{"token", func(in *CreateInput) { in.TokenAddress = "not-an-address" }, "invalid token address"},
		{"amount empty", func(in *CreateInput) { in.Amount = "" }, "amount is required"},
		{"amount negative", func(in *CreateInput) { in.Amount = "-1" }, "amount must be positive"},
		{"amount text", func(in *CreateInput) { in.Amount = "ten" }, `invalid amount "ten"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, statusOf(err))
			assert.Equal(t, tc.detail, errors.GetServiceError(err).Message)
		})
	}

	list, err := store.ListInvoices(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
	assert.Equal(t, "invoice not found", errors.GetServiceError(err).Message)
}

func TestListFiltersByWallet(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	mine, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	other := validInput()
	other.MerchantAddress = stranger
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)

	list, err := svc.List(ctx, "  0xabcdef0123456789abcdef0123456789abcdef01 ")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteOwnership(t *testing.T) {
	svc, store := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	err = svc.Delete(ctx, inv.ID, stranger)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, statusOf(err))
	assert.Equal(t, "not your invoice", errors.GetServiceError(err).Message)

	_, err = store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err, "invoice must survive a denied delete")

	require.NoError(t, svc.Delete(ctx, inv.ID, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01"))
	_, err = store.GetInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = svc.Delete(ctx, inv.ID, merchant)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestDeleteWithoutCallerIsAllowed(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.NoError(t, svc.Delete(ctx, inv.ID, ""))
}

func TestPayScenario(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	paid, err := svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xabc", PayerAddress: payer})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, paid.Status)
	assert.Equal(t, "0xabc", paid.TempoTxHash)
	assert.Equal(t, payer, paid.PayerAddress)
	require.NotNil(t, paid.PaidAt)

	fetched, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, fetched.Status)
	assert.Equal(t, "12.50", fetched.Amount)

	byPayer, err := svc.List(ctx, payer)
	require.NoError(t, err)
	require.Len(t, byPayer, 1)
	assert.Equal(t, inv.ID, byPayer[0].ID)
}

func TestPayValidation(t *testing.T) {
	svc, store := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xabc", PayerAddress: "0xnothex"})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Equal(t, "invalid payer address", errors.GetServiceError(err).Message)

	_, err = svc.Pay(ctx, inv.ID, PayInput{TxHash: "  "})
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = svc.Pay(ctx, "missing", PayInput{TxHash: "0xabc"})
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	stored, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPending, stored.Status)
}

func TestPayTwiceOverwrites(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyOverwrite)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xfirst", PayerAddress: payer})
	require.NoError(t, err)
	second, err := svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xsecond"})
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusPaid, second.Status)
	assert.Equal(t, "0xsecond", second.TempoTxHash)
	assert.Empty(t, second.PayerAddress)
}

func TestPayTwiceGuardedConflicts(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyGuarded)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xfirst"})
	require.NoError(t, err)
	_, err = svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xsecond"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	fetched, err := svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xfirst", fetched.TempoTxHash)
}

func TestPayGuardedConcurrent(t *testing.T) {
	svc, _ := newService(t, invoice.PolicyGuarded)
	ctx := context.Background()

	inv, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Pay(ctx, inv.ID, PayInput{TxHash: "0xabc"}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

type failingStore struct {
	mock.Mock
	storage.InvoiceStore
}

func (f *failingStore) ListInvoices(ctx context.Context, wallet string) ([]invoice.Invoice, error) {
	args := f.Called(ctx, wallet)
	list, _ := args.Get(0).([]invoice.Invoice)
	return list, args.Error(1)
}

func (f *failingStore) CreateInvoice(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	args := f.Called(ctx, inv)
	return invoice.Invoice{}, args.Error(1)
}

func TestStoreFailureIsBackendUnavailable(t *testing.T) {
	store := &failingStore{}
	store.On("ListInvoices", mock.Anything, "").
		Return(nil, stderrors.New(`dial tcp: lookup postgres://user:secret@db`))
	store.On("CreateInvoice", mock.Anything, mock.AnythingOfType("invoice.Invoice")).
		Return(invoice.Invoice{}, stderrors.New("disk I/O error"))

	svc := New(store, Options{}, logging.NewNop(), nil)

	_, err := svc.List(context.Background(), "")
	require.Error(t, err)
	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, errors.CodeBackendUnavailable, se.Code)
	assert.Equal(t, http.StatusInternalServerError, se.HTTPStatus)
	assert.NotContains(t, se.Message, "secret")

	_, err = svc.Create(context.Background(), validInput())
	assert.True(t, errors.IsCode(err, errors.CodeBackendUnavailable))

	store.AssertExpectations(t)
}
