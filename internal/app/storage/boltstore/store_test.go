package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/app/storage/boltstore"
	"github.com/R3E-Network/payme/internal/app/storage/storagetest"
)

func newTestStore(t *testing.T, path string) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(path, time.Second)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	return s
}

func TestBoltStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := newTestStore(t, filepath.Join(t.TempDir(), "payme.db"))
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payme.db")

	s := newTestStore(t, path)
	inv := storagetest.NewInvoice(time.Now())
	if _, err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newTestStore(t, path)
	defer reopened.Close()

	got, err := reopened.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Amount != inv.Amount || !got.CreatedAt.Equal(inv.CreatedAt) {
		t.Fatalf("reopened invoice = %+v, want %+v", got, inv)
	}
	if reopened.Kind() != "BoltDB" {
		t.Fatalf("Kind() = %q", reopened.Kind())
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "payme.db"))
	defer s.Close()

	inv := storagetest.NewInvoice(time.Now())
	if _, err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := s.CreateInvoice(ctx, inv); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "payme.db"))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ListInvoices(ctx, ""); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := boltstore.Open("", time.Second); err == nil {
		t.Fatal("expected error for empty path")
	}
}
