// Package contacts manages wallet owners' address books.
package contacts

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/google/uuid"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/errors"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/policy"
)

// CreateInput is a new address book entry.
type CreateInput struct {
	OwnerWallet   string
	Name          string
	WalletAddress string
	Email         string
	Phone         string
}

// Service manages contacts.
type Service struct {
	store storage.ContactStore
	log   *logging.Logger
}

// New constructs a contact service.
func New(store storage.ContactStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("contacts")
	}
	return &Service{store: store, log: log}
}

// Create stores a contact in ownerWallet's book. When caller is set it must
// match the owner.
func (s *Service) Create(ctx context.Context, caller string, in CreateInput) (contact.Contact, error) {
	if !chain.IsValidAddress(in.OwnerWallet) {
		return contact.Contact{}, errors.Validation("invalid owner wallet address")
	}
	if !chain.IsValidAddress(in.WalletAddress) {
		return contact.Contact{}, errors.Validation("invalid contact wallet address")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return contact.Contact{}, errors.MissingField("name")
	}
	if err := policy.Authorize(caller, caller != "", in.OwnerWallet); err != nil {
		s.log.LogSecurityEvent(ctx, "ownership_denied", map[string]interface{}{
			"resource": "contact",
			"owner":    chain.NormalizeAddress(in.OwnerWallet),
		})
		return contact.Contact{}, errors.AuthorizationDenied("wallet mismatch")
	}

	created, err := s.store.CreateContact(ctx, contact.Contact{
		ID:            uuid.NewString(),
		OwnerWallet:   strings.TrimSpace(in.OwnerWallet),
		Name:          name,
		WalletAddress: strings.TrimSpace(in.WalletAddress),
		Email:         strings.TrimSpace(in.Email),
		Phone:         strings.TrimSpace(in.Phone),
	})
	if err != nil {
		return contact.Contact{}, s.storeError(ctx, "create contact", err)
	}

	s.log.WithContext(ctx).WithField("contact_id", created.ID).Info("contact created")
	return created, nil
}

// List returns contacts, filtered to owner's book when owner is set.
func (s *Service) List(ctx context.Context, owner string) ([]contact.Contact, error) {
	list, err := s.store.ListContacts(ctx, strings.TrimSpace(owner))
	if err != nil {
		return nil, s.storeError(ctx, "list contacts", err)
	}
	return list, nil
}

// Lookup finds a contact in wallet's book by email (case-insensitive) or,
// when email is empty, by phone (exact). A miss is not an error.
func (s *Service) Lookup(ctx context.Context, wallet, email, phone string) (contact.Contact, bool, error) {
	wallet = strings.TrimSpace(wallet)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if wallet == "" {
		return contact.Contact{}, false, errors.Validation("wallet is required")
	}
	if email == "" && phone == "" {
		return contact.Contact{}, false, errors.Validation("email or phone required")
	}

	var (
		found contact.Contact
		err   error
	)
	if email != "" {
		found, err = s.store.FindContactByEmail(ctx, wallet, email)
	} else {
		found, err = s.store.FindContactByPhone(ctx, wallet, phone)
	}
	if stderrors.Is(err, storage.ErrNotFound) {
		return contact.Contact{}, false, nil
	}
	if err != nil {
		return contact.Contact{}, false, s.storeError(ctx, "lookup contact", err)
	}
	return found, true, nil
}

// Delete removes a contact owned by caller. An empty caller is not checked.
func (s *Service) Delete(ctx context.Context, id, caller string) error {
	c, err := s.store.GetContact(ctx, id)
	if err != nil {
		return s.storeError(ctx, "get contact", err)
	}
	if err := policy.Authorize(caller, caller != "", c.OwnerWallet); err != nil {
		s.log.LogSecurityEvent(ctx, "ownership_denied", map[string]interface{}{
			"resource": "contact",
			"id":       id,
		})
		return errors.AuthorizationDenied("not your contact")
	}

	if err := s.store.DeleteContact(ctx, id); err != nil {
		return s.storeError(ctx, "delete contact", err)
	}
	s.log.WithContext(ctx).WithField("contact_id", id).Info("contact deleted")
	return nil
}

func (s *Service) storeError(ctx context.Context, op string, err error) error {
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound("contact")
	}
	s.log.WithContext(ctx).WithError(err).WithField("op", op).Error("contact store failure")
	return errors.BackendUnavailable(op, err)
}
