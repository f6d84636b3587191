package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
)

type invoiceRow struct {
	ID              string         `db:"id"`
	MerchantAddress string         `db:"merchant_address"`
	CustomerEmail   sql.NullString `db:"customer_email"`
	Amount          string         `db:"amount"`
	TokenAddress    string         `db:"token_address"`
	Memo            string         `db:"memo"`
	Status          sql.NullString `db:"status"`
	CreatedAt       string         `db:"created_at"`
	PaidAt          sql.NullString `db:"paid_at"`
	ExpiresAt       sql.NullString `db:"expires_at"`
	PaymentLink     sql.NullString `db:"payment_link"`
	TempoTxHash     sql.NullString `db:"tempo_tx_hash"`
	PayerAddress    sql.NullString `db:"payer_address"`
	TempoChainID    sql.NullString `db:"tempo_chain_id"`
	TempoRPC        sql.NullString `db:"tempo_rpc"`
	StablecoinName  sql.NullString `db:"stablecoin_name"`
	FeeSponsored    sql.NullString `db:"fee_sponsored"`
}

func toInvoiceRow(inv invoice.Invoice) invoiceRow {
	return invoiceRow{
		ID:              inv.ID,
		MerchantAddress: inv.MerchantAddress,
		CustomerEmail:   text(inv.CustomerEmail),
		Amount:          inv.Amount,
		TokenAddress:    inv.TokenAddress,
		Memo:            inv.Memo,
		Status:          text(string(inv.Status)),
		CreatedAt:       invoice.FormatTime(inv.CreatedAt),
		PaidAt:          timestamp(inv.PaidAt),
		ExpiresAt:       timestamp(inv.ExpiresAt),
		PaymentLink:     text(inv.PaymentLink),
		TempoTxHash:     text(inv.TempoTxHash),
		PayerAddress:    text(inv.PayerAddress),
		TempoChainID:    text(inv.TempoChainID),
		TempoRPC:        text(inv.TempoRPC),
		StablecoinName:  text(inv.StablecoinName),
		FeeSponsored:    text(strconv.FormatBool(inv.FeeSponsored)),
	}
}

func (r invoiceRow) toInvoice() (invoice.Invoice, error) {
	createdAt, err := invoice.ParseTime(r.CreatedAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: created_at: %w", r.ID, err)
	}
	paidAt, err := parseNullTime(r.PaidAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: paid_at: %w", r.ID, err)
	}
	expiresAt, err := parseNullTime(r.ExpiresAt)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("invoice %s: expires_at: %w", r.ID, err)
	}

	status := invoice.Status(r.Status.String)
	if status == "" {
		status = invoice.StatusPending
	}
	name := r.StablecoinName.String
	if name == "" {
		name = invoice.DefaultStablecoinName
	}

	return invoice.Invoice{
		ID:              r.ID,
		MerchantAddress: r.MerchantAddress,
		CustomerEmail:   r.CustomerEmail.String,
		Amount:          r.Amount,
		TokenAddress:    r.TokenAddress,
		Memo:            r.Memo,
		Status:          status,
		CreatedAt:       createdAt,
		PaidAt:          paidAt,
		ExpiresAt:       expiresAt,
		PaymentLink:     r.PaymentLink.String,
		TempoTxHash:     r.TempoTxHash.String,
		PayerAddress:    r.PayerAddress.String,
		TempoChainID:    r.TempoChainID.String,
		TempoRPC:        r.TempoRPC.String,
		StablecoinName:  name,
		FeeSponsored:    r.FeeSponsored.String == "true",
	}, nil
}

type contactRow struct {
	ID            string         `db:"id"`
	OwnerWallet   string         `db:"owner_wallet"`
	Name          string         `db:"name"`
	WalletAddress string         `db:"wallet_address"`
	Email         sql.NullString `db:"email"`
	Phone         sql.NullString `db:"phone"`
}

func toContactRow(c contact.Contact) contactRow {
	return contactRow{
		ID:            c.ID,
		OwnerWallet:   c.OwnerWallet,
		Name:          c.Name,
		WalletAddress: c.WalletAddress,
		Email:         text(c.Email),
		Phone:         text(c.Phone),
	}
}

func (r contactRow) toContact() contact.Contact {
	return contact.Contact{
		ID:            r.ID,
		OwnerWallet:   r.OwnerWallet,
		Name:          r.Name,
		WalletAddress: r.WalletAddress,
		Email:         r.Email.String,
		Phone:         r.Phone.String,
	}
}

// text stores empty strings as empty text rather than NULL, matching the
// column defaults.
func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func timestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: invoice.FormatTime(*t), Valid: true}
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := invoice.ParseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
