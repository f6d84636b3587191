// Package invoice defines the invoice record and its payment lifecycle.
package invoice

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

// PaymentPolicy controls what happens when an already paid invoice is paid
// again.
type PaymentPolicy string

const (
	// PolicyOverwrite replaces the previous payment details.
	PolicyOverwrite PaymentPolicy = "overwrite"
	// PolicyGuarded only allows PENDING -> PAID.
	PolicyGuarded PaymentPolicy = "guarded"
)

// DefaultStablecoinName is used when no name is configured.
const DefaultStablecoinName = "USD Stablecoin"

// TimeLayout is the fixed-width UTC layout used for stored timestamps, so
// that text ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// ErrAlreadyPaid is returned by MarkPaid under PolicyGuarded.
var ErrAlreadyPaid = errors.New("invoice already paid")

// Invoice is a merchant's request for payment.
type Invoice struct {
	ID              string
	MerchantAddress string
	CustomerEmail   string
	// Amount is the decimal text exactly as submitted.
	Amount         string
	TokenAddress   string
	Memo           string
	Status         Status
	CreatedAt      time.Time
	PaidAt         *time.Time
	ExpiresAt      *time.Time
	PaymentLink    string
	TempoTxHash    string
	PayerAddress   string
	TempoChainID   string
	TempoRPC       string
	StablecoinName string
	FeeSponsored   bool
}

// Payment is the on-chain settlement reported by the payer's client.
type Payment struct {
	TxHash       string
	PayerAddress string
	PaidAt       time.Time
}

// IsPaid reports whether the invoice reached the terminal state.
func (inv Invoice) IsPaid() bool {
	return inv.Status == StatusPaid
}

// MarkPaid applies the PENDING -> PAID transition. Under PolicyOverwrite a
// repeated payment replaces paidAt, tempoTxHash and payerAddress.
func (inv *Invoice) MarkPaid(p Payment, policy PaymentPolicy) error {
	if strings.TrimSpace(p.TxHash) == "" {
		return errors.New("txHash is required")
	}
	if policy == PolicyGuarded && inv.Status == StatusPaid {
		return ErrAlreadyPaid
	}

	paidAt := p.PaidAt.UTC()
	inv.Status = StatusPaid
	inv.PaidAt = &paidAt
	inv.TempoTxHash = p.TxHash
	inv.PayerAddress = p.PayerAddress
	return nil
}

// DefaultMemo derives a memo from the invoice id.
func DefaultMemo(id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return "INV-" + short
}

// PaymentLink builds the frontend link a payer opens.
func PaymentLink(frontendBaseURL, id string) string {
	return strings.TrimRight(frontendBaseURL, "/") + "/?invoiceId=" + id
}

// NormalizeAmount validates a decimal amount and returns it trimmed but
// otherwise verbatim. The parsed value is never what gets stored.
func NormalizeAmount(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", errors.New("amount is required")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return "", fmt.Errorf("invalid amount %q", text)
	}
	if d.Sign() <= 0 {
		return "", errors.New("amount must be positive")
	}
	return text, nil
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses stored timestamps. Values written with other RFC 3339
// precisions are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
