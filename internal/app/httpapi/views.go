package httpapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/payme/internal/app/domain/contact"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
)

// invoiceView is the camelCase wire form of an invoice. Unset timestamps
// render as null and unset strings as "".
type invoiceView struct {
	ID              string  `json:"id"`
	MerchantAddress string  `json:"merchantAddress"`
	CustomerEmail   string  `json:"customerEmail"`
	Amount          string  `json:"amount"`
	TokenAddress    string  `json:"tokenAddress"`
	Memo            string  `json:"memo"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"createdAt"`
	PaidAt          *string `json:"paidAt"`
	ExpiresAt       *string `json:"expiresAt"`
	PaymentLink     string  `json:"paymentLink"`
	TempoTxHash     string  `json:"tempoTxHash"`
	PayerAddress    string  `json:"payerAddress"`
	TempoChainID    string  `json:"tempoChainId"`
	TempoRPC        string  `json:"tempoRpc"`
	StablecoinName  string  `json:"stablecoinName"`
	FeeSponsored    bool    `json:"feeSponsored"`
}

func toInvoiceView(inv invoice.Invoice) invoiceView {
	return invoiceView{
		ID:              inv.ID,
		MerchantAddress: inv.MerchantAddress,
		CustomerEmail:   inv.CustomerEmail,
		Amount:          inv.Amount,
		TokenAddress:    inv.TokenAddress,
		Memo:            inv.Memo,
		Status:          string(inv.Status),
		CreatedAt:       invoice.FormatTime(inv.CreatedAt),
		PaidAt:          optionalTime(inv.PaidAt),
		ExpiresAt:       optionalTime(inv.ExpiresAt),
		PaymentLink:     inv.PaymentLink,
		TempoTxHash:     inv.TempoTxHash,
		PayerAddress:    inv.PayerAddress,
		TempoChainID:    inv.TempoChainID,
		TempoRPC:        inv.TempoRPC,
		StablecoinName:  inv.StablecoinName,
		FeeSponsored:    inv.FeeSponsored,
	}
}

func toInvoiceViews(list []invoice.Invoice) []invoiceView {
	out := make([]invoiceView, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvoiceView(inv))
	}
	return out
}

// contactView exposes wallet_address as "address".
type contactView struct {
	ID          string `json:"id"`
	OwnerWallet string `json:"ownerWallet"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

func toContactView(c contact.Contact) contactView {
	return contactView{
		ID:          c.ID,
		OwnerWallet: c.OwnerWallet,
		Name:        c.Name,
		Address:     c.WalletAddress,
		Email:       c.Email,
		Phone:       c.Phone,
	}
}

func toContactViews(list []contact.Contact) []contactView {
	out := make([]contactView, 0, len(list))
	for _, c := range list {
		out = append(out, toContactView(c))
	}
	return out
}

type lookupView struct {
	Found   bool         `json:"found"`
	Contact *contactView `json:"contact"`
}

type createInvoiceRequest struct {
	MerchantAddress string          `json:"merchantAddress"`
	CustomerEmail   string          `json:"customerEmail"`
	Amount          json.RawMessage `json:"amount"`
	TokenAddress    string          `json:"tokenAddress"`
	Memo            string          `json:"memo"`
	FeeSponsored    json.RawMessage `json:"feeSponsored"`
}

type payRequest struct {
	TxHash       string `json:"txHash"`
	PayerAddress string `json:"payerAddress"`
}

type createContactRequest struct {
	OwnerWallet   string `json:"ownerWallet"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	// Address is accepted as an alias of walletAddress.
	Address string `json:"address"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
}

// rawText returns a JSON string's contents or a JSON number's literal text.
// null and absent values yield "".
func rawText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", true
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// rawFlag accepts true/false or their string forms.
func rawFlag(raw json.RawMessage) (bool, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, true
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return false, false
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return parsed, true
}

func optionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := invoice.FormatTime(*t)
	return &s
}
