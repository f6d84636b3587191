package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AddressPrefix is the required prefix of a Tempo (EVM) address.
const AddressPrefix = "0x"

// IsValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
// Mixed case is accepted; checksums are not verified.
func IsValidAddress(s string) bool {
	return strings.HasPrefix(s, AddressPrefix) && common.IsHexAddress(s)
}

// NormalizeAddress returns the canonical lower-case form of s.
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
