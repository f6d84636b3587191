// Package policy decides whether a caller may act on an owned resource.
package policy

import (
	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/errors"
)

// Authorize allows the action when no caller is present or when the caller
// matches owner case-insensitively.
func Authorize(caller string, present bool, owner string) error {
	if !present || caller == "" {
		return nil
	}
	if chain.SameAddress(caller, owner) {
		return nil
	}
	return errors.AuthorizationDenied("wallet does not own this resource").
		WithDetails("caller", chain.NormalizeAddress(caller))
}
