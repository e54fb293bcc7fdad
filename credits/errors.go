/*
errors.go - Typed failure taxonomy for the credits ledger

PURPOSE:
  All error types in one place. Callers branch on error kind (via errors.Is
  or KindOf) instead of parsing message strings.

ERROR CATEGORIES:
  1. Validation errors - input outside configured bounds
  2. Not-found errors  - sender or recipient missing
  3. Funds errors      - balance below the required total
  Anything else is an internal error, reported with the underlying message.

SEE ALSO:
  - service.go: Produces these errors
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package credits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAccountNotFound is returned when the sender account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrRecipientNotFound is returned when no active account matches the
	// recipient reference.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrInsufficientFunds is returned when the sender balance is below
	// amount + service fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfTransfer is returned when sender and recipient are the same
	// account.
	ErrSelfTransfer = errors.New("cannot transfer credits to your own account")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError collects every violated input bound. Violations are
// joined into one human-readable message.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

// InsufficientFundsError reports both sides of a failed balance check so
// the caller can render a precise message.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// =============================================================================
// ERROR KINDS - Machine-readable classification for API envelopes
// =============================================================================

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindInternal          ErrorKind = "internal"
)

// KindOf classifies an error into its kind. Unrecognized errors are
// reported as internal.
func KindOf(err error) ErrorKind {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, ErrSelfTransfer):
		return KindValidation
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrRecipientNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	default:
		return KindInternal
	}
}

// IsNotFound returns true if the error indicates a missing account.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
