/*
Package credits implements the merchant credits ledger.

PURPOSE:
  Core domain for the back-office credits (wallet) system: accounts with
  decimal balances, an append-only transfer ledger, recipient resolution,
  configured transfer limits, and enriched transfer history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a platform user with a credits balance
  - TransferRecord: an immutable ledger entry for one transfer
  - HistoryEntry: a TransferRecord enriched for display
  - Limits: configured bounds on transfer amount and service fee

DESIGN PRINCIPLES:
  1. Precision: balances and amounts use decimal.Decimal, never float64
  2. Immutability: transfer records are created once, never updated
  3. Atomicity: both balance mutations and the ledger insert commit together

SEE ALSO:
  - service.go: Transfer, balance-check, and history operations
  - store.go: Persistence interfaces
  - errors.go: Typed failure taxonomy
*/
package credits

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT - Platform user with a credits balance
// =============================================================================

type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusPending   AccountStatus = "pending"
	StatusSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusSuspended:
		return true
	}
	return false
}

// Account is a platform user holding a credits balance.
// Balances are only mutated through Service.Transfer; account management
// flows (onboarding, suspension) live outside this package.
type Account struct {
	ID           int64
	MerchantCode string
	Name         string
	Email        string
	Phone        string
	Status       AccountStatus
	Balance      decimal.Decimal
	CreatedAt    time.Time
}

// DisplayName returns the account name, falling back to "User #<id>"
// when no name is on file.
func (a Account) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return fmt.Sprintf("User #%d", a.ID)
}

// =============================================================================
// TRANSFER RECORD - Immutable ledger entry
// =============================================================================

type TransferStatus string

// TransferCompleted is the only status a record can carry today: a record
// exists iff its transfer committed. No pending/failed states are modeled.
const TransferCompleted TransferStatus = "completed"

// TransferRecord is one ledger entry. Append-only: once written it is
// never updated or deleted.
type TransferRecord struct {
	ID          string
	SenderID    int64
	RecipientID int64
	Amount      decimal.Decimal
	ServiceFee  decimal.Decimal
	Note        string
	Status      TransferStatus
	CreatedAt   time.Time
}

// HistoryEntry is a TransferRecord enriched for display: resolved party
// names and the direction relative to the queried account.
type HistoryEntry struct {
	TransferRecord
	SenderName    string
	RecipientName string
	IsIncoming    bool
}

// =============================================================================
// RESULTS
// =============================================================================

// TransferResult reports a committed transfer.
type TransferResult struct {
	TransferID          string
	Amount              decimal.Decimal
	TotalDeducted       decimal.Decimal
	NewSenderBalance    decimal.Decimal
	NewRecipientBalance decimal.Decimal
	SenderName          string
	RecipientName       string
}

// BalanceCheck reports whether a sender can cover amount + fee.
// Advisory only: no lock is held between this check and a transfer.
type BalanceCheck struct {
	OK        bool
	Available decimal.Decimal
	Required  decimal.Decimal
}

// RecipientRef names a transfer recipient either by account ID (when ID > 0)
// or by identifier (merchant code, email, or contact number).
type RecipientRef struct {
	ID         int64
	Identifier string
}

// =============================================================================
// LIMITS - Configured transfer bounds
// =============================================================================

// Limits bounds transfer amounts and service fees. Values are in
// currency minor units.
type Limits struct {
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	MaxServiceFee decimal.Decimal
}

// DefaultLimits returns the platform defaults: amount in [100, 50000],
// service fee in [0, 1000].
func DefaultLimits() Limits {
	return Limits{
		MinAmount:     decimal.NewFromInt(100),
		MaxAmount:     decimal.NewFromInt(50000),
		MaxServiceFee: decimal.NewFromInt(1000),
	}
}

// Validate checks amount and fee against the configured bounds. All
// violations are collected into a single ValidationError so the caller can
// render one complete message.
func (l Limits) Validate(amount, fee decimal.Decimal) error {
	var violations []string

	if amount.LessThan(l.MinAmount) {
		violations = append(violations, fmt.Sprintf("amount must be at least %s", l.MinAmount))
	}
	if amount.GreaterThan(l.MaxAmount) {
		violations = append(violations, fmt.Sprintf("amount must not exceed %s", l.MaxAmount))
	}
	if fee.IsNegative() {
		violations = append(violations, "service fee must not be negative")
	}
	if fee.GreaterThan(l.MaxServiceFee) {
		violations = append(violations, fmt.Sprintf("service fee must not exceed %s", l.MaxServiceFee))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
