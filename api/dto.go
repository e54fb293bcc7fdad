/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

ENVELOPE:
  Every response carries {success, data?, error?, error_kind?}. The success
  flag is kept for compatibility with existing callers; error_kind adds a
  machine-readable classification so clients branch on kind instead of
  parsing message strings.

NOTE ON AMOUNTS:
  Amounts serialize as decimal strings (shopspring/decimal), never floats.
  Request bodies accept both quoted and bare JSON numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmgo/backoffice/credits"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// FindRecipientRequest looks up a transfer recipient by merchant code,
// email, or contact number.
type FindRecipientRequest struct {
	Identifier string `json:"identifier"`
}

// CheckBalanceRequest asks whether a sender can cover amount + fee.
type CheckBalanceRequest struct {
	SenderID   int64           `json:"sender_id"`
	Amount     decimal.Decimal `json:"amount"`
	ServiceFee decimal.Decimal `json:"service_fee"`
}

// ExecuteTransferRequest performs a transfer. Exactly one of recipient_id
// or recipient_identifier names the recipient. total_deduction is a legacy
// field: when present it must equal amount + service_fee.
type ExecuteTransferRequest struct {
	SenderID            int64            `json:"sender_id"`
	RecipientID         int64            `json:"recipient_id,omitempty"`
	RecipientIdentifier string           `json:"recipient_identifier,omitempty"`
	Amount              decimal.Decimal  `json:"amount"`
	ServiceFee          decimal.Decimal  `json:"service_fee"`
	Note                string           `json:"note,omitempty"`
	TotalDeduction      *decimal.Decimal `json:"total_deduction,omitempty"`
}

// CreateAccountRequest registers an account.
type CreateAccountRequest struct {
	MerchantCode string          `json:"merchant_code"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Status       string          `json:"status,omitempty"`
	Balance      decimal.Decimal `json:"balance"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID           int64           `json:"id"`
	MerchantCode string          `json:"merchant_code,omitempty"`
	Name         string          `json:"name"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Status       string          `json:"status"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

func toAccountDTO(a credits.Account) AccountDTO {
	return AccountDTO{
		ID:           a.ID,
		MerchantCode: a.MerchantCode,
		Name:         a.DisplayName(),
		Email:        a.Email,
		Phone:        a.Phone,
		Status:       string(a.Status),
		Balance:      a.Balance,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
	}
}

// RecipientDTO is the lookup result for a transfer recipient. The balance
// is deliberately omitted: callers resolving a recipient have no business
// seeing another account's credits.
type RecipientDTO struct {
	ID           int64  `json:"id"`
	MerchantCode string `json:"merchant_code,omitempty"`
	Name         string `json:"name"`
	Status       string `json:"status"`
}

// BalanceCheckDTO reports an advisory balance check.
type BalanceCheckDTO struct {
	AvailableCredits decimal.Decimal `json:"available_credits"`
	TotalDeduction   decimal.Decimal `json:"total_deduction"`
}

// TransferResultDTO reports a committed transfer.
type TransferResultDTO struct {
	TransactionID       string          `json:"transaction_id"`
	Amount              decimal.Decimal `json:"amount"`
	TotalDeducted       decimal.Decimal `json:"total_deducted"`
	NewSenderBalance    decimal.Decimal `json:"new_sender_balance"`
	NewRecipientBalance decimal.Decimal `json:"new_recipient_balance"`
	SenderName          string          `json:"sender_name"`
	RecipientName       string          `json:"recipient_name"`
}

// HistoryEntryDTO is one enriched ledger record.
type HistoryEntryDTO struct {
	ID            string          `json:"id"`
	SenderID      int64           `json:"sender_id"`
	RecipientID   int64           `json:"recipient_id"`
	SenderName    string          `json:"sender_name"`
	RecipientName string          `json:"recipient_name"`
	Amount        decimal.Decimal `json:"amount"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	Note          string          `json:"note,omitempty"`
	Status        string          `json:"status"`
	IsIncoming    bool            `json:"is_incoming"`
	CreatedAt     string          `json:"created_at"`
}

func toHistoryEntryDTO(e credits.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:            e.ID,
		SenderID:      e.SenderID,
		RecipientID:   e.RecipientID,
		SenderName:    e.SenderName,
		RecipientName: e.RecipientName,
		Amount:        e.Amount,
		ServiceFee:    e.ServiceFee,
		Note:          e.Note,
		Status:        string(e.Status),
		IsIncoming:    e.IsIncoming,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339Nano),
	}
}
