/*
service.go - Balance transfer operations

PURPOSE:
  Implements the credits transfer service: recipient resolution, advisory
  balance checks, atomic transfers, and enriched history.

TRANSFER FLOW:
  1. Validate amount and fee against configured limits (no store access yet)
  2. Inside one store transaction:
     a. Re-read the sender balance
     b. Fail InsufficientFunds if balance < amount + fee (no mutation)
     c. Resolve and re-read the recipient; reject self-transfers
     d. Debit sender by amount + fee
     e. Credit recipient by amount
     f. Append one completed TransferRecord
  3. Commit; on any failure all mutations roll back
  4. Emit a best-effort cache-invalidation event (logged, never fatal)

INVARIANT:
  For every TransferRecord, at creation time the sender balance covered
  amount + serviceFee, and afterwards
    senderBalance  -= amount + serviceFee
    recipientBalance += amount
  with the record and both mutations committed together or not at all.

SEE ALSO:
  - store.go: TxStore providing the atomic unit of work
  - errors.go: Failure taxonomy returned by these operations
*/
package credits

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit caps history queries that pass no explicit limit.
const DefaultHistoryLimit = 10

// MinIdentifierLength is the shortest recipient identifier accepted for
// lookup.
const MinIdentifierLength = 3

// Service implements the balance transfer operations against a TxStore.
type Service struct {
	store    TxStore
	limits   Limits
	notifier Notifier
	now      func() time.Time
}

// NewService creates a Service. A nil notifier disables notifications.
func NewService(store TxStore, limits Limits, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:    store,
		limits:   limits,
		notifier: notifier,
		now:      time.Now,
	}
}

// Limits returns the configured transfer bounds.
func (s *Service) Limits() Limits { return s.limits }

// =============================================================================
// RECIPIENT RESOLUTION
// =============================================================================

// ResolveRecipient looks up exactly one active account whose merchant code,
// email, or contact number equals identifier. Only active accounts are
// eligible.
func (s *Service) ResolveRecipient(ctx context.Context, identifier string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if len(identifier) < MinIdentifierLength {
		return nil, &ValidationError{Violations: []string{
			fmt.Sprintf("identifier must be at least %d characters", MinIdentifierLength),
		}}
	}

	acct, err := s.store.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup failed: %w", err)
	}
	if acct == nil {
		return nil, ErrRecipientNotFound
	}
	return acct, nil
}

// =============================================================================
// BALANCE CHECK
// =============================================================================

// CheckBalance reports whether the sender can cover amount + fee.
// Read-only and advisory: no lock is held between this check and a
// subsequent Transfer, which re-checks inside its transaction.
func (s *Service) CheckBalance(ctx context.Context, senderID int64, amount, fee decimal.Decimal) (*BalanceCheck, error) {
	if err := s.limits.Validate(amount, fee); err != nil {
		return nil, err
	}

	sender, err := s.store.GetAccount(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender lookup failed: %w", err)
	}
	if sender == nil {
		return nil, ErrAccountNotFound
	}

	required := amount.Add(fee)
	return &BalanceCheck{
		OK:        !sender.Balance.LessThan(required),
		Available: sender.Balance,
		Required:  required,
	}, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer atomically debits the sender by amount + fee, credits the
// recipient by amount, and appends one completed TransferRecord. The
// recipient is named either by account ID or by identifier.
//
// The total deduction is always amount + fee. The legacy caller-supplied
// override was removed; the API layer rejects divergent values.
func (s *Service) Transfer(ctx context.Context, senderID int64, recipient RecipientRef, amount, fee decimal.Decimal, note string) (*TransferResult, error) {
	if err := s.limits.Validate(amount, fee); err != nil {
		return nil, err
	}
	if recipient.ID > 0 && recipient.ID == senderID {
		return nil, ErrSelfTransfer
	}

	total := amount.Add(fee)
	var (
		result      *TransferResult
		recipientID int64
	)

	err := s.store.WithTx(ctx, func(st Store) error {
		sender, err := st.GetAccount(ctx, senderID)
		if err != nil {
			return fmt.Errorf("sender lookup failed: %w", err)
		}
		if sender == nil {
			return ErrAccountNotFound
		}

		if sender.Balance.LessThan(total) {
			return &InsufficientFundsError{Available: sender.Balance, Required: total}
		}

		rcpt, err := s.resolveInTx(ctx, st, recipient)
		if err != nil {
			return err
		}
		if rcpt.ID == senderID {
			return ErrSelfTransfer
		}
		recipientID = rcpt.ID

		if err := st.AddToBalance(ctx, sender.ID, total.Neg()); err != nil {
			return fmt.Errorf("debit failed: %w", err)
		}
		if err := st.AddToBalance(ctx, rcpt.ID, amount); err != nil {
			return fmt.Errorf("credit failed: %w", err)
		}

		rec := TransferRecord{
			ID:          uuid.NewString(),
			SenderID:    sender.ID,
			RecipientID: rcpt.ID,
			Amount:      amount,
			ServiceFee:  fee,
			Note:        note,
			Status:      TransferCompleted,
			CreatedAt:   s.now().UTC(),
		}
		if err := st.AppendTransfer(ctx, rec); err != nil {
			return fmt.Errorf("ledger append failed: %w", err)
		}

		result = &TransferResult{
			TransferID:          rec.ID,
			Amount:              amount,
			TotalDeducted:       total,
			NewSenderBalance:    sender.Balance.Sub(total),
			NewRecipientBalance: rcpt.Balance.Add(amount),
			SenderName:          sender.DisplayName(),
			RecipientName:       rcpt.DisplayName(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best-effort: a failed notification must not fail a committed transfer.
	ev := TransferEvent{
		TransferID:  result.TransferID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Amount:      amount,
		ServiceFee:  fee,
		Views:       InvalidatedViews,
	}
	if err := s.notifier.TransferCompleted(ctx, ev); err != nil {
		log.Printf("credits: transfer %s committed but notification failed: %v", result.TransferID, err)
	}

	return result, nil
}

// resolveInTx re-reads the recipient inside the transfer transaction so the
// credited balance is current at commit time.
func (s *Service) resolveInTx(ctx context.Context, st Store, ref RecipientRef) (*Account, error) {
	if ref.ID > 0 {
		acct, err := st.GetAccount(ctx, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("recipient lookup failed: %w", err)
		}
		if acct == nil {
			return nil, ErrRecipientNotFound
		}
		return acct, nil
	}

	identifier := strings.TrimSpace(ref.Identifier)
	if len(identifier) < MinIdentifierLength {
		return nil, &ValidationError{Violations: []string{
			fmt.Sprintf("identifier must be at least %d characters", MinIdentifierLength),
		}}
	}
	acct, err := st.FindActiveByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup failed: %w", err)
	}
	if acct == nil {
		return nil, ErrRecipientNotFound
	}
	return acct, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the most recent limit records where the account is sender
// or recipient, newest first, each enriched with party names and direction.
// A limit <= 0 falls back to DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	records, err := s.store.History(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}

	names := make(map[int64]string)
	displayName := func(id int64) (string, error) {
		if name, ok := names[id]; ok {
			return name, nil
		}
		acct, err := s.store.GetAccount(ctx, id)
		if err != nil {
			return "", err
		}
		name := fmt.Sprintf("User #%d", id)
		if acct != nil {
			name = acct.DisplayName()
		}
		names[id] = name
		return name, nil
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		senderName, err := displayName(rec.SenderID)
		if err != nil {
			return nil, fmt.Errorf("history enrichment failed: %w", err)
		}
		recipientName, err := displayName(rec.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("history enrichment failed: %w", err)
		}
		entries = append(entries, HistoryEntry{
			TransferRecord: rec,
			SenderName:     senderName,
			RecipientName:  recipientName,
			IsIncoming:     rec.RecipientID == accountID,
		})
	}
	return entries, nil
}
