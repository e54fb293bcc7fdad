package credits_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmgo/backoffice/credits"
	"github.com/atmgo/backoffice/credits/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type stubNotifier struct {
	events []credits.TransferEvent
	err    error
}

func (n *stubNotifier) TransferCompleted(_ context.Context, ev credits.TransferEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

func newTestService(t *testing.T) (*credits.Service, *store.Memory, *stubNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := &stubNotifier{}
	svc := credits.NewService(mem, credits.DefaultLimits(), notifier)
	return svc, mem, notifier
}

func seedAccount(t *testing.T, mem *store.Memory, a credits.Account) int64 {
	t.Helper()
	if a.Status == "" {
		a.Status = credits.StatusActive
	}
	id, err := mem.SaveAccount(context.Background(), a)
	require.NoError(t, err)
	return id
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// =============================================================================
// TRANSFER - SUCCESS PATH
// =============================================================================

func TestTransfer_Success_BalancesAndLedger(t *testing.T) {
	// GIVEN: sender with 5000 credits, active recipient
	svc, mem, notifier := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Name: "Alice Merchant", Balance: dec(5000)})
	recipientID := seedAccount(t, mem, credits.Account{Name: "Bob Merchant", Balance: dec(200)})

	// WHEN: transferring 1000 with a 50 fee
	result, err := svc.Transfer(ctx, senderID, credits.RecipientRef{ID: recipientID}, dec(1000), dec(50), "settlement")
	require.NoError(t, err)

	// THEN: sender pays amount + fee, recipient receives amount
	assert.True(t, result.NewSenderBalance.Equal(dec(3950)), "sender balance: %s", result.NewSenderBalance)
	assert.True(t, result.NewRecipientBalance.Equal(dec(1200)), "recipient balance: %s", result.NewRecipientBalance)
	assert.True(t, result.TotalDeducted.Equal(dec(1050)))
	assert.NotEmpty(t, result.TransferID)
	assert.Equal(t, "Alice Merchant", result.SenderName)
	assert.Equal(t, "Bob Merchant", result.RecipientName)

	// AND: stored balances match the reported ones
	sender, err := mem.GetAccount(ctx, senderID)
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(dec(3950)))

	recipient, err := mem.GetAccount(ctx, recipientID)
	require.NoError(t, err)
	assert.True(t, recipient.Balance.Equal(dec(1200)))

	// AND: exactly one completed ledger record with the input amounts
	records, err := mem.History(ctx, senderID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Amount.Equal(dec(1000)))
	assert.True(t, records[0].ServiceFee.Equal(dec(50)))
	assert.Equal(t, credits.TransferCompleted, records[0].Status)
	assert.Equal(t, "settlement", records[0].Note)

	// AND: one cache-invalidation event was emitted
	require.Len(t, notifier.events, 1)
	assert.Equal(t, result.TransferID, notifier.events[0].TransferID)
	assert.Equal(t, recipientID, notifier.events[0].RecipientID)
	assert.Equal(t, credits.InvalidatedViews, notifier.events[0].Views)
}

func TestTransfer_ByIdentifier_ResolvesActiveRecipient(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Name: "Sender", Balance: dec(5000)})
	recipientID := seedAccount(t, mem, credits.Account{
		Name: "Shop 42", MerchantCode: "ATM-0042", Balance: dec(0),
	})

	result, err := svc.Transfer(ctx, senderID,
		credits.RecipientRef{Identifier: "ATM-0042"}, dec(500), dec(0), "")
	require.NoError(t, err)

	recipient, err := mem.GetAccount(ctx, recipientID)
	require.NoError(t, err)
	assert.True(t, recipient.Balance.Equal(dec(500)))
	assert.Equal(t, "Shop 42", result.RecipientName)
}

func TestTransfer_NotifierFailure_DoesNotFailTransfer(t *testing.T) {
	// GIVEN: a notifier that always fails
	mem := store.NewMemory()
	notifier := &stubNotifier{err: errors.New("redis down")}
	svc := credits.NewService(mem, credits.DefaultLimits(), notifier)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Balance: dec(5000)})
	recipientID := seedAccount(t, mem, credits.Account{Balance: dec(0)})

	// WHEN: transferring
	result, err := svc.Transfer(ctx, senderID, credits.RecipientRef{ID: recipientID}, dec(1000), dec(0), "")

	// THEN: the transfer still succeeds and is committed
	require.NoError(t, err)
	require.NotNil(t, result)

	sender, err := mem.GetAccount(ctx, senderID)
	require.NoError(t, err)
	assert.True(t, sender.Balance.Equal(dec(4000)))
}

func TestTransfer_NameFallback_UserNumberID(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Balance: dec(5000)}) // no name
	recipientID := seedAccount(t, mem, credits.Account{Balance: dec(0)})

	result, err := svc.Transfer(ctx, senderID, credits.RecipientRef{ID: recipientID}, dec(100), dec(0), "")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("User #%d", senderID), result.SenderName)
	assert.Equal(t, fmt.Sprintf("User #%d", recipientID), result.RecipientName)
}

// =============================================================================
// TRANSFER - FAILURE PATHS
// =============================================================================

func TestTransfer_InsufficientFunds_NoMutation(t *testing.T) {
	// GIVEN: sender with 100 credits
	svc, mem, notifier := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Balance: dec(100)})
	recipientID := seedAccount(t, mem, credits.Account{Balance: dec(0)})

	// WHEN: transferring 1000 with no fee
	_, err := svc.Transfer(ctx, senderID, credits.RecipientRef{ID: recipientID}, dec(1000), dec(0), "")

	// THEN: InsufficientFunds reporting required vs available
	require.Error(t, err)
	assert.True(t, errors.Is(err, credits.ErrInsufficientFunds))

	var ife *credits.InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.True(t, ife.Required.Equal(dec(1000)))
	assert.True(t, ife.Available.Equal(dec(100)))

	// AND: no balance changed, no record created, no event emitted
	sender, _ := mem.GetAccount(ctx, senderID)
	assert.True(t, sender.Balance.Equal(dec(100)))
	recipient, _ := mem.GetAccount(ctx, recipientID)
	assert.True(t, recipient.Balance.Equal(dec(0)))
	records, _ := mem.History(ctx, senderID, 10)
	assert.Empty(t, records)
	assert.Empty(t, notifier.events)
}

func TestTransfer_SelfTransfer_Rejected(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	id := seedAccount(t, mem, credits.Account{Balance: dec(5000)})

	_, err := svc.Transfer(ctx, id, credits.RecipientRef{ID: id}, dec(1000), dec(0), "")
	require.ErrorIs(t, err, credits.ErrSelfTransfer)

	acct, _ := mem.GetAccount(ctx, id)
	assert.True(t, acct.Balance.Equal(dec(5000)))
}

func TestTransfer_SelfTransferViaIdentifier_Rejected(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	id := seedAccount(t, mem, credits.Account{
		Email: "self@example.com", Balance: dec(5000),
	})

	_, err := svc.Transfer(ctx, id, credits.RecipientRef{Identifier: "self@example.com"}, dec(1000), dec(0), "")
	require.ErrorIs(t, err, credits.ErrSelfTransfer)
}

func TestTransfer_RecipientNotFound_SenderUnchanged(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Balance: dec(5000)})

	_, err := svc.Transfer(ctx, senderID, credits.RecipientRef{Identifier: "nobody@example.com"}, dec(1000), dec(0), "")
	require.ErrorIs(t, err, credits.ErrRecipientNotFound)

	sender, _ := mem.GetAccount(ctx, senderID)
	assert.True(t, sender.Balance.Equal(dec(5000)))
}

func TestTransfer_SuspendedRecipient_NotEligible(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	senderID := seedAccount(t, mem, credits.Account{Balance: dec(5000)})
	seedAccount(t, mem, credits.Account{
		MerchantCode: "ATM-0099", Status: credits.StatusSuspended, Balance: dec(0),
	})

	_, err := svc.Transfer(ctx, senderID, credits.RecipientRef{Identifier: "ATM-0099"}, dec(1000), dec(0), "")
	require.ErrorIs(t, err, credits.ErrRecipientNotFound)
}

func TestTransfer_SenderNotFound(t *testing.T) {
	svc, mem, _ := newTestService(t)
	recipientID := seedAccount(t, mem, credits.Account{Balance: dec(0)})

	_, err := svc.Transfer(context.Background(), 9999, credits.RecipientRef{ID: recipientID}, dec(1000), dec(0), "")
	require.ErrorIs(t, err, credits.ErrAccountNotFound)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestTransfer_BoundsValidation_BeforeStoreAccess(t *testing.T) {
	// The store stays empty: validation must reject before any lookup.
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		amount decimal.Decimal
		fee    decimal.Decimal
	}{
		{"amount below minimum", dec(99), dec(0)},
		{"amount above maximum", dec(50001), dec(0)},
		{"negative fee", dec(1000), dec(-1)},
		{"fee above maximum", dec(1000), dec(1001)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Transfer(ctx, 1, credits.RecipientRef{ID: 2}, tc.amount, tc.fee, "")
			var ve *credits.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, credits.KindValidation, credits.KindOf(err))
		})
	}
}

func TestValidation_MultipleViolations_Joined(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Amount below minimum AND fee above maximum
	_, err := svc.Transfer(context.Background(), 1, credits.RecipientRef{ID: 2}, dec(50), dec(2000), "")

	var ve *credits.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Violations, 2)
	assert.Contains(t, err.Error(), "amount must be at least 100")
	assert.Contains(t, err.Error(), "service fee must not exceed 1000")
}

// =============================================================================
// BALANCE CHECK
// =============================================================================

func TestCheckBalance_OK(t *testing.T) {
	svc, mem, _ := newTestService(t)
	senderID := seedAccount(t, mem, credits.Account{Balance: dec(5000)})

	check, err := svc.CheckBalance(context.Background(), senderID, dec(1000), dec(50))
	require.NoError(t, err)
	assert.True(t, check.OK)
	assert.True(t, check.Available.Equal(dec(5000)))
	assert.True(t, check.Required.Equal(dec(1050)))
}

func TestCheckBalance_Insufficient(t *testing.T) {
	svc, mem, _ := newTestService(t)
	senderID := seedAccount(t, mem, credits.Account{Balance: dec(100)})

	check, err := svc.CheckBalance(context.Background(), senderID, dec(1000), dec(0))
	require.NoError(t, err)
	assert.False(t, check.OK)
	assert.True(t, check.Available.Equal(dec(100)))
	assert.True(t, check.Required.Equal(dec(1000)))
}

func TestCheckBalance_SenderMissing(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CheckBalance(context.Background(), 42, dec(1000), dec(0))
	require.ErrorIs(t, err, credits.ErrAccountNotFound)
}

func TestCheckBalance_Idempotent(t *testing.T) {
	// Two checks with no intervening transfer return identical results.
	svc, mem, _ := newTestService(t)
	senderID := seedAccount(t, mem, credits.Account{Balance: dec(700)})

	first, err := svc.CheckBalance(context.Background(), senderID, dec(500), dec(100))
	require.NoError(t, err)
	second, err := svc.CheckBalance(context.Background(), senderID, dec(500), dec(100))
	require.NoError(t, err)

	assert.Equal(t, first.OK, second.OK)
	assert.True(t, first.Available.Equal(second.Available))
	assert.True(t, first.Required.Equal(second.Required))
}

// =============================================================================
// RECIPIENT RESOLUTION
// =============================================================================

func TestResolveRecipient_ByEachIdentifier(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	id := seedAccount(t, mem, credits.Account{
		Name:         "Corner Store",
		MerchantCode: "ATM-0007",
		Email:        "corner@example.com",
		Phone:        "09171234567",
		Balance:      dec(0),
	})

	for _, identifier := range []string{"ATM-0007", "corner@example.com", "09171234567"} {
		acct, err := svc.ResolveRecipient(ctx, identifier)
		require.NoError(t, err, "identifier %q", identifier)
		assert.Equal(t, id, acct.ID)
	}
}

func TestResolveRecipient_TooShort(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ResolveRecipient(context.Background(), "ab")
	var ve *credits.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestResolveRecipient_NoMatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.ResolveRecipient(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, credits.ErrRecipientNotFound)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_OrderLimitAndDirection(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	a := seedAccount(t, mem, credits.Account{Name: "A", Balance: dec(50000)})
	b := seedAccount(t, mem, credits.Account{Name: "B", Balance: dec(50000)})
	c := seedAccount(t, mem, credits.Account{Name: "C", Balance: dec(50000)})

	// Three transfers involving A, one that is not
	base := time.Now()
	for i, rec := range []credits.TransferRecord{
		{ID: "t1", SenderID: a, RecipientID: b, Amount: dec(100), ServiceFee: dec(0)},
		{ID: "t2", SenderID: b, RecipientID: a, Amount: dec(200), ServiceFee: dec(0)},
		{ID: "t3", SenderID: a, RecipientID: c, Amount: dec(300), ServiceFee: dec(0)},
		{ID: "t4", SenderID: b, RecipientID: c, Amount: dec(400), ServiceFee: dec(0)},
	} {
		rec.Status = credits.TransferCompleted
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, mem.AppendTransfer(ctx, rec))
	}

	entries, err := svc.History(ctx, a, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first, only A's transfers
	assert.Equal(t, "t3", entries[0].ID)
	assert.Equal(t, "t2", entries[1].ID)

	// Direction relative to A
	assert.False(t, entries[0].IsIncoming)
	assert.True(t, entries[1].IsIncoming)

	// Enrichment
	assert.Equal(t, "A", entries[0].SenderName)
	assert.Equal(t, "C", entries[0].RecipientName)
}

func TestHistory_DefaultLimit(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	a := seedAccount(t, mem, credits.Account{Balance: dec(0)})
	b := seedAccount(t, mem, credits.Account{Balance: dec(0)})

	base := time.Now()
	for i := 0; i < 15; i++ {
		rec := credits.TransferRecord{
			ID:       fmt.Sprintf("t%d", i),
			SenderID: a, RecipientID: b,
			Amount: dec(100), ServiceFee: dec(0),
			Status:    credits.TransferCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, mem.AppendTransfer(ctx, rec))
	}

	entries, err := svc.History(ctx, a, 0)
	require.NoError(t, err)
	assert.Len(t, entries, credits.DefaultHistoryLimit)
	assert.Equal(t, "t14", entries[0].ID)
}

func TestHistory_UnknownParty_FallsBackToUserNumber(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	a := seedAccount(t, mem, credits.Account{Name: "A", Balance: dec(0)})

	// Ledger references an account that no longer resolves
	rec := credits.TransferRecord{
		ID: "t1", SenderID: a, RecipientID: 777,
		Amount: dec(100), ServiceFee: dec(0),
		Status: credits.TransferCompleted, CreatedAt: time.Now(),
	}
	require.NoError(t, mem.AppendTransfer(ctx, rec))

	entries, err := svc.History(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "User #777", entries[0].RecipientName)
}

// =============================================================================
// ERROR KINDS
// =============================================================================

func TestKindOf_Classification(t *testing.T) {
	assert.Equal(t, credits.KindValidation, credits.KindOf(&credits.ValidationError{Violations: []string{"x"}}))
	assert.Equal(t, credits.KindValidation, credits.KindOf(credits.ErrSelfTransfer))
	assert.Equal(t, credits.KindNotFound, credits.KindOf(credits.ErrAccountNotFound))
	assert.Equal(t, credits.KindNotFound, credits.KindOf(credits.ErrRecipientNotFound))
	assert.Equal(t, credits.KindInsufficientFunds, credits.KindOf(&credits.InsufficientFundsError{}))
	assert.Equal(t, credits.KindInternal, credits.KindOf(errors.New("database on fire")))
}
