package credits

import (
	"context"

	"github.com/shopspring/decimal"
)

// Views whose cached renderings become stale after a transfer.
var InvalidatedViews = []string{"dashboard", "credits", "profile"}

// TransferEvent describes a committed transfer for downstream consumers
// (cache invalidation, audit feeds).
type TransferEvent struct {
	TransferID  string          `json:"transfer_id"`
	SenderID    int64           `json:"sender_id"`
	RecipientID int64           `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
	ServiceFee  decimal.Decimal `json:"service_fee"`
	Views       []string        `json:"views"`
}

// Notifier receives best-effort notifications after a transfer commits.
// A Notifier failure never fails the transfer: the service logs it and
// reports success to the caller.
type Notifier interface {
	TransferCompleted(ctx context.Context, ev TransferEvent) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) TransferCompleted(context.Context, TransferEvent) error { return nil }
