/*
store.go - Persistence interfaces for accounts and the transfer ledger

PURPOSE:
  Defines the interface between the credits domain and the database.
  Different implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  The ledger side is append-only: AppendTransfer is the only write, and no
  Update or Delete method exists. A record exists iff its transfer committed.

ATOMICITY:
  TxStore.WithTx runs a closure against a transaction-bound Store. A transfer
  performs both balance mutations and the ledger insert inside one such
  closure; either all commit or none do.

IMPLEMENTATIONS:
  - store/sqlite: durable SQLite store
  - credits/store: in-memory store for tests

SEE ALSO:
  - service.go: The only consumer of these interfaces
*/
package credits

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore handles account persistence.
type AccountStore interface {
	// GetAccount returns the account or (nil, nil) when absent.
	GetAccount(ctx context.Context, id int64) (*Account, error)

	// FindActiveByIdentifier returns the first active account whose merchant
	// code, email, or contact number equals identifier, checked in that
	// order. Returns (nil, nil) when nothing matches.
	FindActiveByIdentifier(ctx context.Context, identifier string) (*Account, error)

	// SaveAccount inserts (ID == 0) or updates an account. Returns the
	// account ID.
	SaveAccount(ctx context.Context, a Account) (int64, error)

	// ListAccounts returns all accounts ordered by ID.
	ListAccounts(ctx context.Context) ([]Account, error)

	// AddToBalance applies a signed delta to an account balance.
	// Returns ErrAccountNotFound if the account does not exist.
	AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) error
}

// LedgerStore handles the append-only transfer ledger.
type LedgerStore interface {
	// AppendTransfer persists one transfer record. This is the ONLY write.
	AppendTransfer(ctx context.Context, rec TransferRecord) error

	// History returns at most limit records where the account is sender or
	// recipient, newest first by CreatedAt.
	History(ctx context.Context, accountID int64, limit int) ([]TransferRecord, error)
}

// Store combines account and ledger persistence.
type Store interface {
	AccountStore
	LedgerStore
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back; no partial state
// is observable by other readers.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
