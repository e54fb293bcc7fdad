/*
Package sqlite provides a SQLite-backed implementation of the credits store.

PURPOSE:
  Implements credits.TxStore using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  accounts:  Platform users with decimal balances
  transfers: Append-only ledger of completed transfers

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements touch the transfers table. A record exists
  iff its transfer committed.

CONCURRENCY:
  Transfers run inside WithTx. The connection is opened with
  _txlock=immediate so every transaction takes SQLite's write lock up front:
  two concurrent transfers against the same sender serialize instead of both
  passing the balance check against a stale read. This is SQLite's
  equivalent of SELECT ... FOR UPDATE row locking. A sync.Mutex additionally
  serializes writers within this process.

WAL MODE:
  Opened with WAL (Write-Ahead Logging): readers don't block, single writer
  at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/backoffice.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - credits/store.go: Interface definitions
  - credits/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/atmgo/backoffice/credits"
)

// Store implements credits.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives per-connection; a second pooled connection
	// would see an independent empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (balances in currency minor units, stored as decimal text)
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_code TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		CHECK (CAST(balance AS NUMERIC) >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_merchant_code
		ON accounts(merchant_code) WHERE merchant_code != '';
	CREATE INDEX IF NOT EXISTS idx_accounts_email
		ON accounts(email) WHERE email != '';
	CREATE INDEX IF NOT EXISTS idx_accounts_phone
		ON accounts(phone) WHERE phone != '';
	CREATE INDEX IF NOT EXISTS idx_accounts_status
		ON accounts(status);

	-- Transfers (append-only ledger)
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		sender_id INTEGER NOT NULL REFERENCES accounts(id),
		recipient_id INTEGER NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		service_fee TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'completed',
		created_at TEXT NOT NULL,
		CHECK (sender_id != recipient_id)
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_sender
		ON transfers(sender_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transfers_recipient
		ON transfers(recipient_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transfers_created_at
		ON transfers(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// timeLayout is fixed-width (fractional seconds never trimmed) so that
// lexicographic ORDER BY on the stored text matches chronological order.
// Reads still parse RFC3339Nano, which accepts both layouts.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// queryer is satisfied by both *sql.DB and *sql.Tx so every query helper
// works inside and outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNT STORE (credits.AccountStore interface)
// =============================================================================

const accountColumns = "id, merchant_code, name, email, phone, status, balance, created_at"

// GetAccount returns the account or (nil, nil) when absent.
func (s *Store) GetAccount(ctx context.Context, id int64) (*credits.Account, error) {
	return s.getAccount(ctx, s.db, id)
}

func (s *Store) getAccount(ctx context.Context, q queryer, id int64) (*credits.Account, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActiveByIdentifier returns the first active account matching the
// identifier, checking merchant code, then email, then contact number.
func (s *Store) FindActiveByIdentifier(ctx context.Context, identifier string) (*credits.Account, error) {
	return s.findActiveByIdentifier(ctx, s.db, identifier)
}

func (s *Store) findActiveByIdentifier(ctx context.Context, q queryer, identifier string) (*credits.Account, error) {
	for _, field := range []string{"merchant_code", "email", "phone"} {
		row := q.QueryRowContext(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE status = ? AND "+field+" = ? ORDER BY id LIMIT 1",
			credits.StatusActive, identifier)

		a, err := scanAccount(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &a, nil
	}
	return nil, nil
}

// SaveAccount inserts (ID == 0) or updates an account and returns its ID.
func (s *Store) SaveAccount(ctx context.Context, a credits.Account) (int64, error) {
	return s.saveAccount(ctx, s.db, a)
}

func (s *Store) saveAccount(ctx context.Context, q queryer, a credits.Account) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = credits.StatusActive
	}

	if a.ID == 0 {
		res, err := q.ExecContext(ctx, `
			INSERT INTO accounts (merchant_code, name, email, phone, status, balance, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.MerchantCode, a.Name, a.Email, a.Phone, a.Status,
			a.Balance.String(), a.CreatedAt.UTC().Format(timeLayout))
		if err != nil {
			return 0, fmt.Errorf("failed to insert account: %w", err)
		}
		return res.LastInsertId()
	}

	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (id, merchant_code, name, email, phone, status, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MerchantCode, a.Name, a.Email, a.Phone, a.Status,
		a.Balance.String(), a.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to save account: %w", err)
	}
	return a.ID, nil
}

// ListAccounts returns all accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context) ([]credits.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []credits.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AddToBalance applies a signed delta to an account balance.
func (s *Store) AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	return s.addToBalance(ctx, s.db, id, delta)
}

func (s *Store) addToBalance(ctx context.Context, q queryer, id int64, delta decimal.Decimal) error {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE id = ?", id).Scan(&raw)
	if err == sql.ErrNoRows {
		return credits.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance for account %d: %w", id, err)
	}

	_, err = q.ExecContext(ctx, "UPDATE accounts SET balance = ? WHERE id = ?",
		balance.Add(delta).String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

// =============================================================================
// LEDGER STORE (credits.LedgerStore interface)
// =============================================================================

const transferColumns = "id, sender_id, recipient_id, amount, service_fee, note, status, created_at"

// AppendTransfer persists one transfer record. Append-only.
func (s *Store) AppendTransfer(ctx context.Context, rec credits.TransferRecord) error {
	return s.appendTransfer(ctx, s.db, rec)
}

func (s *Store) appendTransfer(ctx context.Context, q queryer, rec credits.TransferRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfers (id, sender_id, recipient_id, amount, service_fee, note, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SenderID, rec.RecipientID,
		rec.Amount.String(), rec.ServiceFee.String(),
		rec.Note, rec.Status, rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to append transfer: %w", err)
	}
	return nil
}

// History returns at most limit records where the account is sender or
// recipient, newest first.
func (s *Store) History(ctx context.Context, accountID int64, limit int) ([]credits.TransferRecord, error) {
	return s.history(ctx, s.db, accountID, limit)
}

func (s *Store) history(ctx context.Context, q queryer, accountID int64, limit int) ([]credits.TransferRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transferColumns+` FROM transfers
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		accountID, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var records []credits.TransferRecord
	for rows.Next() {
		var (
			rec             credits.TransferRecord
			amount, fee     string
			status, created string
		)
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.RecipientID,
			&amount, &fee, &rec.Note, &status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on transfer %s: %w", rec.ID, err)
		}
		if rec.ServiceFee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("corrupt service fee on transfer %s: %w", rec.ID, err)
		}
		rec.Status = credits.TransferStatus(status)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("corrupt timestamp on transfer %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// TRANSACTIONS (credits.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The transaction starts
// with BEGIN IMMEDIATE (via _txlock=immediate), taking the write lock before
// any read so concurrent transfers serialize.
func (s *Store) WithTx(ctx context.Context, fn func(credits.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes credits.Store calls through the open transaction.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) GetAccount(ctx context.Context, id int64) (*credits.Account, error) {
	return ts.parent.getAccount(ctx, ts.tx, id)
}

func (ts *txStore) FindActiveByIdentifier(ctx context.Context, identifier string) (*credits.Account, error) {
	return ts.parent.findActiveByIdentifier(ctx, ts.tx, identifier)
}

func (ts *txStore) SaveAccount(ctx context.Context, a credits.Account) (int64, error) {
	return ts.parent.saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) ListAccounts(ctx context.Context) ([]credits.Account, error) {
	rows, err := ts.tx.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []credits.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (ts *txStore) AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	return ts.parent.addToBalance(ctx, ts.tx, id, delta)
}

func (ts *txStore) AppendTransfer(ctx context.Context, rec credits.TransferRecord) error {
	return ts.parent.appendTransfer(ctx, ts.tx, rec)
}

func (ts *txStore) History(ctx context.Context, accountID int64, limit int) ([]credits.TransferRecord, error) {
	return ts.parent.history(ctx, ts.tx, accountID, limit)
}

// =============================================================================
// HELPERS
// =============================================================================

// Reset wipes all data. Dev/test only.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM transfers"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM accounts")
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (credits.Account, error) {
	var (
		a               credits.Account
		status          string
		balance, create string
	)
	if err := row.Scan(&a.ID, &a.MerchantCode, &a.Name, &a.Email, &a.Phone,
		&status, &balance, &create); err != nil {
		return credits.Account{}, err
	}

	a.Status = credits.AccountStatus(status)

	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return credits.Account{}, fmt.Errorf("corrupt balance for account %d: %w", a.ID, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, create); err != nil {
		return credits.Account{}, fmt.Errorf("corrupt timestamp for account %d: %w", a.ID, err)
	}
	return a, nil
}
