// Package engine is the authoritative account/journal store: ordered-lock
// double-entry transfers over shopspring/decimal balances, with a single
// consistent implementation of account creation, lookup, and transfer
// application.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/platform/internal/ledger/domain"
	"github.com/ledgerops/platform/internal/platform/apperr"
)

// Postgres SQLSTATE codes the engine treats as transient and retries
// internally: serialization failure and deadlock detected.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

type Engine struct {
	db          *pgxpool.Pool
	maxAttempts int
	retryBase   time.Duration
}

func New(db *pgxpool.Pool, maxAttempts int, retryBase time.Duration) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBase <= 0 {
		retryBase = 20 * time.Millisecond
	}
	return &Engine{db: db, maxAttempts: maxAttempts, retryBase: retryBase}
}

// CreateAccount persists a new account with a strictly positive initial
// balance.
func (e *Engine) CreateAccount(ctx context.Context, initialBalance decimal.Decimal) (*domain.Account, error) {
	if initialBalance.Sign() <= 0 {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "initialBalance must be > 0", nil)
	}

	var acc domain.Account
	err := e.db.QueryRow(ctx,
		`INSERT INTO accounts (balance, version) VALUES ($1, 0) RETURNING id, balance, version`,
		initialBalance,
	).Scan(&acc.ID, &acc.Balance, &acc.Version)
	if err != nil {
		return nil, fmt.Errorf("engine: create account: %w", err)
	}
	return &acc, nil
}

// GetAccount is a pure read; returns nil, nil when the id is unknown.
func (e *Engine) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var acc domain.Account
	err := e.db.QueryRow(ctx, `SELECT id, balance, version FROM accounts WHERE id = $1`, id).
		Scan(&acc.ID, &acc.Balance, &acc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("engine: get account: %w", err)
	}
	return &acc, nil
}

// GetEntries returns the journal history for an account, newest first.
func (e *Engine) GetEntries(ctx context.Context, accountID int64) ([]domain.JournalEntry, error) {
	acc, err := e.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, apperr.ErrAccountNotFound
	}

	rows, err := e.db.Query(ctx,
		`SELECT id, transfer_id, account_id, amount, entry_type, created_at
		 FROM journal_entries WHERE account_id = $1 ORDER BY created_at DESC, id DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("engine: get entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var entry domain.JournalEntry
		if err := rows.Scan(&entry.ID, &entry.TransferID, &entry.AccountID, &entry.Amount, &entry.Type, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("engine: scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ApplyTransfer validates the request, takes an idempotency shortcut outside
// any mutating transaction, acquires ordered row locks in ascending account
// id, checks sufficient funds, mutates both balances, and inserts the
// double-entry journal pair whose unique index is the second line of
// idempotency defense.
func (e *Engine) ApplyTransfer(ctx context.Context, transferID string, fromID, toID int64, amount decimal.Decimal) (*domain.TransferOutcome, error) {
	// 1. Input validation — never touches storage.
	if transferID == "" {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "transferId is required", nil)
	}
	if amount.Sign() <= 0 {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "amount must be > 0", nil)
	}
	if fromID == toID {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "fromId and toId must differ", nil)
	}

	// 2. Idempotency shortcut — a plain read, outside the mutating transaction.
	var exists bool
	if err := e.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM journal_entries WHERE transfer_id = $1)`, transferID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("engine: idempotency probe: %w", err)
	}
	if exists {
		return &domain.TransferOutcome{TransferID: transferID, AlreadyApplied: true}, nil
	}

	outcome, err := e.applyWithRetry(ctx, transferID, fromID, toID, amount)
	return outcome, err
}

// applyWithRetry bounds the internal retry of transient storage errors
// (deadlock victim, serialization failure), using the same
// exponential-backoff-with-jitter shape as the resilient ledger client, via
// cenkalti/backoff.
func (e *Engine) applyWithRetry(ctx context.Context, transferID string, fromID, toID int64, amount decimal.Decimal) (*domain.TransferOutcome, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryBase
	bo.MaxElapsedTime = 0
	bo.MaxInterval = e.retryBase * 20
	withCap := backoff.WithMaxRetries(bo, uint64(e.maxAttempts-1))

	var outcome *domain.TransferOutcome
	attempt := 0
	op := func() error {
		attempt++
		o, err := e.applyOnce(ctx, transferID, fromID, toID, amount)
		if err != nil {
			if isTransient(err) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		outcome = o
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(withCap, ctx)); err != nil {
		if isTransient(err) {
			return nil, apperr.Wrap(apperr.KindTransient, fmt.Sprintf("engine: apply transfer exhausted %d attempts", attempt), err)
		}
		return nil, err
	}
	return outcome, nil
}

// applyOnce runs the lock-check-mutate-journal sequence inside a single
// transaction.
func (e *Engine) applyOnce(ctx context.Context, transferID string, fromID, toID int64, amount decimal.Decimal) (*domain.TransferOutcome, error) {
	tx, err := e.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("engine: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 3. Ordered locking: ascending id order is the sole deadlock-avoidance
	// mechanism and MUST NOT be weakened.
	first, second := fromID, toID
	if first > second {
		first, second = second, first
	}

	balances := make(map[int64]decimal.Decimal, 2)
	for _, id := range []int64{first, second} {
		var b decimal.Decimal
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&b)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrAccountNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("engine: lock account %d: %w", id, err)
		}
		balances[id] = b
	}

	fromBalance := balances[fromID]

	// 5. Sufficient-funds check.
	if fromBalance.LessThan(amount) {
		return nil, apperr.ErrInsufficientFunds
	}

	// 6. Apply the mutation, bumping both version fields.
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance - $1, version = version + 1 WHERE id = $2`,
		amount, fromID,
	); err != nil {
		return nil, fmt.Errorf("engine: debit: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, version = version + 1 WHERE id = $2`,
		amount, toID,
	); err != nil {
		return nil, fmt.Errorf("engine: credit: %w", err)
	}

	// 7. Journal the double-entry pair. The (transfer_id, account_id, type)
	// unique index is the second line of idempotency defense: a concurrent
	// duplicate that raced past step 2 aborts the whole transaction here.
	if _, err := tx.Exec(ctx,
		`INSERT INTO journal_entries (transfer_id, account_id, amount, entry_type) VALUES ($1, $2, $3, $4), ($1, $5, $6, $7)`,
		transferID, fromID, amount, domain.Debit, toID, amount, domain.Credit,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race to a concurrent duplicate; report as already applied.
			return &domain.TransferOutcome{TransferID: transferID, AlreadyApplied: true}, nil
		}
		return nil, fmt.Errorf("engine: insert journal: %w", err)
	}

	// 8. Commit.
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("engine: commit: %w", err)
	}

	return &domain.TransferOutcome{TransferID: transferID}, nil
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return errors.Is(err, context.DeadlineExceeded)
}
