// Package coordinator is the idempotent request front-end that assigns
// transfer ids, persists intent before effecting movement, dispatches to the
// ledger under retry + breaker protection via the worker pool, and
// reconciles the resulting state into a durable transfer record.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	tclient "github.com/ledgerops/platform/internal/transfer/client"
	"github.com/ledgerops/platform/internal/transfer/domain"

	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/platform/logging"
	"github.com/ledgerops/platform/internal/platform/reqctx"
	"github.com/ledgerops/platform/internal/transfer/pool"
)

type Coordinator struct {
	db     *pgxpool.Pool
	client *tclient.Client
	pool   *pool.Pool
}

func New(db *pgxpool.Pool, client *tclient.Client, workerPool *pool.Pool) *Coordinator {
	return &Coordinator{db: db, client: client, pool: workerPool}
}

// requestHash canonicalizes the mutable fields of an intent so a replayed
// idempotency key can be checked for a mismatched payload.
func requestHash(intent domain.Intent) string {
	data := fmt.Sprintf("%d:%d:%s", intent.FromAccountID, intent.ToAccountID, intent.Amount.String())
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// CreateTransfer validates the intent, probes idempotency, persists it as
// PENDING, dispatches asynchronously, and returns PENDING immediately.
func (c *Coordinator) CreateTransfer(ctx context.Context, intent domain.Intent) (*domain.Record, error) {
	if intent.Amount.Sign() <= 0 {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "amount must be > 0", nil)
	}
	if intent.FromAccountID == intent.ToAccountID {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "fromAccountId and toAccountId must differ", nil)
	}
	if intent.IdempotencyKey == "" {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "idempotencyKey is required", nil)
	}

	hash := requestHash(intent)

	// Idempotency probe: return the stored record verbatim, including
	// PENDING, without further action.
	existing, err := c.getByIdempotencyKey(ctx, intent.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.RequestHash != hash {
			return nil, apperr.ErrIdempotencyConflict
		}
		return existing, nil
	}

	record, err := c.insertPending(ctx, intent, hash)
	if err != nil {
		if errors.Is(err, errIdempotencyRace) {
			// Lost race to a concurrent insert under the same key; the
			// store's uniqueness constraint is authoritative — retry the
			// probe once and return the winner.
			existing, err := c.getByIdempotencyKey(ctx, intent.IdempotencyKey)
			if err != nil {
				return nil, err
			}
			if existing == nil {
				return nil, fmt.Errorf("coordinator: idempotency race but no winning record found")
			}
			if existing.RequestHash != hash {
				return nil, apperr.ErrIdempotencyConflict
			}
			return existing, nil
		}
		return nil, err
	}

	reqID := reqctx.RequestID(ctx)
	dispatchCtx := reqctx.WithRequestID(context.Background(), reqID)
	if err := c.pool.Submit(dispatchCtx, func(taskCtx context.Context) {
		c.applyAsync(taskCtx, record)
	}); err != nil {
		logging.L().Error().Str("request_id", reqID).Err(err).Msg("coordinator: failed to submit dispatch task")
	}

	return record, nil
}

var errIdempotencyRace = errors.New("coordinator: idempotency key insert race")

func (c *Coordinator) getByIdempotencyKey(ctx context.Context, key string) (*domain.Record, error) {
	return c.scanOne(ctx, `SELECT id, transfer_id, idempotency_key, request_hash, from_account_id, to_account_id,
		amount, status, COALESCE(error_message, ''), created_at, updated_at
		FROM transfer_records WHERE idempotency_key = $1`, key)
}

// GetTransfer is a pure read by transfer_id.
func (c *Coordinator) GetTransfer(ctx context.Context, transferID string) (*domain.Record, error) {
	return c.scanOne(ctx, `SELECT id, transfer_id, idempotency_key, request_hash, from_account_id, to_account_id,
		amount, status, COALESCE(error_message, ''), created_at, updated_at
		FROM transfer_records WHERE transfer_id = $1`, transferID)
}

func (c *Coordinator) scanOne(ctx context.Context, query string, arg string) (*domain.Record, error) {
	var r domain.Record
	err := c.db.QueryRow(ctx, query, arg).Scan(
		&r.ID, &r.TransferID, &r.IdempotencyKey, &r.RequestHash, &r.FromAccountID, &r.ToAccountID,
		&r.Amount, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coordinator: query transfer record: %w", err)
	}
	return &r, nil
}

func (c *Coordinator) insertPending(ctx context.Context, intent domain.Intent, hash string) (*domain.Record, error) {
	transferID := uuid.NewString()

	var r domain.Record
	err := c.db.QueryRow(ctx,
		`INSERT INTO transfer_records
			(transfer_id, idempotency_key, request_hash, from_account_id, to_account_id, amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, transfer_id, idempotency_key, request_hash, from_account_id, to_account_id,
			amount, status, COALESCE(error_message, ''), created_at, updated_at`,
		transferID, intent.IdempotencyKey, hash, intent.FromAccountID, intent.ToAccountID, intent.Amount, domain.StatusPending,
	).Scan(
		&r.ID, &r.TransferID, &r.IdempotencyKey, &r.RequestHash, &r.FromAccountID, &r.ToAccountID,
		&r.Amount, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errIdempotencyRace
		}
		return nil, fmt.Errorf("coordinator: insert pending record: %w", err)
	}
	return &r, nil
}

// applyAsync runs on the worker pool: exactly one dispatch attempt per
// transfer record.
func (c *Coordinator) applyAsync(ctx context.Context, record *domain.Record) {
	result, err := c.client.ApplyTransfer(ctx, record.TransferID, record.FromAccountID, record.ToAccountID, record.Amount)
	if err != nil {
		logging.L().Error().Str("request_id", reqctx.RequestID(ctx)).Str("transfer_id", record.TransferID).
			Err(err).Msg("coordinator: resilient client call failed unexpectedly")
		c.finalize(ctx, record.TransferID, domain.StatusFailed, "internal dispatch error")
		return
	}

	switch result.Outcome {
	case tclient.Applied:
		c.finalize(ctx, record.TransferID, domain.StatusCompleted, "")
	case tclient.Rejected:
		c.finalize(ctx, record.TransferID, domain.StatusFailed, result.Reason)
	case tclient.Unavailable:
		// The transfer record itself is the channel for reporting a
		// downstream outage.
		c.finalize(ctx, record.TransferID, domain.StatusFailed, "ledger unavailable")
	}
}

// finalize persists the terminal status idempotently w.r.t. re-entry: a
// record already in a terminal state is never overwritten.
func (c *Coordinator) finalize(ctx context.Context, transferID string, status domain.Status, errMsg string) {
	var errVal interface{}
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := c.db.Exec(ctx,
		`UPDATE transfer_records SET status = $1, error_message = $2, updated_at = now()
		 WHERE transfer_id = $3 AND status = $4`,
		status, errVal, transferID, domain.StatusPending,
	)
	if err != nil {
		logging.L().Error().Str("transfer_id", transferID).Err(err).Msg("coordinator: failed to finalize transfer record")
	}
}

// SweepPending re-dispatches PENDING records older than age through the
// same idempotent path, recovering from a coordinator restart that orphaned
// an in-flight asynchronous application. Re-dispatch is safe: applyTransfer
// on the ledger is idempotent on transfer_id.
func (c *Coordinator) SweepPending(ctx context.Context, age time.Duration) (int, error) {
	rows, err := c.db.Query(ctx,
		`SELECT id, transfer_id, idempotency_key, request_hash, from_account_id, to_account_id,
			amount, status, COALESCE(error_message, ''), created_at, updated_at
		 FROM transfer_records WHERE status = $1 AND created_at < $2`,
		domain.StatusPending, time.Now().Add(-age),
	)
	if err != nil {
		return 0, fmt.Errorf("coordinator: sweep query: %w", err)
	}
	defer rows.Close()

	var stale []*domain.Record
	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.ID, &r.TransferID, &r.IdempotencyKey, &r.RequestHash, &r.FromAccountID, &r.ToAccountID,
			&r.Amount, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return 0, fmt.Errorf("coordinator: sweep scan: %w", err)
		}
		stale = append(stale, &r)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, r := range stale {
		record := r
		sweepCtx := reqctx.WithRequestID(context.Background(), "sweep-"+record.TransferID)
		if err := c.pool.Submit(sweepCtx, func(taskCtx context.Context) {
			c.applyAsync(taskCtx, record)
		}); err != nil {
			logging.L().Error().Str("transfer_id", record.TransferID).Err(err).Msg("coordinator: sweep dispatch failed")
		}
	}
	return len(stale), nil
}
