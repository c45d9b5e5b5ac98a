// Package batch is the Batch Dispatcher: bounded-parallel fan-out of up to
// 20 intents through the coordinator, returning an aggregated result that
// preserves submission order.
package batch

import (
	"context"
	"sync"

	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/transfer/domain"
	"github.com/ledgerops/platform/internal/transfer/pool"
)

const MaxBatchSize = 20

// transferCreator is the slice of *coordinator.Coordinator the dispatcher
// depends on, accepted as an interface so tests can fake it without a
// database.
type transferCreator interface {
	CreateTransfer(ctx context.Context, intent domain.Intent) (*domain.Record, error)
}

type Dispatcher struct {
	coordinator transferCreator
	pool        *pool.Pool
}

func New(coord transferCreator, workerPool *pool.Pool) *Dispatcher {
	return &Dispatcher{coordinator: coord, pool: workerPool}
}

// ProcessBatch submits each intent to CreateTransfer via the shared worker
// pool and awaits all completions, preserving input ordering in the output.
// Per-intent failures never drop other slots.
func (d *Dispatcher) ProcessBatch(ctx context.Context, intents []domain.Intent) ([]*domain.Record, error) {
	if len(intents) == 0 || len(intents) > MaxBatchSize {
		return nil, apperr.Wrap(apperr.KindInvalidRequest, "batch size must be between 1 and 20", nil)
	}

	results := make([]*domain.Record, len(intents))
	var wg sync.WaitGroup
	wg.Add(len(intents))

	for i, intent := range intents {
		i, intent := i, intent
		go func() {
			defer wg.Done()
			err := d.pool.Run(ctx, func(taskCtx context.Context) {
				record, err := d.coordinator.CreateTransfer(taskCtx, intent)
				if err != nil {
					results[i] = failedSlot(intent, err)
					return
				}
				results[i] = record
			})
			if err != nil {
				// Pool slot acquisition failed (context cancelled); represent
				// as a failed slot rather than dropping it.
				results[i] = failedSlot(intent, err)
			}
		}()
	}

	wg.Wait()
	return results, nil
}

func failedSlot(intent domain.Intent, err error) *domain.Record {
	return &domain.Record{
		IdempotencyKey: intent.IdempotencyKey,
		FromAccountID:  intent.FromAccountID,
		ToAccountID:    intent.ToAccountID,
		Amount:         intent.Amount,
		Status:         domain.StatusFailed,
		ErrorMessage:   err.Error(),
	}
}
