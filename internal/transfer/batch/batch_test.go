package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/transfer/domain"
	"github.com/ledgerops/platform/internal/transfer/pool"
)

type fakeCoordinator struct {
	responses map[string]*domain.Record
	errs      map[string]error
}

func (f *fakeCoordinator) CreateTransfer(ctx context.Context, intent domain.Intent) (*domain.Record, error) {
	if err, ok := f.errs[intent.IdempotencyKey]; ok {
		return nil, err
	}
	return f.responses[intent.IdempotencyKey], nil
}

func intent(key string, from, to int64, amount string) domain.Intent {
	return domain.Intent{
		IdempotencyKey: key,
		FromAccountID:  from,
		ToAccountID:    to,
		Amount:         decimal.RequireFromString(amount),
	}
}

func TestProcessBatch_RejectsEmptyAndOversizedBatches(t *testing.T) {
	d := New(&fakeCoordinator{}, pool.New(4))

	_, err := d.ProcessBatch(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	intents := make([]domain.Intent, 21)
	for i := range intents {
		intents[i] = intent(fmt.Sprintf("k%d", i), 1, 2, "1.00")
	}
	_, err = d.ProcessBatch(context.Background(), intents)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestProcessBatch_PreservesOrderAndIsolatesPartialFailure(t *testing.T) {
	fc := &fakeCoordinator{
		responses: map[string]*domain.Record{
			"k0": {IdempotencyKey: "k0", Status: domain.StatusCompleted},
			"k1": {IdempotencyKey: "k1", Status: domain.StatusCompleted},
		},
		errs: map[string]error{
			"k2": apperr.Wrap(apperr.KindInvalidRequest, "amount must be > 0", nil),
		},
	}
	d := New(fc, pool.New(2))

	intents := []domain.Intent{
		intent("k0", 1, 2, "10.00"),
		intent("k1", 2, 1, "5.00"),
		intent("k2", 1, 2, "-1.00"),
	}

	records, err := d.ProcessBatch(context.Background(), intents)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "k0", records[0].IdempotencyKey)
	assert.Equal(t, domain.StatusCompleted, records[0].Status)

	assert.Equal(t, "k1", records[1].IdempotencyKey)
	assert.Equal(t, domain.StatusCompleted, records[1].Status)

	assert.Equal(t, domain.StatusFailed, records[2].Status)
	assert.NotEmpty(t, records[2].ErrorMessage)
}
