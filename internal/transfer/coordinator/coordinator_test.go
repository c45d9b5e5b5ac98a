package coordinator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ledgerops/platform/internal/platform/apperr"
	"github.com/ledgerops/platform/internal/platform/breaker"
	"github.com/ledgerops/platform/internal/platform/config"
	"github.com/ledgerops/platform/internal/platform/dbconn"
	tclient "github.com/ledgerops/platform/internal/transfer/client"
	"github.com/ledgerops/platform/internal/transfer/coordinator"
	"github.com/ledgerops/platform/internal/transfer/domain"
	"github.com/ledgerops/platform/internal/transfer/pool"
)

// setupCoordinator starts a real Postgres (for the transfer_records store)
// and a fake ledger HTTP server (so the asynchronous application step has
// something to call), and wires both into a *coordinator.Coordinator exactly
// as cmd/coordinator does.
func setupCoordinator(t *testing.T, ledgerHandler http.HandlerFunc) *coordinator.Coordinator {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("transfers"),
		tcpostgres.WithUsername("transfers"),
		tcpostgres.WithPassword("transfers_test_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres testcontainer")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres testcontainer: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dbPool, err := dbconn.Open(ctx, connStr, config.DDLCreate)
	require.NoError(t, err)
	t.Cleanup(dbPool.Close)

	ledger := httptest.NewServer(ledgerHandler)
	t.Cleanup(ledger.Close)

	ledgerClient := tclient.New(ledger.URL, tclient.Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Breaker: breaker.Config{
			WindowSize:        20,
			FailureRateThresh: 0.5,
			OpenDuration:      50 * time.Millisecond,
			HalfOpenProbes:    1,
		},
	})

	workerPool := pool.New(4)
	return coordinator.New(dbPool, ledgerClient, workerPool)
}

func eventuallyStatus(t *testing.T, c *coordinator.Coordinator, transferID string, want domain.Status) *domain.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := c.GetTransfer(context.Background(), transferID)
		require.NoError(t, err)
		require.NotNil(t, record)
		if record.Status == want {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("transfer %s did not reach status %s in time", transferID, want)
	return nil
}

func TestCreateTransfer_AppliedEndsCompleted(t *testing.T) {
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	record, err := c.CreateTransfer(context.Background(), domain.Intent{
		IdempotencyKey: "idem-1",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.Status, "CreateTransfer must return PENDING immediately")

	eventuallyStatus(t, c, record.TransferID, domain.StatusCompleted)
}

func TestCreateTransfer_RejectedByLedgerEndsFailed(t *testing.T) {
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	})

	record, err := c.CreateTransfer(context.Background(), domain.Intent{
		IdempotencyKey: "idem-2",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.Status)

	final := eventuallyStatus(t, c, record.TransferID, domain.StatusFailed)
	assert.Equal(t, "insufficient funds", final.ErrorMessage)
}

func TestCreateTransfer_SameIdempotencyKeyReturnsSameRecordAndDispatchesOnce(t *testing.T) {
	var calls int32
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	intent := domain.Intent{
		IdempotencyKey: "idem-3",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("10.00"),
	}

	first, err := c.CreateTransfer(context.Background(), intent)
	require.NoError(t, err)

	eventuallyStatus(t, c, first.TransferID, domain.StatusCompleted)

	second, err := c.CreateTransfer(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, first.TransferID, second.TransferID, "a replayed idempotency key must return the original transfer")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a replayed idempotency key must never re-dispatch to the ledger")
}

func TestCreateTransfer_SameKeyDifferentPayloadIsIdempotencyConflict(t *testing.T) {
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	intent := domain.Intent{
		IdempotencyKey: "idem-4",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("10.00"),
	}
	_, err := c.CreateTransfer(context.Background(), intent)
	require.NoError(t, err)

	mutated := intent
	mutated.Amount = decimal.RequireFromString("99.00")
	_, err = c.CreateTransfer(context.Background(), mutated)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIdempotencyConflict))
}

func TestCreateTransfer_RejectsInvalidIntents(t *testing.T) {
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := c.CreateTransfer(context.Background(), domain.Intent{
		IdempotencyKey: "idem-5",
		FromAccountID:  1,
		ToAccountID:    1,
		Amount:         decimal.RequireFromString("10.00"),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))

	_, err = c.CreateTransfer(context.Background(), domain.Intent{
		IdempotencyKey: "idem-6",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("0.00"),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidRequest))
}

func TestSweepPending_LeavesTerminalRecordsAlone(t *testing.T) {
	var calls int32
	c := setupCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	// Drive a record to COMPLETED through CreateTransfer's own dispatch, then
	// sweep with a negative age so every PENDING record would qualify.
	record, err := c.CreateTransfer(context.Background(), domain.Intent{
		IdempotencyKey: "idem-7",
		FromAccountID:  1,
		ToAccountID:    2,
		Amount:         decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)
	eventuallyStatus(t, c, record.TransferID, domain.StatusCompleted)

	n, err := c.SweepPending(context.Background(), -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a record already COMPLETED must never be swept")
}
