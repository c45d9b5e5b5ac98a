package client

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

	"github.com/ledgerops/platform/internal/platform/breaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(srv.URL, Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Breaker: breaker.Config{
			WindowSize:        4,
			FailureRateThresh: 0.5,
			OpenDuration:      50 * time.Millisecond,
			HalfOpenProbes:    1,
		},
	})
	return c, srv
}

func TestApplyTransfer_Applied(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})
	defer srv.Close()

	res, err := c.ApplyTransfer(context.Background(), "t1", 1, 2, decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, Applied, res.Outcome)
}

func TestApplyTransfer_RejectedNeverRetried(t *testing.T) {
	var attempts int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "insufficient funds"})
	})
	defer srv.Close()

	res, err := c.ApplyTransfer(context.Background(), "t2", 1, 2, decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, Rejected, res.Outcome)
	assert.Equal(t, "insufficient funds", res.Reason)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx must never be retried")
}

func TestApplyTransfer_5xxRetriedThenUnavailable(t *testing.T) {
	var attempts int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	res, err := c.ApplyTransfer(context.Background(), "t3", 1, 2, decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res.Outcome)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts), "maxAttempts=3 must be exhausted")
}

func TestApplyTransfer_BreakerOpensAndFailsFastWithoutNetworkCall(t *testing.T) {
	var attempts int32
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	// Each call makes 3 attempts internally and reports one breaker failure.
	// WindowSize=4 means the 4th call's report trips the breaker open.
	for i := 0; i < 4; i++ {
		_, err := c.ApplyTransfer(context.Background(), "warm", 1, 2, decimal.RequireFromString("10"))
		require.NoError(t, err)
	}

	before := atomic.LoadInt32(&attempts)
	res, err := c.ApplyTransfer(context.Background(), "t5", 1, 2, decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, Unavailable, res.Outcome)
	assert.Equal(t, before, atomic.LoadInt32(&attempts), "breaker open must short-circuit before any network call")
}
