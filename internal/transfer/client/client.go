// Package client is the resilient ledger client: it wraps the HTTP call from
// the coordinator to the Ledger Facade with bounded retry and a circuit
// breaker, as an explicit wrapper object composed around the call rather
// than declarative resilience annotations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/ledgerops/platform/internal/platform/breaker"
	"github.com/ledgerops/platform/internal/platform/logging"
	"github.com/ledgerops/platform/internal/platform/reqctx"
)

// Outcome is one of the three results ApplyTransfer can produce.
type Outcome int

const (
	Applied Outcome = iota
	Rejected
	Unavailable
)

// Result carries the outcome plus, for Rejected, the reason returned by
// the ledger facade.
type Result struct {
	Outcome Outcome
	Reason  string
}

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Breaker        breaker.Config
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cfg        Config
	breaker    *breaker.Breaker
}

func New(baseURL string, cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		breaker:    breaker.New(cfg.Breaker),
	}
}

type transferRequest struct {
	TransferID    string          `json:"transferId"`
	FromAccountID int64           `json:"fromAccountId"`
	ToAccountID   int64           `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ApplyTransfer calls POST /ledger/transfer under retry + breaker
// protection. Retryable failures are 5xx, connection errors, and timeouts;
// 4xx is never retried.
func (c *Client) ApplyTransfer(ctx context.Context, transferID string, fromID, toID int64, amount decimal.Decimal) (Result, error) {
	if err := c.breaker.Allow(); err != nil {
		return Result{Outcome: Unavailable, Reason: "circuit breaker open"}, nil
	}

	body, err := json.Marshal(transferRequest{
		TransferID:    transferID,
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
	})
	if err != nil {
		return Result{}, fmt.Errorf("client: marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	withCap := backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1))

	var result Result
	rejectedTerminal := false
	attempt := 0

	op := func() error {
		attempt++
		res, retryable, err := c.doOnce(ctx, body)
		if err != nil {
			if retryable {
				logging.L().Warn().
					Str("request_id", reqctx.RequestID(ctx)).
					Str("transfer_id", transferID).
					Int("attempt", attempt).
					Err(err).
					Msg("resilient client: retryable failure")
				return err
			}
			result = res
			rejectedTerminal = true
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(withCap, ctx))
	if rejectedTerminal {
		// Deterministic rejection; never retried, and does not count as a
		// breaker failure — the downstream call itself succeeded at
		// answering, it just said no.
		c.breaker.Report(true)
		return result, nil
	}
	if err != nil {
		// Retries exhausted on a retryable condition, or context cancelled.
		c.breaker.Report(false)
		return Result{Outcome: Unavailable, Reason: "ledger unavailable"}, nil
	}

	c.breaker.Report(true)
	return result, nil
}

// doOnce issues a single HTTP attempt. The bool return reports whether a
// non-nil error is retryable.
func (c *Client) doOnce(ctx context.Context, body []byte) (Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ledger/transfer", bytes.NewReader(body))
	if err != nil {
		return Result{}, false, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id := reqctx.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection errors and timeouts are retryable.
		return Result{}, true, fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var tr transferResponse
		if err := json.Unmarshal(respBody, &tr); err != nil {
			return Result{}, false, fmt.Errorf("client: decode response: %w", err)
		}
		return Result{Outcome: Applied}, false, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var er errorResponse
		_ = json.Unmarshal(respBody, &er)
		reason := er.Error
		if reason == "" {
			reason = fmt.Sprintf("rejected with status %d", resp.StatusCode)
		}
		return Result{Outcome: Rejected, Reason: reason}, false, fmt.Errorf("client: rejected: %s", reason)

	default:
		// 5xx is retryable.
		return Result{}, true, fmt.Errorf("client: ledger returned status %d", resp.StatusCode)
	}
}
