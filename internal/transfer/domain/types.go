// Package domain holds the Transfer Coordinator's persisted entity: the
// Transfer Record.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Record is the coordinator's own view of a transfer's lifecycle, owned by
// the coordinator rather than the ledger: it never participates in the
// ledger's transaction.
type Record struct {
	ID             int64           `json:"id"`
	TransferID     string          `json:"transferId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	RequestHash    string          `json:"-"`
	FromAccountID  int64           `json:"fromAccountId"`
	ToAccountID    int64           `json:"toAccountId"`
	Amount         decimal.Decimal `json:"amount"`
	Status         Status          `json:"status"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Intent is the client-facing request to move funds, before a transfer id
// has been synthesized.
type Intent struct {
	IdempotencyKey string
	FromAccountID  int64
	ToAccountID    int64
	Amount         decimal.Decimal
}

// Terminal reports whether the record has reached a terminal status; a
// terminal record is never mutated subsequently.
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
