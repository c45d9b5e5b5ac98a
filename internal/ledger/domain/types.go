// Package domain holds the Ledger Engine's persisted entities: Account and
// Journal Entry. Money is shopspring/decimal throughout — this platform
// forbids floating point for monetary values.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds an arbitrary-precision balance rather than an int64
// minor-unit count, so amounts of any currency scale round-trip exactly.
type Account struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// EntryType is DEBIT or CREDIT, one half of a double-entry pair.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// JournalEntry is one append-only leg of a transfer's double-entry pair.
type JournalEntry struct {
	ID         int64           `json:"id"`
	TransferID string          `json:"transfer_id"`
	AccountID  int64           `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	Type       EntryType       `json:"type"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TransferOutcome is the result of applyTransfer: either this call created
// the journal pair, or an identical transfer_id was already applied and
// this call is a no-op replay.
type TransferOutcome struct {
	TransferID     string
	AlreadyApplied bool
}
