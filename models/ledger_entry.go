package models

import (
	"time"
)

// EntryKind represents the business reason for a ledger entry
type EntryKind string

const (
	EntryKindDeposit    EntryKind = "deposit"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindBetStake   EntryKind = "bet_stake"
	EntryKindBetPayout  EntryKind = "bet_payout"
	EntryKindBonus      EntryKind = "bonus"
	EntryKindAdjustment EntryKind = "adjustment"
)

// LedgerEntry is an immutable, signed balance change. Corrections are made by
// appending an offsetting adjustment, never by editing an entry.
type LedgerEntry struct {
	ID           int64          `db:"id" json:"id"`
	AccountID    string         `db:"account_id" json:"account_id"`
	Currency     string         `db:"currency" json:"currency"`
	Amount       int64          `db:"amount" json:"amount"` // Positive for credits, negative for debits
	Kind         EntryKind      `db:"kind" json:"kind"`
	ReferenceID  string         `db:"reference_id" json:"reference_id,omitempty"`
	OperationKey string         `db:"operation_key" json:"operation_key"`
	BalanceAfter int64          `db:"balance_after" json:"balance_after"`
	Metadata     map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// BalanceBefore returns the balance prior to this entry
func (e *LedgerEntry) BalanceBefore() int64 {
	return e.BalanceAfter - e.Amount
}

// EntryDraft is the caller-supplied part of a ledger entry. The ledger store
// fills in the id, timestamp and balance snapshot.
type EntryDraft struct {
	AccountID    string
	Currency     string
	Amount       int64
	Kind         EntryKind
	ReferenceID  string
	OperationKey string
	Metadata     map[string]any
}

// HistoryRange bounds a ledger history read. Zero times are open bounds.
type HistoryRange struct {
	From time.Time
	To   time.Time
}

// BalanceSum is the ledger-derived balance of one account in one currency
type BalanceSum struct {
	AccountID string `db:"account_id"`
	Currency  string `db:"currency"`
	Balance   int64  `db:"balance"`
}
