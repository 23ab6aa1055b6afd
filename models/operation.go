package models

import (
	"time"
)

// OperationKind identifies the transaction type applied by the coordinator
type OperationKind string

const (
	OperationKindDeposit       OperationKind = "deposit"
	OperationKindWithdrawal    OperationKind = "withdrawal"
	OperationKindBetStake      OperationKind = "bet_stake"
	OperationKindBetPayout     OperationKind = "bet_payout"
	OperationKindBetSettlement OperationKind = "bet_settlement"
	OperationKindBonus         OperationKind = "bonus"
	OperationKindAdjustment    OperationKind = "adjustment"
)

// TransactionResult describes a committed operation. It is stored alongside
// the entries so that a replayed idempotency key returns the same value.
type TransactionResult struct {
	OperationKey string         `json:"operation_key"`
	Kind         OperationKind  `json:"kind"`
	AccountID    string         `json:"account_id"`
	Currency     string         `json:"currency"`
	ReferenceID  string         `json:"reference_id,omitempty"`
	Entries      []*LedgerEntry `json:"entries"`
	Balance      int64          `json:"balance"` // Balance after the last entry
	CommittedAt  time.Time      `json:"committed_at"`
	Duplicate    bool           `json:"-"` // Set when the key had already been applied
}

// NetAmount returns the sum of all entry amounts in the result
func (r *TransactionResult) NetAmount() int64 {
	var net int64
	for _, e := range r.Entries {
		net += e.Amount
	}
	return net
}

// OperationRecord persists the result of an applied idempotency key
type OperationRecord struct {
	Key       string             `db:"key"`
	AccountID string             `db:"account_id"`
	Kind      OperationKind      `db:"kind"`
	Result    *TransactionResult `db:"result"`
	CreatedAt time.Time          `db:"created_at"`
}
