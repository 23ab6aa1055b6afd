package models

import (
	"time"
)

// PaymentDirection is either money coming in or going out
type PaymentDirection string

const (
	PaymentDirectionDeposit    PaymentDirection = "deposit"
	PaymentDirectionWithdrawal PaymentDirection = "withdrawal"
)

// PaymentStatus represents the state of a manual payment request
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
	PaymentStatusExpired  PaymentStatus = "expired"
)

// IsTerminal returns true for states that can never change again
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusRejected || s == PaymentStatusExpired
}

// PaymentRequest is a deposit or withdrawal awaiting operator confirmation
type PaymentRequest struct {
	ID            string           `db:"id" json:"id"`
	SubmitKey     *string          `db:"submit_key" json:"-"` // Idempotency key of the submitting message
	AccountID     string           `db:"account_id" json:"account_id"`
	Direction     PaymentDirection `db:"direction" json:"direction"`
	Currency      string           `db:"currency" json:"currency"`
	Amount        int64            `db:"amount" json:"amount"`
	Fee           int64            `db:"fee" json:"fee"`
	NetAmount     int64            `db:"net_amount" json:"net_amount"` // Amount credited for deposits, paid out for withdrawals
	Method        string           `db:"method" json:"method"`
	Destination   string           `db:"destination" json:"destination,omitempty"`
	TrxID         *string          `db:"trx_id" json:"trx_id,omitempty"` // Transfer id issued by the mobile payment provider
	Status        PaymentStatus    `db:"status" json:"status"`
	Reason        string           `db:"reason" json:"reason,omitempty"`
	DecidedBy     *string          `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time       `db:"decided_at" json:"decided_at,omitempty"`
	LedgerEntryID *int64           `db:"ledger_entry_id" json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time        `db:"expires_at" json:"expires_at"`
}

// IsPending returns true if the request still awaits a decision
func (r *PaymentRequest) IsPending() bool {
	return r.Status == PaymentStatusPending
}

// PaymentDecision is returned to the operator after deciding a request
type PaymentDecision struct {
	Request   *PaymentRequest    `json:"request"`
	Result    *TransactionResult `json:"result,omitempty"` // Nil for rejections
	Duplicate bool               `json:"duplicate"`
}
