package models

import (
	"time"
)

// RoundStatus tracks a game round through its lifecycle
type RoundStatus string

const (
	RoundStatusOpened   RoundStatus = "opened"
	RoundStatusResolved RoundStatus = "resolved"
	RoundStatusRefunded RoundStatus = "refunded"
)

// GameRound is a single play of a game
type GameRound struct {
	ID         string      `db:"id" json:"id"`
	AccountID  string      `db:"account_id" json:"account_id"`
	Game       string      `db:"game" json:"game"`
	Currency   string      `db:"currency" json:"currency"`
	Stake      int64       `db:"stake" json:"stake"`
	Outcome    string      `db:"outcome" json:"outcome,omitempty"` // Opaque to the ledger
	Multiplier string      `db:"multiplier" json:"multiplier,omitempty"`
	Payout     int64       `db:"payout" json:"payout"`
	Status     RoundStatus `db:"status" json:"status"`
	OpenedAt   time.Time   `db:"opened_at" json:"opened_at"`
	ResolvedAt *time.Time  `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Won returns true if the round paid out more than the stake
func (r *GameRound) Won() bool {
	return r.Status == RoundStatusResolved && r.Payout > r.Stake
}

// RoundResult is returned to the caller after a round is settled
type RoundResult struct {
	Round   *GameRound         `json:"round"`
	Result  *TransactionResult `json:"result"`
	Balance int64              `json:"balance"`
}

// GameStats summarizes the rounds played by one account
type GameStats struct {
	Game        string `db:"game" json:"game"`
	Rounds      int64  `db:"rounds" json:"rounds"`
	Wins        int64  `db:"wins" json:"wins"`
	TotalStaked int64  `db:"total_staked" json:"total_staked"`
	TotalPaid   int64  `db:"total_paid" json:"total_paid"`
}
