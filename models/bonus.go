package models

import (
	"time"
)

// BonusType identifies a kind of promotional credit
type BonusType string

const (
	BonusTypeWelcome     BonusType = "welcome"
	BonusTypeDaily       BonusType = "daily"
	BonusTypePromotional BonusType = "promotional"
)

// BonusClaim records a granted bonus for streak and once-per-period checks
type BonusClaim struct {
	AccountID   string    `db:"account_id"`
	BonusType   BonusType `db:"bonus_type"`
	PeriodStart time.Time `db:"period_start"`
	Streak      int       `db:"streak"`
	Amount      int64     `db:"amount"`
	ClaimedAt   time.Time `db:"claimed_at"`
}

// DailyBonusResult is returned after a daily bonus claim
type DailyBonusResult struct {
	Result *TransactionResult
	Streak int
	Amount int64
}
