package models

import (
	"time"
)

// AccountStatus represents whether an account may be mutated
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusBanned    AccountStatus = "banned"
)

// IsValid reports whether s is a known account status
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusBanned:
		return true
	}
	return false
}

// Account represents a wallet owner. Balances are not stored here; they are
// derived from the ledger and cached by the account registry.
type Account struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"user_id"` // Opaque chat user identifier
	Status    AccountStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// IsActive returns true if the account accepts balance mutations
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
