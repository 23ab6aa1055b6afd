package models

// LedgerTotals is a read-only projection of ledger activity for one currency
type LedgerTotals struct {
	Currency         string
	Deposits         int64
	Withdrawals      int64 // Positive total of withdrawn amounts
	Stakes           int64 // Positive total of stakes
	Payouts          int64
	Bonuses          int64
	Adjustments      int64 // Signed
	HouseResult      int64 // Stakes minus payouts
	Outstanding      int64 // Sum of all balances
	PendingDeposits  int
	PendingWithdraws int
	AccountsByStatus map[AccountStatus]int
}

// AccountSummary is the read-only view of a single account
type AccountSummary struct {
	Account  *Account
	Balances map[string]int64
	Games    []*GameStats
}

// IntegrityFault describes a detected inconsistency that suspends an account
type IntegrityFault struct {
	AccountID string
	Currency  string
	Reason    string
	Expected  int64
	Actual    int64
	Reference string
}

// ReconcileReport summarizes a reconciliation pass
type ReconcileReport struct {
	Checked int
	Faults  []IntegrityFault
}
