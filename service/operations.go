package service

import (
	"context"

	"github.com/master-pd/MARPD-MAX/models"
)

// Operation is a typed balance mutation applied by the Coordinator. The set
// of operations is closed; each one expands into the ledger legs it writes.
type Operation interface {
	IdempotencyKey() string
	Account() string
	plan() operationPlan
}

// leg is one ledger entry an operation will write. Zero-amount legs are skipped.
type leg struct {
	amount   int64
	kind     models.EntryKind
	metadata map[string]any
}

// txHook runs inside the operation's transaction after the entries are appended
type txHook func(ctx context.Context, uow UnitOfWork, entries []*models.LedgerEntry) error

type operationPlan struct {
	kind        models.OperationKind
	currency    string
	referenceID string
	legs        []leg
	withdrawal  bool // Counts against the per-period withdrawal limit
	settlesHeld bool // Returns a stake already debited; allowed on inactive accounts
	after       txHook
}

// Deposit credits money confirmed by an operator
type Deposit struct {
	Key       string `validate:"required"`
	AccountID string `validate:"required"`
	Currency  string `validate:"required"`
	Amount    int64  `validate:"gt=0"`
	Method    string
	RequestID string

	after txHook
}

func (o *Deposit) IdempotencyKey() string { return o.Key }
func (o *Deposit) Account() string        { return o.AccountID }

func (o *Deposit) plan() operationPlan {
	return operationPlan{
		kind:        models.OperationKindDeposit,
		currency:    o.Currency,
		referenceID: o.RequestID,
		legs: []leg{{
			amount:   o.Amount,
			kind:     models.EntryKindDeposit,
			metadata: compactMetadata(map[string]any{"method": o.Method}),
		}},
		after: o.after,
	}
}

// Withdrawal debits money paid out by an operator
type Withdrawal struct {
	Key       string `validate:"required"`
	AccountID string `validate:"required"`
	Currency  string `validate:"required"`
	Amount    int64  `validate:"gt=0"`
	Method    string
	RequestID string

	after txHook
}

func (o *Withdrawal) IdempotencyKey() string { return o.Key }
func (o *Withdrawal) Account() string        { return o.AccountID }

func (o *Withdrawal) plan() operationPlan {
	return operationPlan{
		kind:        models.OperationKindWithdrawal,
		currency:    o.Currency,
		referenceID: o.RequestID,
		legs: []leg{{
			amount:   -o.Amount,
			kind:     models.EntryKindWithdrawal,
			metadata: compactMetadata(map[string]any{"method": o.Method}),
		}},
		withdrawal: true,
		after:      o.after,
	}
}

// BetStake debits the stake of a round that is resolved later
type BetStake struct {
	Key       string `validate:"required"`
	AccountID string `validate:"required"`
	Currency  string `validate:"required"`
	RoundID   string `validate:"required"`
	Game      string
	Amount    int64 `validate:"gt=0"`

	after txHook
}

func (o *BetStake) IdempotencyKey() string { return o.Key }
func (o *BetStake) Account() string        { return o.AccountID }

func (o *BetStake) plan() operationPlan {
	return operationPlan{
		kind:        models.OperationKindBetStake,
		currency:    o.Currency,
		referenceID: o.RoundID,
		legs: []leg{{
			amount:   -o.Amount,
			kind:     models.EntryKindBetStake,
			metadata: compactMetadata(map[string]any{"game": o.Game}),
		}},
		after: o.after,
	}
}

// BetPayout credits the payout of a previously staked round. A zero payout
// writes no entry but still consumes the key.
type BetPayout struct {
	Key       string `validate:"required"`
	AccountID string `validate:"required"`
	Currency  string `validate:"required"`
	RoundID   string `validate:"required"`
	Game      string
	Amount    int64 `validate:"gte=0"`
	Outcome   string
	Refund    bool

	after txHook
}

func (o *BetPayout) IdempotencyKey() string { return o.Key }
func (o *BetPayout) Account() string        { return o.AccountID }

func (o *BetPayout) plan() operationPlan {
	meta := map[string]any{"game": o.Game, "outcome": o.Outcome}
	if o.Refund {
		meta["refund"] = true
	}
	return operationPlan{
		kind:        models.OperationKindBetPayout,
		currency:    o.Currency,
		referenceID: o.RoundID,
		legs: []leg{{
			amount:   o.Amount,
			kind:     models.EntryKindBetPayout,
			metadata: compactMetadata(meta),
		}},
		settlesHeld: true,
		after:       o.after,
	}
}

// BetSettlement debits a stake and credits its payout in one transaction
type BetSettlement struct {
	Key       string `validate:"required"`
	AccountID string `validate:"required"`
	Currency  string `validate:"required"`
	RoundID   string `validate:"required"`
	Game      string
	Stake     int64 `validate:"gt=0"`
	Payout    int64 `validate:"gte=0"`
	Outcome   string

	after txHook
}

func (o *BetSettlement) IdempotencyKey() string { return o.Key }
func (o *BetSettlement) Account() string        { return o.AccountID }

func (o *BetSettlement) plan() operationPlan {
	return operationPlan{
		kind:        models.OperationKindBetSettlement,
		currency:    o.Currency,
		referenceID: o.RoundID,
		legs: []leg{
			{
				amount:   -o.Stake,
				kind:     models.EntryKindBetStake,
				metadata: compactMetadata(map[string]any{"game": o.Game}),
			},
			{
				amount:   o.Payout,
				kind:     models.EntryKindBetPayout,
				metadata: compactMetadata(map[string]any{"game": o.Game, "outcome": o.Outcome}),
			},
		},
		after: o.after,
	}
}

// Bonus credits a promotional amount
type Bonus struct {
	Key       string           `validate:"required"`
	AccountID string           `validate:"required"`
	Currency  string           `validate:"required"`
	Amount    int64            `validate:"gt=0"`
	BonusType models.BonusType `validate:"required"`
	GrantedBy string

	after txHook
}

func (o *Bonus) IdempotencyKey() string { return o.Key }
func (o *Bonus) Account() string        { return o.AccountID }

func (o *Bonus) plan() operationPlan {
	return operationPlan{
		kind:     models.OperationKindBonus,
		currency: o.Currency,
		legs: []leg{{
			amount:   o.Amount,
			kind:     models.EntryKindBonus,
			metadata: compactMetadata(map[string]any{"bonus": string(o.BonusType), "granted_by": o.GrantedBy}),
		}},
		after: o.after,
	}
}

// Adjustment is an operator correction. It never edits an entry; it appends
// an offsetting one.
type Adjustment struct {
	Key         string `validate:"required"`
	AccountID   string `validate:"required"`
	Currency    string `validate:"required"`
	Amount      int64  `validate:"ne=0"`
	OperatorID  string `validate:"required"`
	Reason      string `validate:"required"`
	ReferenceID string // Entry or request being corrected, if any
}

func (o *Adjustment) IdempotencyKey() string { return o.Key }
func (o *Adjustment) Account() string        { return o.AccountID }

func (o *Adjustment) plan() operationPlan {
	return operationPlan{
		kind:        models.OperationKindAdjustment,
		currency:    o.Currency,
		referenceID: o.ReferenceID,
		legs: []leg{{
			amount:   o.Amount,
			kind:     models.EntryKindAdjustment,
			metadata: map[string]any{"operator": o.OperatorID, "reason": o.Reason},
		}},
	}
}

// compactMetadata drops empty string and nil values
func compactMetadata(meta map[string]any) map[string]any {
	for k, v := range meta {
		if v == nil || v == "" {
			delete(meta, k)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
