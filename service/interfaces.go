package service

import (
	"context"
	"time"

	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
)

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByID retrieves an account, returning nil if it does not exist
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// GetByUserID retrieves the account owned by a chat user
	GetByUserID(ctx context.Context, userID string) (*models.Account, error)

	// Create inserts an account for userID. If one already exists it is
	// returned with created=false.
	Create(ctx context.Context, id, userID string) (account *models.Account, created bool, err error)

	// LockForUpdate retrieves an account and holds a row lock until the transaction ends
	LockForUpdate(ctx context.Context, id string) (*models.Account, error)

	// UpdateStatus changes the account status
	UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error

	// List returns all accounts ordered by creation time
	List(ctx context.Context) ([]*models.Account, error)

	// CountByStatus returns the number of accounts per status
	CountByStatus(ctx context.Context) (map[models.AccountStatus]int, error)
}

// LedgerRepository defines the interface for the append-only ledger
type LedgerRepository interface {
	// Insert appends an entry, filling in its ID and CreatedAt
	Insert(ctx context.Context, entry *models.LedgerEntry) error

	// LatestBalance returns balance_after of the newest entry, or 0 if none
	LatestBalance(ctx context.Context, accountID, currency string) (int64, error)

	// ListPage returns up to limit entries with id > afterID inside the range, oldest first
	ListPage(ctx context.Context, accountID, currency string, afterID int64, rng models.HistoryRange, limit int) ([]*models.LedgerEntry, error)

	// GetByReference returns all entries sharing a reference id
	GetByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error)

	// SumBalances folds every account and currency from its entries
	SumBalances(ctx context.Context) ([]models.BalanceSum, error)

	// SumDebitsSince returns the positive total debited with kind since a time
	SumDebitsSince(ctx context.Context, accountID, currency string, kind models.EntryKind, since time.Time) (int64, error)

	// TotalsByKind returns the signed sum of entries per kind for a currency
	TotalsByKind(ctx context.Context, currency string) (map[models.EntryKind]int64, error)
}

// OperationRepository stores idempotency records
type OperationRepository interface {
	// Get returns the record for key, or nil if the key was never applied
	Get(ctx context.Context, key string) (*models.OperationRecord, error)

	// Insert stores a record. Returns ErrDuplicateOperation if the key exists.
	Insert(ctx context.Context, record *models.OperationRecord) error
}

// PaymentRequestRepository defines the interface for manual payment requests
type PaymentRequestRepository interface {
	// Create inserts a new pending request. Returns ErrDuplicateOperation if
	// the submit key is already used and ErrDuplicateTransfer if another live
	// request holds the same transfer id.
	Create(ctx context.Context, request *models.PaymentRequest) error

	// GetByID retrieves a request, returning nil if it does not exist
	GetByID(ctx context.Context, id string) (*models.PaymentRequest, error)

	// GetBySubmitKey retrieves the request submitted with key, or nil
	GetBySubmitKey(ctx context.Context, key string) (*models.PaymentRequest, error)

	// SetTrxID records the transfer id of a pending request. Returns false if
	// the request was no longer pending.
	SetTrxID(ctx context.Context, id, trxID string) (bool, error)

	// MarkDecided moves a pending request to a terminal status. Returns false
	// if the request was no longer pending.
	MarkDecided(ctx context.Context, id string, status models.PaymentStatus, operatorID *string, reason string, ledgerEntryID *int64, decidedAt time.Time) (bool, error)

	// ListPending returns pending requests, oldest first
	ListPending(ctx context.Context) ([]*models.PaymentRequest, error)

	// ListExpired returns pending requests whose expiry is at or before now
	ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error)

	// ListByAccount returns the most recent requests for an account
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.PaymentRequest, error)

	// CountPending returns pending requests per direction
	CountPending(ctx context.Context) (map[models.PaymentDirection]int, error)
}

// GameRoundRepository defines the interface for game round data access
type GameRoundRepository interface {
	// Create inserts a round
	Create(ctx context.Context, round *models.GameRound) error

	// GetByID retrieves a round, returning nil if it does not exist
	GetByID(ctx context.Context, id string) (*models.GameRound, error)

	// Settle moves an opened round to resolved or refunded. Returns false if
	// the round was not opened.
	Settle(ctx context.Context, round *models.GameRound) (bool, error)

	// ListOpenedBefore returns rounds still opened that were opened before cutoff
	ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.GameRound, error)

	// StatsByAccount returns per-game statistics for an account
	StatsByAccount(ctx context.Context, accountID string) ([]*models.GameStats, error)
}

// BonusClaimRepository tracks granted bonuses
type BonusClaimRepository interface {
	// Create records a claim
	Create(ctx context.Context, claim *models.BonusClaim) error

	// GetLatest returns the newest claim of a type, or nil
	GetLatest(ctx context.Context, accountID string, bonusType models.BonusType) (*models.BonusClaim, error)
}

// EventPublisher stages events inside a unit of work
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork scopes repositories to a single database transaction
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	AccountRepository() AccountRepository
	LedgerRepository() LedgerRepository
	OperationRepository() OperationRepository
	PaymentRequestRepository() PaymentRequestRepository
	GameRoundRepository() GameRoundRepository
	BonusClaimRepository() BonusClaimRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// Metrics receives counters from the core. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordOperation(kind models.OperationKind, outcome string, duration time.Duration)
	RecordRound(game string, status models.RoundStatus)
	RecordPaymentDecision(direction models.PaymentDirection, status models.PaymentStatus)
	RecordIntegrityFault(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(models.OperationKind, string, time.Duration)         {}
func (noopMetrics) RecordRound(string, models.RoundStatus)                              {}
func (noopMetrics) RecordPaymentDecision(models.PaymentDirection, models.PaymentStatus) {}
func (noopMetrics) RecordIntegrityFault(string)                                         {}

// NoopMetrics returns a Metrics that discards everything
func NoopMetrics() Metrics {
	return noopMetrics{}
}
