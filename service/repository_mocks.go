package service

import (
	"context"
	"time"

	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, id, userID string) (*models.Account, bool, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Account), args.Bool(1), args.Error(2)
}

func (m *MockAccountRepository) LockForUpdate(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateStatus(ctx context.Context, id string, status models.AccountStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockAccountRepository) CountByStatus(ctx context.Context) (map[models.AccountStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.AccountStatus]int), args.Error(1)
}

// MockLedgerRepository is a mock implementation of LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) LatestBalance(ctx context.Context, accountID, currency string) (int64, error) {
	args := m.Called(ctx, accountID, currency)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) ListPage(ctx context.Context, accountID, currency string, afterID int64, rng models.HistoryRange, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, accountID, currency, afterID, rng, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) GetByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) SumBalances(ctx context.Context) ([]models.BalanceSum, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BalanceSum), args.Error(1)
}

func (m *MockLedgerRepository) SumDebitsSince(ctx context.Context, accountID, currency string, kind models.EntryKind, since time.Time) (int64, error) {
	args := m.Called(ctx, accountID, currency, kind, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) TotalsByKind(ctx context.Context, currency string) (map[models.EntryKind]int64, error) {
	args := m.Called(ctx, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.EntryKind]int64), args.Error(1)
}

// MockOperationRepository is a mock implementation of OperationRepository
type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Get(ctx context.Context, key string) (*models.OperationRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OperationRecord), args.Error(1)
}

func (m *MockOperationRepository) Insert(ctx context.Context, record *models.OperationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockPaymentRequestRepository is a mock implementation of PaymentRequestRepository
type MockPaymentRequestRepository struct {
	mock.Mock
}

func (m *MockPaymentRequestRepository) Create(ctx context.Context, request *models.PaymentRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockPaymentRequestRepository) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) GetBySubmitKey(ctx context.Context, key string) (*models.PaymentRequest, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) SetTrxID(ctx context.Context, id, trxID string) (bool, error) {
	args := m.Called(ctx, id, trxID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRequestRepository) MarkDecided(ctx context.Context, id string, status models.PaymentStatus, operatorID *string, reason string, ledgerEntryID *int64, decidedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, status, operatorID, reason, ledgerEntryID, decidedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRequestRepository) ListPending(ctx context.Context) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.PaymentRequest, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentRequest), args.Error(1)
}

func (m *MockPaymentRequestRepository) CountPending(ctx context.Context) (map[models.PaymentDirection]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.PaymentDirection]int), args.Error(1)
}

// MockGameRoundRepository is a mock implementation of GameRoundRepository
type MockGameRoundRepository struct {
	mock.Mock
}

func (m *MockGameRoundRepository) Create(ctx context.Context, round *models.GameRound) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockGameRoundRepository) GetByID(ctx context.Context, id string) (*models.GameRound, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GameRound), args.Error(1)
}

func (m *MockGameRoundRepository) Settle(ctx context.Context, round *models.GameRound) (bool, error) {
	args := m.Called(ctx, round)
	return args.Bool(0), args.Error(1)
}

func (m *MockGameRoundRepository) ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.GameRound, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GameRound), args.Error(1)
}

func (m *MockGameRoundRepository) StatsByAccount(ctx context.Context, accountID string) ([]*models.GameStats, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GameStats), args.Error(1)
}

// MockBonusClaimRepository is a mock implementation of BonusClaimRepository
type MockBonusClaimRepository struct {
	mock.Mock
}

func (m *MockBonusClaimRepository) Create(ctx context.Context, claim *models.BonusClaim) error {
	args := m.Called(ctx, claim)
	return args.Error(0)
}

func (m *MockBonusClaimRepository) GetLatest(ctx context.Context, accountID string, bonusType models.BonusType) (*models.BonusClaim, error) {
	args := m.Called(ctx, accountID, bonusType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BonusClaim), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository
// accessors return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock

	accounts  AccountRepository
	ledger    LedgerRepository
	ops       OperationRepository
	payments  PaymentRequestRepository
	rounds    GameRoundRepository
	bonuses   BonusClaimRepository
	publisher EventPublisher
}

// SetRepositories installs the repositories the unit of work hands out. Nil
// arguments leave the current value.
func (m *MockUnitOfWork) SetRepositories(accounts AccountRepository, ledger LedgerRepository, ops OperationRepository, payments PaymentRequestRepository, rounds GameRoundRepository, bonuses BonusClaimRepository, publisher EventPublisher) {
	if accounts != nil {
		m.accounts = accounts
	}
	if ledger != nil {
		m.ledger = ledger
	}
	if ops != nil {
		m.ops = ops
	}
	if payments != nil {
		m.payments = payments
	}
	if rounds != nil {
		m.rounds = rounds
	}
	if bonuses != nil {
		m.bonuses = bonuses
	}
	if publisher != nil {
		m.publisher = publisher
	}
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository               { return m.accounts }
func (m *MockUnitOfWork) LedgerRepository() LedgerRepository                 { return m.ledger }
func (m *MockUnitOfWork) OperationRepository() OperationRepository           { return m.ops }
func (m *MockUnitOfWork) PaymentRequestRepository() PaymentRequestRepository { return m.payments }
func (m *MockUnitOfWork) GameRoundRepository() GameRoundRepository           { return m.rounds }
func (m *MockUnitOfWork) BonusClaimRepository() BonusClaimRepository         { return m.bonuses }
func (m *MockUnitOfWork) EventBus() EventPublisher                           { return m.publisher }

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockMetrics records calls for assertions
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) RecordOperation(kind models.OperationKind, outcome string, duration time.Duration) {
	m.Called(kind, outcome, duration)
}

func (m *MockMetrics) RecordRound(game string, status models.RoundStatus) {
	m.Called(game, status)
}

func (m *MockMetrics) RecordPaymentDecision(direction models.PaymentDirection, status models.PaymentStatus) {
	m.Called(direction, status)
}

func (m *MockMetrics) RecordIntegrityFault(reason string) {
	m.Called(reason)
}
