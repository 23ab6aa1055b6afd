package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockedServices wires the services over a single mocked unit of work
type mockedServices struct {
	uow      *MockUnitOfWork
	factory  *MockUnitOfWorkFactory
	ops      *MockOperationRepository
	payments *MockPaymentRequestRepository
	rounds   *MockGameRoundRepository
	bonuses  *MockBonusClaimRepository
	bus      *MockEventPublisher
	metrics  *MockMetrics

	coordinator *Coordinator
	queue       *PaymentQueue
	engine      *SettlementEngine
	bonusSvc    *BonusService
}

func newMockedServices(ctx context.Context, now time.Time) *mockedServices {
	m := &mockedServices{
		uow:      new(MockUnitOfWork),
		factory:  new(MockUnitOfWorkFactory),
		ops:      new(MockOperationRepository),
		payments: new(MockPaymentRequestRepository),
		rounds:   new(MockGameRoundRepository),
		bonuses:  new(MockBonusClaimRepository),
		bus:      new(MockEventPublisher),
		metrics:  new(MockMetrics),
	}
	m.uow.SetRepositories(new(MockAccountRepository), new(MockLedgerRepository), m.ops, m.payments, m.rounds, m.bonuses, m.bus)

	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)

	cfg := config.NewTestConfig()
	clock := func() time.Time { return now }

	registry := NewAccountRegistry(m.factory, new(MockLedgerRepository))
	m.coordinator = NewCoordinator(m.factory, NewLedgerStore(new(MockLedgerRepository)), registry, NewAccountLocks(), cfg, m.metrics)
	m.coordinator.now = clock
	m.queue = NewPaymentQueue(m.coordinator, registry, m.factory, cfg, m.metrics)
	m.queue.now = clock
	m.engine = NewSettlementEngine(m.coordinator, m.factory, cfg, &fixedRandom{}, m.metrics)
	m.engine.now = clock
	m.bonusSvc = NewBonusService(m.coordinator, m.factory, cfg)
	m.bonusSvc.now = clock
	return m
}

func (m *mockedServices) assertExpectations(t *testing.T) {
	t.Helper()
	m.factory.AssertExpectations(t)
	m.uow.AssertExpectations(t)
	m.ops.AssertExpectations(t)
	m.payments.AssertExpectations(t)
	m.rounds.AssertExpectations(t)
	m.bonuses.AssertExpectations(t)
	m.bus.AssertExpectations(t)
	m.metrics.AssertExpectations(t)
}

func pendingDeposit(now time.Time) *models.PaymentRequest {
	return &models.PaymentRequest{
		ID:        "req-1",
		AccountID: "acct-1",
		Direction: models.PaymentDirectionDeposit,
		Method:    "nagad",
		Currency:  "BDT",
		Amount:    5000,
		NetAmount: 5000,
		Status:    models.PaymentStatusPending,
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCoordinator_Apply_StoredResultIsReplayed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	stored := &models.TransactionResult{
		OperationKey: "adj-1",
		Kind:         models.OperationKindAdjustment,
		AccountID:    "acct-1",
		Currency:     "BDT",
		Balance:      700,
	}
	m.ops.On("Get", ctx, "adj-1").Return(&models.OperationRecord{
		Key:       "adj-1",
		AccountID: "acct-1",
		Kind:      models.OperationKindAdjustment,
		Result:    stored,
	}, nil)
	m.metrics.On("RecordOperation", models.OperationKindAdjustment, "duplicate", mock.Anything).Return()

	result, err := m.coordinator.Apply(ctx, &Adjustment{
		Key:        "adj-1",
		AccountID:  "acct-1",
		Currency:   "BDT",
		Amount:     700,
		OperatorID: "op-1",
		Reason:     "seed",
	})

	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, int64(700), result.Balance)
	assert.False(t, stored.Duplicate, "stored result must not be mutated")

	m.assertExpectations(t)
	m.ops.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestCoordinator_Apply_KeyOwnedByAnotherAccount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	m.ops.On("Get", ctx, "adj-1").Return(&models.OperationRecord{
		Key:       "adj-1",
		AccountID: "acct-2",
		Kind:      models.OperationKindAdjustment,
		Result:    &models.TransactionResult{OperationKey: "adj-1", AccountID: "acct-2"},
	}, nil)
	m.metrics.On("RecordOperation", models.OperationKindAdjustment, "invalid", mock.Anything).Return()

	result, err := m.coordinator.Apply(ctx, &Adjustment{
		Key:        "adj-1",
		AccountID:  "acct-1",
		Currency:   "BDT",
		Amount:     700,
		OperatorID: "op-1",
		Reason:     "seed",
	})

	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Nil(t, result)
	m.assertExpectations(t)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestPaymentQueue_Reject_PublishesAndCounts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	request := pendingDeposit(now)
	m.payments.On("GetByID", ctx, "req-1").Return(request, nil)
	m.payments.On("MarkDecided", ctx, "req-1", models.PaymentStatusRejected, mock.Anything, "no transfer", (*int64)(nil), now).
		Return(true, nil)
	m.bus.On("Publish", events.PaymentDecidedEvent{
		RequestID:  "req-1",
		AccountID:  "acct-1",
		Direction:  models.PaymentDirectionDeposit,
		Status:     models.PaymentStatusRejected,
		Currency:   "BDT",
		Amount:     5000,
		NetAmount:  5000,
		OperatorID: "op-1",
		Reason:     "no transfer",
	}).Return()
	m.uow.On("Commit").Return(nil)
	m.metrics.On("RecordPaymentDecision", models.PaymentDirectionDeposit, models.PaymentStatusRejected).Return()

	decision, err := m.queue.Decide(ctx, "req-1", "op-1", false, "no transfer")

	require.NoError(t, err)
	assert.False(t, decision.Duplicate)
	assert.Equal(t, models.PaymentStatusRejected, decision.Request.Status)
	require.NotNil(t, decision.Request.DecidedBy)
	assert.Equal(t, "op-1", *decision.Request.DecidedBy)
	assert.Equal(t, models.PaymentStatusPending, request.Status, "loaded request must not be mutated")
	m.assertExpectations(t)
}

func TestPaymentQueue_Reject_LostToApproval(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	approved := pendingDeposit(now)
	approved.Status = models.PaymentStatusApproved

	m.payments.On("GetByID", ctx, "req-1").Return(pendingDeposit(now), nil).Once()
	m.payments.On("MarkDecided", ctx, "req-1", models.PaymentStatusRejected, mock.Anything, "late", (*int64)(nil), now).
		Return(false, nil)
	m.payments.On("GetByID", ctx, "req-1").Return(approved, nil).Once()

	decision, err := m.queue.Decide(ctx, "req-1", "op-2", false, "late")

	assert.ErrorIs(t, err, ErrRequestAlreadyDecided)
	assert.Nil(t, decision)
	m.assertExpectations(t)
	m.uow.AssertNotCalled(t, "Commit")
	m.bus.AssertNotCalled(t, "Publish", mock.Anything)
	m.metrics.AssertNotCalled(t, "RecordPaymentDecision", mock.Anything, mock.Anything)
}

func TestPaymentQueue_Approve_DepositWithoutTrxID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	m.payments.On("GetByID", ctx, "req-1").Return(pendingDeposit(now), nil)

	decision, err := m.queue.Decide(ctx, "req-1", "op-1", true, "")

	assert.ErrorIs(t, err, ErrTrxIDRequired)
	assert.Nil(t, decision)
	m.assertExpectations(t)
	m.payments.AssertNotCalled(t, "MarkDecided", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.ops.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestPaymentQueue_RecordTrxID_AlreadyUsed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	m.payments.On("SetTrxID", ctx, "req-1", "8N7A6B5C4D").Return(false, ErrDuplicateTransfer)

	request, err := m.queue.RecordTrxID(ctx, "req-1", "8N7A6B5C4D")

	assert.ErrorIs(t, err, ErrDuplicateTransfer)
	assert.Nil(t, request)
	m.assertExpectations(t)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestPaymentQueue_RecordTrxID_RejectsMalformed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	_, err := m.queue.RecordTrxID(ctx, "req-1", "8N7A-6B5C")

	assert.ErrorIs(t, err, ErrInvalidOperation)
	m.factory.AssertNotCalled(t, "Create")
	m.payments.AssertNotCalled(t, "SetTrxID", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementEngine_GameStats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	stats := []*models.GameStats{
		{Game: "coin_flip", Rounds: 4, Wins: 1, TotalStaked: 4000, TotalPaid: 1900},
		{Game: "dice", Rounds: 2, Wins: 0, TotalStaked: 1000},
	}
	m.rounds.On("StatsByAccount", ctx, "acct-1").Return(stats, nil)

	got, err := m.engine.GameStats(ctx, "acct-1")

	require.NoError(t, err)
	assert.Equal(t, stats, got)
	m.assertExpectations(t)
}

func TestSettlementEngine_RecoverStuckRounds_ListError(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	cutoff := now.Add(-m.engine.cfg.RoundResolutionWindow)
	m.rounds.On("ListOpenedBefore", ctx, cutoff).Return(nil, errors.New("connection reset"))

	recovered, err := m.engine.RecoverStuckRounds(ctx)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list stuck rounds")
	assert.Equal(t, 0, recovered)
	m.assertExpectations(t)
	m.metrics.AssertNotCalled(t, "RecordRound", mock.Anything, mock.Anything)
	m.metrics.AssertNotCalled(t, "RecordIntegrityFault", mock.Anything)
}

func TestBonusService_ClaimDaily_AlreadyClaimedThisPeriod(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	period := CurrentPeriodStart(now, m.bonusSvc.cfg.LimitResetHour)
	m.bonuses.On("GetLatest", ctx, "acct-1", models.BonusTypeDaily).Return(&models.BonusClaim{
		AccountID:   "acct-1",
		BonusType:   models.BonusTypeDaily,
		PeriodStart: period,
		Streak:      3,
		Amount:      12000,
		ClaimedAt:   period.Add(time.Hour),
	}, nil)

	result, err := m.bonusSvc.ClaimDaily(ctx, "acct-1")

	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)
	assert.Nil(t, result)
	m.assertExpectations(t)
	m.ops.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	m.bonuses.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestBonusService_ClaimDaily_LookupError(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := newMockedServices(ctx, now)

	m.bonuses.On("GetLatest", ctx, "acct-1", models.BonusTypeDaily).Return(nil, errors.New("connection reset"))

	_, err := m.bonusSvc.ClaimDaily(ctx, "acct-1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get latest bonus claim")
	m.assertExpectations(t)
}
