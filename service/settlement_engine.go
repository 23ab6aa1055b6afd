package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// PlayRequest is a bet as received from the chat layer
type PlayRequest struct {
	Key       string `validate:"required"` // Originating message id
	AccountID string `validate:"required"`
	Game      string `validate:"required"`
	Currency  string // Defaults to the configured default currency
	Stake     int64  `validate:"gt=0"`
}

// SettlementEngine runs game rounds. Instant rounds commit stake, payout and
// the round row in one transaction. Deferred rounds commit the stake on open
// and the payout on resolve, both keyed by round id so neither can repeat.
type SettlementEngine struct {
	coordinator *Coordinator
	uowFactory  UnitOfWorkFactory
	cfg         *config.Config
	rng         RandomSource
	metrics     Metrics
	now         func() time.Time
}

// NewSettlementEngine creates a settlement engine. A nil rng uses crypto/rand.
func NewSettlementEngine(coordinator *Coordinator, uowFactory UnitOfWorkFactory, cfg *config.Config, rng RandomSource, metrics Metrics) *SettlementEngine {
	if rng == nil {
		rng = CryptoRandom{}
	}
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &SettlementEngine{
		coordinator: coordinator,
		uowFactory:  uowFactory,
		cfg:         cfg,
		rng:         rng,
		metrics:     metrics,
		now:         time.Now,
	}
}

func settleKey(roundID string) string {
	return "round:" + roundID + ":settle"
}

// Play runs an instant round. The outcome is drawn before anything is
// written, so a failed draw leaves no trace.
func (e *SettlementEngine) Play(ctx context.Context, req PlayRequest) (*models.RoundResult, error) {
	table, currency, err := e.prepare(ctx, req)
	if errors.Is(err, ErrAccountSuspended) {
		if replay, lookupErr := e.replayedBet(ctx, req); lookupErr != nil || replay != nil {
			return replay, lookupErr
		}
	}
	if err != nil {
		return nil, err
	}

	outcome, err := DrawOutcome(table, e.rng)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	round := &models.GameRound{
		ID:         newSortableID(),
		AccountID:  req.AccountID,
		Game:       table.Name,
		Currency:   currency,
		Stake:      req.Stake,
		Outcome:    outcome.Name,
		Multiplier: outcome.Multiplier.String(),
		Payout:     table.Payout(req.Stake, outcome),
		Status:     models.RoundStatusResolved,
		OpenedAt:   now,
		ResolvedAt: &now,
	}

	op := &BetSettlement{
		Key:       "bet:" + req.Key,
		AccountID: req.AccountID,
		Currency:  currency,
		RoundID:   round.ID,
		Game:      round.Game,
		Stake:     round.Stake,
		Payout:    round.Payout,
		Outcome:   round.Outcome,
		after: func(ctx context.Context, uow UnitOfWork, _ []*models.LedgerEntry) error {
			if err := uow.GameRoundRepository().Create(ctx, round); err != nil {
				return fmt.Errorf("failed to create game round: %w", err)
			}
			uow.EventBus().Publish(roundEvent(round))
			return nil
		},
	}

	result, err := e.coordinator.Apply(ctx, op)
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		stored, err := e.getRound(ctx, result.ReferenceID)
		if err != nil {
			return nil, err
		}
		return &models.RoundResult{Round: stored, Result: result, Balance: result.Balance}, nil
	}

	e.metrics.RecordRound(round.Game, round.Status)
	log.WithFields(log.Fields{
		"roundID":   round.ID,
		"accountID": round.AccountID,
		"game":      round.Game,
		"stake":     round.Stake,
		"outcome":   round.Outcome,
		"payout":    round.Payout,
	}).Info("Round settled")

	return &models.RoundResult{Round: round, Result: result, Balance: result.Balance}, nil
}

// OpenRound commits the stake of a deferred round and records it as opened
func (e *SettlementEngine) OpenRound(ctx context.Context, req PlayRequest) (*models.RoundResult, error) {
	table, currency, err := e.prepare(ctx, req)
	if errors.Is(err, ErrAccountSuspended) {
		if replay, lookupErr := e.replayedBet(ctx, req); lookupErr != nil || replay != nil {
			return replay, lookupErr
		}
	}
	if err != nil {
		return nil, err
	}

	round := &models.GameRound{
		ID:        newSortableID(),
		AccountID: req.AccountID,
		Game:      table.Name,
		Currency:  currency,
		Stake:     req.Stake,
		Status:    models.RoundStatusOpened,
		OpenedAt:  e.now().UTC(),
	}

	op := &BetStake{
		Key:       "bet:" + req.Key,
		AccountID: req.AccountID,
		Currency:  currency,
		RoundID:   round.ID,
		Game:      round.Game,
		Amount:    round.Stake,
		after: func(ctx context.Context, uow UnitOfWork, _ []*models.LedgerEntry) error {
			if err := uow.GameRoundRepository().Create(ctx, round); err != nil {
				return fmt.Errorf("failed to create game round: %w", err)
			}
			return nil
		},
	}

	result, err := e.coordinator.Apply(ctx, op)
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		if round, err = e.getRound(ctx, result.ReferenceID); err != nil {
			return nil, err
		}
	}
	return &models.RoundResult{Round: round, Result: result, Balance: result.Balance}, nil
}

// ResolveRound draws the outcome of an opened round and credits its payout.
// If the outcome cannot be computed the stake is refunded instead.
func (e *SettlementEngine) ResolveRound(ctx context.Context, roundID string) (*models.RoundResult, error) {
	round, err := e.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusOpened {
		return e.settledResult(ctx, round)
	}

	table, ok := e.cfg.Games[round.Game]
	if !ok {
		return e.refund(ctx, round, "game no longer configured")
	}

	outcome, err := DrawOutcome(table, e.rng)
	if err != nil {
		log.WithFields(log.Fields{
			"roundID": round.ID,
			"error":   err,
		}).Warn("Outcome computation failed, refunding stake")
		return e.refund(ctx, round, "outcome unavailable")
	}

	settled := *round
	now := e.now().UTC()
	settled.Outcome = outcome.Name
	settled.Multiplier = outcome.Multiplier.String()
	settled.Payout = table.Payout(round.Stake, outcome)
	settled.Status = models.RoundStatusResolved
	settled.ResolvedAt = &now

	return e.settle(ctx, &settled, false)
}

// RefundRound returns the stake of an opened round
func (e *SettlementEngine) RefundRound(ctx context.Context, roundID, reason string) (*models.RoundResult, error) {
	round, err := e.getRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.Status != models.RoundStatusOpened {
		return e.settledResult(ctx, round)
	}
	return e.refund(ctx, round, reason)
}

func (e *SettlementEngine) refund(ctx context.Context, round *models.GameRound, reason string) (*models.RoundResult, error) {
	settled := *round
	now := e.now().UTC()
	settled.Outcome = "refunded"
	settled.Multiplier = "1"
	settled.Payout = round.Stake
	settled.Status = models.RoundStatusRefunded
	settled.ResolvedAt = &now

	log.WithFields(log.Fields{
		"roundID":   round.ID,
		"accountID": round.AccountID,
		"reason":    reason,
	}).Info("Refunding game round")

	return e.settle(ctx, &settled, true)
}

// settle credits the payout and moves the round out of opened in one transaction
func (e *SettlementEngine) settle(ctx context.Context, settled *models.GameRound, refund bool) (*models.RoundResult, error) {
	op := &BetPayout{
		Key:       settleKey(settled.ID),
		AccountID: settled.AccountID,
		Currency:  settled.Currency,
		RoundID:   settled.ID,
		Game:      settled.Game,
		Amount:    settled.Payout,
		Outcome:   settled.Outcome,
		Refund:    refund,
		after: func(ctx context.Context, uow UnitOfWork, _ []*models.LedgerEntry) error {
			ok, err := uow.GameRoundRepository().Settle(ctx, settled)
			if err != nil {
				return fmt.Errorf("failed to settle game round: %w", err)
			}
			if !ok {
				return ErrRoundAlreadySettled
			}
			uow.EventBus().Publish(roundEvent(settled))
			return nil
		},
	}

	result, err := e.coordinator.Apply(ctx, op)
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		stored, err := e.getRound(ctx, settled.ID)
		if err != nil {
			return nil, err
		}
		return &models.RoundResult{Round: stored, Result: result, Balance: result.Balance}, nil
	}

	e.metrics.RecordRound(settled.Game, settled.Status)
	return &models.RoundResult{Round: settled, Result: result, Balance: result.Balance}, nil
}

// settledResult rebuilds the result of a round that already left opened
func (e *SettlementEngine) settledResult(ctx context.Context, round *models.GameRound) (*models.RoundResult, error) {
	result, err := e.coordinator.Result(ctx, settleKey(round.ID))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrRoundAlreadySettled
	}
	result.Duplicate = true
	return &models.RoundResult{Round: round, Result: result, Balance: result.Balance}, nil
}

// RecoverStuckRounds refunds rounds left opened past the resolution window
// and reports each refunded round as an integrity fault. A round leaves
// opened with its refund, so it is reported once. Refunds run before any
// fault is raised because a fault suspends the account.
func (e *SettlementEngine) RecoverStuckRounds(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.RoundResolutionWindow)

	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stuck, err := uow.GameRoundRepository().ListOpenedBefore(ctx, cutoff)
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list stuck rounds: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	var refunded []*models.GameRound
	for _, round := range stuck {
		res, err := e.refund(ctx, round, "resolution window exceeded")
		if err != nil {
			log.WithFields(log.Fields{
				"roundID":   round.ID,
				"accountID": round.AccountID,
				"error":     err,
			}).Error("Failed to refund stuck round")
			continue
		}
		if !res.Result.Duplicate {
			refunded = append(refunded, round)
		}
	}

	var errs []error
	for _, round := range refunded {
		fault := models.IntegrityFault{
			AccountID: round.AccountID,
			Currency:  round.Currency,
			Reason:    "round_stuck",
			Expected:  round.Stake,
			Reference: round.ID,
		}
		if err := e.coordinator.ReportIntegrityFault(ctx, fault); err != nil {
			errs = append(errs, err)
		}
	}

	log.WithFields(log.Fields{
		"stuck":    len(stuck),
		"refunded": len(refunded),
	}).Warn("Recovered stuck game rounds")

	return len(refunded), errors.Join(errs...)
}

// GameStats returns per-game statistics for an account
func (e *SettlementEngine) GameStats(ctx context.Context, accountID string) ([]*models.GameStats, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.GameRoundRepository().StatsByAccount(ctx, accountID)
}

// prepare validates a play request. The account is checked first so that no
// outcome is drawn for a bet that cannot be admitted.
func (e *SettlementEngine) prepare(ctx context.Context, req PlayRequest) (*config.GameTable, string, error) {
	if err := e.coordinator.validate.Struct(req); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	account, err := e.coordinator.registry.Get(ctx, req.AccountID)
	if err != nil {
		return nil, "", err
	}
	if !account.IsActive() {
		return nil, "", fmt.Errorf("%w: status %s", ErrAccountSuspended, account.Status)
	}

	table, ok := e.cfg.Games[req.Game]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownGame, req.Game)
	}
	if req.Stake < table.MinBet || req.Stake > table.MaxBet {
		return nil, "", fmt.Errorf("%w: %d not in %d-%d", ErrBetOutOfRange, req.Stake, table.MinBet, table.MaxBet)
	}

	currency := req.Currency
	if currency == "" {
		currency = e.cfg.DefaultCurrency()
	}
	return table, currency, nil
}

// replayedBet returns the stored round of a bet key that was already
// committed for the same account, or nil
func (e *SettlementEngine) replayedBet(ctx context.Context, req PlayRequest) (*models.RoundResult, error) {
	result, err := e.coordinator.Result(ctx, "bet:"+req.Key)
	if err != nil || result == nil || result.AccountID != req.AccountID {
		return nil, err
	}
	round, err := e.getRound(ctx, result.ReferenceID)
	if err != nil {
		return nil, err
	}
	result.Duplicate = true
	return &models.RoundResult{Round: round, Result: result, Balance: result.Balance}, nil
}

func (e *SettlementEngine) getRound(ctx context.Context, roundID string) (*models.GameRound, error) {
	uow := e.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round, err := uow.GameRoundRepository().GetByID(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game round: %w", err)
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	return round, nil
}

func roundEvent(round *models.GameRound) events.RoundResolvedEvent {
	return events.RoundResolvedEvent{
		RoundID:   round.ID,
		AccountID: round.AccountID,
		Game:      round.Game,
		Currency:  round.Currency,
		Stake:     round.Stake,
		Payout:    round.Payout,
		Outcome:   round.Outcome,
		Status:    round.Status,
	}
}
