package service

import (
	"context"
	"fmt"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// BonusService grants promotional credits through the coordinator
type BonusService struct {
	coordinator *Coordinator
	uowFactory  UnitOfWorkFactory
	cfg         *config.Config
	now         func() time.Time
}

// NewBonusService creates a bonus service
func NewBonusService(coordinator *Coordinator, uowFactory UnitOfWorkFactory, cfg *config.Config) *BonusService {
	return &BonusService{
		coordinator: coordinator,
		uowFactory:  uowFactory,
		cfg:         cfg,
		now:         time.Now,
	}
}

// GrantWelcome credits the one-time welcome bonus. Returns nil when the
// welcome bonus is disabled.
func (s *BonusService) GrantWelcome(ctx context.Context, accountID string) (*models.TransactionResult, error) {
	if s.cfg.WelcomeBonus <= 0 {
		return nil, nil
	}

	now := s.now().UTC()
	claim := &models.BonusClaim{
		AccountID:   accountID,
		BonusType:   models.BonusTypeWelcome,
		PeriodStart: now,
		Amount:      s.cfg.WelcomeBonus,
		ClaimedAt:   now,
	}

	return s.coordinator.Apply(ctx, &Bonus{
		Key:       "bonus:welcome:" + accountID,
		AccountID: accountID,
		Currency:  s.cfg.DefaultCurrency(),
		Amount:    claim.Amount,
		BonusType: claim.BonusType,
		after:     recordClaim(claim),
	})
}

// ClaimDaily credits the daily bonus once per period. Consecutive periods
// grow a streak that adds DailyStreakStep per day up to DailyStreakCap.
func (s *BonusService) ClaimDaily(ctx context.Context, accountID string) (*models.DailyBonusResult, error) {
	if s.cfg.DailyBonus <= 0 {
		return nil, fmt.Errorf("%w: daily bonus is disabled", ErrInvalidOperation)
	}

	now := s.now().UTC()
	period := CurrentPeriodStart(now, s.cfg.LimitResetHour)

	latest, err := s.latestClaim(ctx, accountID, models.BonusTypeDaily)
	if err != nil {
		return nil, err
	}

	streak := 1
	if latest != nil {
		switch {
		case !latest.PeriodStart.Before(period):
			return nil, fmt.Errorf("%w: next claim at %s", ErrBonusAlreadyClaimed,
				NextResetTime(now, s.cfg.LimitResetHour).Format(time.RFC3339))
		case latest.PeriodStart.Equal(period.AddDate(0, 0, -1)):
			streak = latest.Streak + 1
		}
	}

	claim := &models.BonusClaim{
		AccountID:   accountID,
		BonusType:   models.BonusTypeDaily,
		PeriodStart: period,
		Streak:      streak,
		Amount:      s.DailyAmount(streak),
		ClaimedAt:   now,
	}

	result, err := s.coordinator.Apply(ctx, &Bonus{
		Key:       fmt.Sprintf("bonus:daily:%s:%s", accountID, period.Format(time.DateOnly)),
		AccountID: accountID,
		Currency:  s.cfg.DefaultCurrency(),
		Amount:    claim.Amount,
		BonusType: claim.BonusType,
		after:     recordClaim(claim),
	})
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		return nil, ErrBonusAlreadyClaimed
	}

	log.WithFields(log.Fields{
		"accountID": accountID,
		"streak":    streak,
		"amount":    claim.Amount,
	}).Info("Daily bonus claimed")

	return &models.DailyBonusResult{Result: result, Streak: streak, Amount: claim.Amount}, nil
}

// DailyAmount returns the daily bonus for a streak length
func (s *BonusService) DailyAmount(streak int) int64 {
	extra := int64(max(streak-1, 0)) * s.cfg.DailyStreakStep
	return s.cfg.DailyBonus + min(extra, s.cfg.DailyStreakCap)
}

// GrantPromotional credits an operator-granted bonus keyed by the caller
func (s *BonusService) GrantPromotional(ctx context.Context, key, accountID, currency string, amount int64, operatorID string) (*models.TransactionResult, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator id is required", ErrInvalidOperation)
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency()
	}

	now := s.now().UTC()
	claim := &models.BonusClaim{
		AccountID:   accountID,
		BonusType:   models.BonusTypePromotional,
		PeriodStart: now,
		Amount:      amount,
		ClaimedAt:   now,
	}

	return s.coordinator.Apply(ctx, &Bonus{
		Key:       key,
		AccountID: accountID,
		Currency:  currency,
		Amount:    amount,
		BonusType: claim.BonusType,
		GrantedBy: operatorID,
		after:     recordClaim(claim),
	})
}

func (s *BonusService) latestClaim(ctx context.Context, accountID string, bonusType models.BonusType) (*models.BonusClaim, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	claim, err := uow.BonusClaimRepository().GetLatest(ctx, accountID, bonusType)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest bonus claim: %w", err)
	}
	return claim, nil
}

func recordClaim(claim *models.BonusClaim) txHook {
	return func(ctx context.Context, uow UnitOfWork, _ []*models.LedgerEntry) error {
		if err := uow.BonusClaimRepository().Create(ctx, claim); err != nil {
			return fmt.Errorf("failed to record bonus claim: %w", err)
		}
		return nil
	}
}
