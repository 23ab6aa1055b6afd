package service

import (
	"context"
	"fmt"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/models"
)

// ProjectionService computes read-only dashboard views from the ledger on
// demand. Nothing it returns is stored.
type ProjectionService struct {
	uowFactory UnitOfWorkFactory
	registry   *AccountRegistry
	cfg        *config.Config
}

// NewProjectionService creates a projection service
func NewProjectionService(uowFactory UnitOfWorkFactory, registry *AccountRegistry, cfg *config.Config) *ProjectionService {
	return &ProjectionService{
		uowFactory: uowFactory,
		registry:   registry,
		cfg:        cfg,
	}
}

// Totals folds every entry of a currency into per-kind totals
func (s *ProjectionService) Totals(ctx context.Context, currency string) (*models.LedgerTotals, error) {
	if !s.cfg.IsSupportedCurrency(currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	byKind, err := uow.LedgerRepository().TotalsByKind(ctx, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger totals: %w", err)
	}

	pending, err := uow.PaymentRequestRepository().CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending requests: %w", err)
	}

	statuses, err := uow.AccountRepository().CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	totals := &models.LedgerTotals{
		Currency:         currency,
		Deposits:         byKind[models.EntryKindDeposit],
		Withdrawals:      -byKind[models.EntryKindWithdrawal],
		Stakes:           -byKind[models.EntryKindBetStake],
		Payouts:          byKind[models.EntryKindBetPayout],
		Bonuses:          byKind[models.EntryKindBonus],
		Adjustments:      byKind[models.EntryKindAdjustment],
		PendingDeposits:  pending[models.PaymentDirectionDeposit],
		PendingWithdraws: pending[models.PaymentDirectionWithdrawal],
		AccountsByStatus: statuses,
	}
	totals.HouseResult = totals.Stakes - totals.Payouts
	for _, sum := range byKind {
		totals.Outstanding += sum
	}

	return totals, nil
}

// AccountSummary returns an account with its cached balances and game stats
func (s *ProjectionService) AccountSummary(ctx context.Context, accountID string) (*models.AccountSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrUnknownAccount
	}

	games, err := uow.GameRoundRepository().StatsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game stats: %w", err)
	}

	return &models.AccountSummary{
		Account:  account,
		Balances: s.registry.Balances(accountID, s.cfg.Currencies),
		Games:    games,
	}, nil
}
