package service

import (
	"context"
	"fmt"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// Core wires the wallet components together and is the entry point for the
// chat layer and the operator CLI.
type Core struct {
	Registry    *AccountRegistry
	Ledger      *LedgerStore
	Coordinator *Coordinator
	Settlement  *SettlementEngine
	Payments    *PaymentQueue
	Bonuses     *BonusService
	Reconciler  *Reconciler
	Projections *ProjectionService

	cfg *config.Config
}

// NewCore builds every component over one unit of work factory. ledgerReader
// serves history reads and cache rebuilds outside of transactions. A nil rng
// uses crypto/rand and a nil metrics discards measurements.
func NewCore(uowFactory UnitOfWorkFactory, ledgerReader LedgerRepository, cfg *config.Config, rng RandomSource, metrics Metrics) *Core {
	if metrics == nil {
		metrics = NoopMetrics()
	}

	ledger := NewLedgerStore(ledgerReader)
	registry := NewAccountRegistry(uowFactory, ledgerReader)
	coordinator := NewCoordinator(uowFactory, ledger, registry, NewAccountLocks(), cfg, metrics)

	return &Core{
		Registry:    registry,
		Ledger:      ledger,
		Coordinator: coordinator,
		Settlement:  NewSettlementEngine(coordinator, uowFactory, cfg, rng, metrics),
		Payments:    NewPaymentQueue(coordinator, registry, uowFactory, cfg, metrics),
		Bonuses:     NewBonusService(coordinator, uowFactory, cfg),
		Reconciler:  NewReconciler(coordinator, uowFactory, cfg),
		Projections: NewProjectionService(uowFactory, registry, cfg),
		cfg:         cfg,
	}
}

// EnsureAccount returns the account of a chat user, creating it on first
// contact. The welcome bonus is granted on every call while the account is
// active; its key makes repeats duplicates, so a failed grant is retried on
// the next contact.
func (c *Core) EnsureAccount(ctx context.Context, userID string) (*models.Account, error) {
	account, created, err := c.Registry.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return account, nil
	}
	if _, err := c.Bonuses.GrantWelcome(ctx, account.ID); err != nil {
		log.WithFields(log.Fields{
			"accountID": account.ID,
			"created":   created,
			"error":     err,
		}).Warn("Failed to grant welcome bonus")
	}
	return account, nil
}

// Deposit submits a deposit request for operator confirmation. key is the
// originating message id; resubmitting it returns the same request. trxID is
// the provider transfer id and may be recorded later by an operator.
func (c *Core) Deposit(ctx context.Context, key, accountID, currency string, amount int64, method, destination, trxID string) (*models.PaymentRequest, error) {
	return c.Payments.Submit(ctx, SubmitPaymentRequest{
		Key:         key,
		AccountID:   accountID,
		Direction:   models.PaymentDirectionDeposit,
		Currency:    currency,
		Amount:      amount,
		Method:      method,
		Destination: destination,
		TrxID:       trxID,
	})
}

// Withdraw submits a withdrawal request for operator confirmation
func (c *Core) Withdraw(ctx context.Context, key, accountID, currency string, amount int64, method, destination string) (*models.PaymentRequest, error) {
	return c.Payments.Submit(ctx, SubmitPaymentRequest{
		Key:         key,
		AccountID:   accountID,
		Direction:   models.PaymentDirectionWithdrawal,
		Currency:    currency,
		Amount:      amount,
		Method:      method,
		Destination: destination,
	})
}

// PlaceBet plays an instant round keyed by the originating message id
func (c *Core) PlaceBet(ctx context.Context, key, accountID, game, currency string, stake int64) (*models.RoundResult, error) {
	return c.Settlement.Play(ctx, PlayRequest{
		Key:       key,
		AccountID: accountID,
		Game:      game,
		Currency:  currency,
		Stake:     stake,
	})
}

// ClaimBonus claims a user-claimable bonus. Daily bonuses are keyed by
// account and period, so a retried message cannot claim twice.
func (c *Core) ClaimBonus(ctx context.Context, accountID string, bonusType models.BonusType) (*models.TransactionResult, error) {
	switch bonusType {
	case models.BonusTypeDaily:
		res, err := c.Bonuses.ClaimDaily(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return res.Result, nil
	case models.BonusTypeWelcome:
		return c.Bonuses.GrantWelcome(ctx, accountID)
	default:
		return nil, fmt.Errorf("%w: %s bonus is granted by operators", ErrInvalidOperation, bonusType)
	}
}

// Apply applies a typed operation
func (c *Core) Apply(ctx context.Context, op Operation) (*models.TransactionResult, error) {
	return c.Coordinator.Apply(ctx, op)
}

// Balance returns the cached balance of an account
func (c *Core) Balance(accountID, currency string) int64 {
	if currency == "" {
		currency = c.cfg.DefaultCurrency()
	}
	return c.Registry.GetBalance(accountID, currency)
}

// Start rebuilds the balance cache and starts the background workers. The
// returned function stops every worker.
func (c *Core) Start(ctx context.Context) (func(), error) {
	if _, err := c.Registry.Rebuild(ctx); err != nil {
		return nil, err
	}

	stops := []func(){
		NewPaymentExpiryWorker(c.Payments, c.cfg.SweepInterval).Start(ctx),
		NewRoundRecoveryWorker(c.Settlement, c.cfg.SweepInterval).Start(ctx),
		NewReconciliationWorker(c.Reconciler, c.cfg.ReconcileInterval).Start(ctx),
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}
