package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// Coordinator applies operations atomically. For a given account, operations
// are linearized by the account lock, which is held across validation, the
// database transaction and the cache update.
type Coordinator struct {
	uowFactory UnitOfWorkFactory
	ledger     *LedgerStore
	registry   *AccountRegistry
	locks      *AccountLocks
	cfg        *config.Config
	validate   *validator.Validate
	metrics    Metrics
	now        func() time.Time
}

// NewCoordinator creates a transaction coordinator
func NewCoordinator(uowFactory UnitOfWorkFactory, ledger *LedgerStore, registry *AccountRegistry, locks *AccountLocks, cfg *config.Config, metrics Metrics) *Coordinator {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &Coordinator{
		uowFactory: uowFactory,
		ledger:     ledger,
		registry:   registry,
		locks:      locks,
		cfg:        cfg,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Apply validates and commits op. All of its ledger entries commit together
// or none do. If op's key was already committed the stored result is
// returned with Duplicate set and nothing is written.
func (c *Coordinator) Apply(ctx context.Context, op Operation) (*models.TransactionResult, error) {
	start := c.now()
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrInvalidOperation)
	}
	if err := c.validate.Struct(op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	p := op.plan()
	result, err := c.apply(ctx, op, p)

	outcome := "committed"
	switch {
	case err != nil:
		outcome = outcomeLabel(err)
	case result.Duplicate:
		outcome = "duplicate"
	}
	c.metrics.RecordOperation(p.kind, outcome, c.now().Sub(start))

	if err != nil {
		log.WithFields(log.Fields{
			"key":       op.IdempotencyKey(),
			"accountID": op.Account(),
			"kind":      p.kind,
			"error":     err,
		}).Debug("Operation rejected")
		return nil, err
	}
	return result, nil
}

func (c *Coordinator) apply(ctx context.Context, op Operation, p operationPlan) (*models.TransactionResult, error) {
	accountID := op.Account()

	unlock, err := c.locks.Acquire(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}
	defer unlock()

	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	if existing, err := c.lookupResult(ctx, uow, op.IdempotencyKey(), accountID); err != nil || existing != nil {
		return existing, err
	}

	if err := c.validatePlan(ctx, uow, accountID, p); err != nil {
		return nil, err
	}

	entries := make([]*models.LedgerEntry, 0, len(p.legs))
	for _, l := range p.legs {
		if l.amount == 0 {
			continue
		}
		entry, err := c.ledger.Append(ctx, uow, models.EntryDraft{
			AccountID:    accountID,
			Currency:     p.currency,
			Amount:       l.amount,
			Kind:         l.kind,
			ReferenceID:  p.referenceID,
			OperationKey: op.IdempotencyKey(),
			Metadata:     l.metadata,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if p.after != nil {
		if err := p.after(ctx, uow, entries); err != nil {
			return nil, err
		}
	}

	balance, err := uow.LedgerRepository().LatestBalance(ctx, accountID, p.currency)
	if err != nil {
		return nil, fmt.Errorf("failed to read final balance: %w", err)
	}

	result := &models.TransactionResult{
		OperationKey: op.IdempotencyKey(),
		Kind:         p.kind,
		AccountID:    accountID,
		Currency:     p.currency,
		ReferenceID:  p.referenceID,
		Entries:      entries,
		Balance:      balance,
		CommittedAt:  c.now().UTC(),
	}

	err = uow.OperationRepository().Insert(ctx, &models.OperationRecord{
		Key:       op.IdempotencyKey(),
		AccountID: accountID,
		Kind:      p.kind,
		Result:    result,
	})
	if errors.Is(err, ErrDuplicateOperation) {
		// Another process committed the key between our lookup and insert
		uow.Rollback()
		return c.loadDuplicate(ctx, op.IdempotencyKey(), accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record operation: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.registry.storeBalance(accountID, p.currency, balance)

	log.WithFields(log.Fields{
		"key":       result.OperationKey,
		"accountID": accountID,
		"kind":      p.kind,
		"net":       result.NetAmount(),
		"balance":   balance,
	}).Debug("Operation committed")

	return result, nil
}

// validatePlan checks, in order: account exists and is active, currency is
// supported, balance covers every debit, and business limits hold. Payouts of
// a stake that is already held skip the status check so an open round can
// always settle.
func (c *Coordinator) validatePlan(ctx context.Context, uow UnitOfWork, accountID string, p operationPlan) error {
	account, err := uow.AccountRepository().LockForUpdate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return ErrUnknownAccount
	}
	if !account.IsActive() && !p.settlesHeld {
		return fmt.Errorf("%w: status %s", ErrAccountSuspended, account.Status)
	}

	if !c.cfg.IsSupportedCurrency(p.currency) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, p.currency)
	}

	balance, err := uow.LedgerRepository().LatestBalance(ctx, accountID, p.currency)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}
	running := balance
	for _, l := range p.legs {
		running += l.amount
		if running < 0 {
			return fmt.Errorf("%w: have %d", ErrInsufficientFunds, balance)
		}
	}

	if p.withdrawal {
		if err := c.checkWithdrawalLimit(ctx, uow, accountID, p); err != nil {
			return err
		}
	}

	return nil
}

func (c *Coordinator) checkWithdrawalLimit(ctx context.Context, uow UnitOfWork, accountID string, p operationPlan) error {
	limit := c.cfg.WithdrawalLimit(p.currency)
	if limit <= 0 {
		return nil
	}

	var requested int64
	for _, l := range p.legs {
		if l.kind == models.EntryKindWithdrawal {
			requested -= l.amount
		}
	}

	since := CurrentPeriodStart(c.now(), c.cfg.LimitResetHour)
	used, err := uow.LedgerRepository().SumDebitsSince(ctx, accountID, p.currency, models.EntryKindWithdrawal, since)
	if err != nil {
		return fmt.Errorf("failed to sum withdrawals: %w", err)
	}

	if used+requested > limit {
		return fmt.Errorf("%w: withdrawn %d of %d this period, requested %d", ErrLimitExceeded, used, limit, requested)
	}
	return nil
}

// lookupResult returns the stored result for key marked as duplicate, or nil.
// A key committed by another account is rejected.
func (c *Coordinator) lookupResult(ctx context.Context, uow UnitOfWork, key, accountID string) (*models.TransactionResult, error) {
	record, err := uow.OperationRepository().Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up operation: %w", err)
	}
	if record == nil {
		return nil, nil
	}
	if record.AccountID != accountID {
		return nil, fmt.Errorf("%w: key %s belongs to another account", ErrInvalidOperation, key)
	}
	result := *record.Result
	result.Duplicate = true
	return &result, nil
}

func (c *Coordinator) loadDuplicate(ctx context.Context, key, accountID string) (*models.TransactionResult, error) {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	result, err := c.lookupResult(ctx, uow, key, accountID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("operation %s reported as duplicate but not found", key)
	}
	return result, nil
}

// Result returns the stored result of a previously applied key, or nil
func (c *Coordinator) Result(ctx context.Context, key string) (*models.TransactionResult, error) {
	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	record, err := uow.OperationRepository().Get(ctx, key)
	if err != nil || record == nil {
		return nil, err
	}
	return record.Result, nil
}

// ReportIntegrityFault suspends the account, publishes an IntegrityFaultEvent
// and counts the fault. The account stays suspended until an operator
// reactivates it.
func (c *Coordinator) ReportIntegrityFault(ctx context.Context, fault models.IntegrityFault) error {
	log.WithFields(log.Fields{
		"accountID": fault.AccountID,
		"currency":  fault.Currency,
		"reason":    fault.Reason,
		"expected":  fault.Expected,
		"actual":    fault.Actual,
		"reference": fault.Reference,
	}).Error("Ledger integrity fault detected")
	c.metrics.RecordIntegrityFault(fault.Reason)

	// Suspension must land even if the caller is shutting down
	ctx = context.WithoutCancel(ctx)

	uow := c.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := c.registry.setStatus(ctx, uow, fault.AccountID, models.AccountStatusSuspended); err != nil {
		return fmt.Errorf("failed to suspend account: %w", err)
	}

	uow.EventBus().Publish(events.IntegrityFaultEvent{
		AccountID: fault.AccountID,
		Currency:  fault.Currency,
		Reason:    fault.Reason,
		Expected:  fault.Expected,
		Actual:    fault.Actual,
		Reference: fault.Reference,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// outcomeLabel maps an error to a low-cardinality metric label
func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnknownAccount):
		return "unknown_account"
	case errors.Is(err, ErrAccountSuspended):
		return "account_suspended"
	case errors.Is(err, ErrUnsupportedCurrency):
		return "unsupported_currency"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
