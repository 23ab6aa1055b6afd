package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// AccountRegistry maps chat users to accounts and keeps a volatile cache of
// ledger-derived balances. Reads never block; writes happen only after the
// ledger commit, under the account's lock.
type AccountRegistry struct {
	uowFactory UnitOfWorkFactory
	ledger     LedgerRepository
	balances   sync.Map // balanceKey -> *atomic.Int64
}

type balanceKey struct {
	accountID string
	currency  string
}

// NewAccountRegistry creates a registry. ledger is used to rebuild the cache.
func NewAccountRegistry(uowFactory UnitOfWorkFactory, ledger LedgerRepository) *AccountRegistry {
	return &AccountRegistry{
		uowFactory: uowFactory,
		ledger:     ledger,
	}
}

// GetOrCreate returns the account for userID, creating it on first contact
func (r *AccountRegistry) GetOrCreate(ctx context.Context, userID string) (*models.Account, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user id is required", ErrInvalidOperation)
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get account: %w", err)
	}
	if account != nil {
		return account, false, nil
	}

	account, created, err := uow.AccountRepository().Create(ctx, newAccountID(), userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}

	if created {
		uow.EventBus().Publish(events.AccountCreatedEvent{
			AccountID: account.ID,
			UserID:    userID,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if created {
		log.WithFields(log.Fields{
			"accountID": account.ID,
			"userID":    userID,
		}).Info("Created account")
	}

	return account, created, nil
}

// Get returns an account by id
func (r *AccountRegistry) Get(ctx context.Context, accountID string) (*models.Account, error) {
	uow := r.uowFactory.Create()
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
	return account, nil
}

// SetStatus changes an account's status. Balance reads stay available for
// every status; mutations require active.
func (r *AccountRegistry) SetStatus(ctx context.Context, accountID string, status models.AccountStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOperation, status)
	}

	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := r.setStatus(ctx, uow, accountID, status); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// setStatus updates the status inside an existing unit of work
func (r *AccountRegistry) setStatus(ctx context.Context, uow UnitOfWork, accountID string, status models.AccountStatus) error {
	account, err := uow.AccountRepository().LockForUpdate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return ErrUnknownAccount
	}
	if account.Status == status {
		return nil
	}

	if err := uow.AccountRepository().UpdateStatus(ctx, accountID, status); err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	uow.EventBus().Publish(events.AccountStatusChangedEvent{
		AccountID: accountID,
		OldStatus: account.Status,
		NewStatus: status,
	})

	log.WithFields(log.Fields{
		"accountID": accountID,
		"oldStatus": account.Status,
		"newStatus": status,
	}).Info("Account status changed")
	return nil
}

// GetBalance returns the cached balance of an account in a currency. Unknown
// pairs read as zero.
func (r *AccountRegistry) GetBalance(accountID, currency string) int64 {
	if v, ok := r.balances.Load(balanceKey{accountID, currency}); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Balances returns the cached balances of an account for the given currencies
func (r *AccountRegistry) Balances(accountID string, currencies []string) map[string]int64 {
	result := make(map[string]int64, len(currencies))
	for _, c := range currencies {
		result[c] = r.GetBalance(accountID, c)
	}
	return result
}

// storeBalance sets the cached balance to a ledger snapshot
func (r *AccountRegistry) storeBalance(accountID, currency string, balance int64) {
	v, _ := r.balances.LoadOrStore(balanceKey{accountID, currency}, new(atomic.Int64))
	v.(*atomic.Int64).Store(balance)
}

// Rebuild discards the cache and reloads it from ledger sums
func (r *AccountRegistry) Rebuild(ctx context.Context) (int, error) {
	sums, err := r.ledger.SumBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger balances: %w", err)
	}

	r.balances.Clear()
	for _, s := range sums {
		r.storeBalance(s.AccountID, s.Currency, s.Balance)
	}

	log.WithField("balances", len(sums)).Info("Rebuilt balance cache from ledger")
	return len(sums), nil
}
