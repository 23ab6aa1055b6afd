package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultReconcileConcurrency = 4

// Reconciler replays the ledger and compares it with the balance cache
type Reconciler struct {
	coordinator *Coordinator
	uowFactory  UnitOfWorkFactory
	cfg         *config.Config
	concurrency int
}

// NewReconciler creates a reconciler
func NewReconciler(coordinator *Coordinator, uowFactory UnitOfWorkFactory, cfg *config.Config) *Reconciler {
	return &Reconciler{
		coordinator: coordinator,
		uowFactory:  uowFactory,
		cfg:         cfg,
		concurrency: defaultReconcileConcurrency,
	}
}

// ReconcileAccount checks every supported currency of one account. A broken
// balance chain or a cache that disagrees with the replay is reported as an
// integrity fault and the cache is reset to the replayed value.
func (r *Reconciler) ReconcileAccount(ctx context.Context, accountID string) ([]models.IntegrityFault, error) {
	var faults []models.IntegrityFault
	for _, currency := range r.cfg.Currencies {
		fault, err := r.check(ctx, accountID, currency)
		if err != nil {
			return faults, err
		}
		if fault == nil {
			continue
		}
		faults = append(faults, *fault)
		if err := r.coordinator.ReportIntegrityFault(ctx, *fault); err != nil {
			return faults, err
		}
	}
	return faults, nil
}

func (r *Reconciler) check(ctx context.Context, accountID, currency string) (*models.IntegrityFault, error) {
	unlock, err := r.coordinator.locks.Acquire(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account lock: %w", err)
	}
	defer unlock()

	cached := r.coordinator.registry.GetBalance(accountID, currency)
	replayed, err := r.coordinator.ledger.ReplayBalance(ctx, accountID, currency)
	if errors.Is(err, ErrIntegrityFault) {
		return &models.IntegrityFault{
			AccountID: accountID,
			Currency:  currency,
			Reason:    "balance_chain_broken",
			Expected:  replayed,
			Actual:    cached,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to replay balance: %w", err)
	}

	if cached == replayed {
		return nil, nil
	}

	r.coordinator.registry.storeBalance(accountID, currency, replayed)
	return &models.IntegrityFault{
		AccountID: accountID,
		Currency:  currency,
		Reason:    "cache_mismatch",
		Expected:  replayed,
		Actual:    cached,
	}, nil
}

// ReconcileAll checks every account with bounded parallelism
func (r *Reconciler) ReconcileAll(ctx context.Context) (*models.ReconcileReport, error) {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	accounts, err := uow.AccountRepository().List(ctx)
	uow.Rollback()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	report := &models.ReconcileReport{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, account := range accounts {
		g.Go(func() error {
			faults, err := r.ReconcileAccount(gctx, account.ID)
			mu.Lock()
			defer mu.Unlock()
			report.Checked++
			report.Faults = append(report.Faults, faults...)
			if err != nil {
				return fmt.Errorf("account %s: %w", account.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	fields := log.Fields{
		"accounts": report.Checked,
		"faults":   len(report.Faults),
	}
	if len(report.Faults) > 0 {
		log.WithFields(fields).Warn("Reconciliation found integrity faults")
	} else {
		log.WithFields(fields).Info("Reconciliation complete")
	}
	return report, nil
}
