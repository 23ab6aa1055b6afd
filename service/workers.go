package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// runPeriodically calls task immediately and then every interval until ctx
// is cancelled or the returned stop function is called.
func runPeriodically(ctx context.Context, name string, interval time.Duration, task func(context.Context)) func() {
	ticker := time.NewTicker(interval)
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithField("interval", interval).Infof("%s started", name)

		task(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Infof("%s shutting down (context cancelled)...", name)
				return
			case <-stopChan:
				log.Infof("%s shutting down (stop requested)...", name)
				return
			case <-ticker.C:
				task(ctx)
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stopChan)
		<-done
	}
}

// PaymentExpiryWorker expires pending payment requests past their deadline
type PaymentExpiryWorker struct {
	queue    *PaymentQueue
	interval time.Duration
}

// NewPaymentExpiryWorker creates a payment expiry worker
func NewPaymentExpiryWorker(queue *PaymentQueue, interval time.Duration) *PaymentExpiryWorker {
	return &PaymentExpiryWorker{queue: queue, interval: interval}
}

// Start begins the worker and returns a function that stops it
func (w *PaymentExpiryWorker) Start(ctx context.Context) func() {
	return runPeriodically(ctx, "Payment expiry worker", w.interval, func(ctx context.Context) {
		if _, err := w.queue.ExpireStale(ctx, w.queue.now()); err != nil {
			log.WithError(err).Error("Error expiring stale payment requests")
		}
	})
}

// RoundRecoveryWorker refunds game rounds stuck in opened
type RoundRecoveryWorker struct {
	engine   *SettlementEngine
	interval time.Duration
}

// NewRoundRecoveryWorker creates a round recovery worker
func NewRoundRecoveryWorker(engine *SettlementEngine, interval time.Duration) *RoundRecoveryWorker {
	return &RoundRecoveryWorker{engine: engine, interval: interval}
}

// Start begins the worker and returns a function that stops it
func (w *RoundRecoveryWorker) Start(ctx context.Context) func() {
	return runPeriodically(ctx, "Round recovery worker", w.interval, func(ctx context.Context) {
		if _, err := w.engine.RecoverStuckRounds(ctx); err != nil {
			log.WithError(err).Error("Error recovering stuck game rounds")
		}
	})
}

// ReconciliationWorker periodically replays the ledger against the cache
type ReconciliationWorker struct {
	reconciler *Reconciler
	interval   time.Duration
}

// NewReconciliationWorker creates a reconciliation worker
func NewReconciliationWorker(reconciler *Reconciler, interval time.Duration) *ReconciliationWorker {
	return &ReconciliationWorker{reconciler: reconciler, interval: interval}
}

// Start begins the worker and returns a function that stops it
func (w *ReconciliationWorker) Start(ctx context.Context) func() {
	return runPeriodically(ctx, "Reconciliation worker", w.interval, func(ctx context.Context) {
		if _, err := w.reconciler.ReconcileAll(ctx); err != nil {
			log.WithError(err).Error("Error reconciling ledger")
		}
	})
}
