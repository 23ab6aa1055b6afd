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

// SubmitPaymentRequest is a user's request to move money in or out
type SubmitPaymentRequest struct {
	Key         string                  // Optional idempotency key of the originating message
	AccountID   string                  `validate:"required"`
	Direction   models.PaymentDirection `validate:"oneof=deposit withdrawal"`
	Currency    string                  // Defaults to the configured default currency
	Amount      int64                   `validate:"gt=0"`
	Method      string                  `validate:"required"`
	Destination string                  `validate:"max=64"`                    // Payer or payee wallet number
	TrxID       string                  `validate:"omitempty,alphanum,max=64"` // Provider transfer id, if already known
}

// PaymentQueue holds deposits and withdrawals until an operator confirms
// them out of band. Only an approval touches the ledger.
type PaymentQueue struct {
	coordinator *Coordinator
	registry    *AccountRegistry
	uowFactory  UnitOfWorkFactory
	cfg         *config.Config
	metrics     Metrics
	now         func() time.Time
}

// NewPaymentQueue creates a payment request queue
func NewPaymentQueue(coordinator *Coordinator, registry *AccountRegistry, uowFactory UnitOfWorkFactory, cfg *config.Config, metrics Metrics) *PaymentQueue {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &PaymentQueue{
		coordinator: coordinator,
		registry:    registry,
		uowFactory:  uowFactory,
		cfg:         cfg,
		metrics:     metrics,
		now:         time.Now,
	}
}

func paymentKey(requestID string) string {
	return "payment:" + requestID
}

// Submit records a pending request. Withdrawals are checked against the
// cached balance here and against the ledger again on approval.
func (q *PaymentQueue) Submit(ctx context.Context, req SubmitPaymentRequest) (*models.PaymentRequest, error) {
	if err := q.coordinator.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	if req.Key != "" {
		existing, err := q.getBySubmitKey(ctx, req.Key)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = q.cfg.DefaultCurrency()
	}
	if !q.cfg.IsSupportedCurrency(currency) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	method, ok := q.cfg.PaymentMethods[req.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
	}

	minimum := q.cfg.MinDeposit
	if req.Direction == models.PaymentDirectionWithdrawal {
		minimum = q.cfg.MinWithdrawal
	}
	minimum = max(minimum, method.MinAmount)
	if req.Amount < minimum || req.Amount > method.MaxAmount {
		return nil, fmt.Errorf("%w: %d not in %d-%d", ErrAmountOutOfRange, req.Amount, minimum, method.MaxAmount)
	}

	fee := method.Fee(req.Amount)
	if req.Amount-fee <= 0 {
		return nil, fmt.Errorf("%w: fee %d consumes the amount", ErrAmountOutOfRange, fee)
	}

	account, err := q.registry.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrAccountSuspended, account.Status)
	}

	if req.Direction == models.PaymentDirectionWithdrawal {
		if balance := q.registry.GetBalance(req.AccountID, currency); balance < req.Amount {
			return nil, fmt.Errorf("%w: have %d", ErrInsufficientFunds, balance)
		}
	}

	now := q.now().UTC()
	request := &models.PaymentRequest{
		ID:          newSortableID(),
		AccountID:   req.AccountID,
		Direction:   req.Direction,
		Currency:    currency,
		Amount:      req.Amount,
		Fee:         fee,
		NetAmount:   req.Amount - fee,
		Method:      method.Name,
		Destination: req.Destination,
		Status:      models.PaymentStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(q.cfg.PaymentExpiry),
	}
	if req.Key != "" {
		request.SubmitKey = &req.Key
	}
	if req.TrxID != "" {
		request.TrxID = &req.TrxID
	}

	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	err = uow.PaymentRequestRepository().Create(ctx, request)
	if errors.Is(err, ErrDuplicateOperation) {
		uow.Rollback()
		return q.getBySubmitKey(ctx, req.Key)
	}
	if errors.Is(err, ErrDuplicateTransfer) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransfer, req.TrxID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"requestID": request.ID,
		"accountID": request.AccountID,
		"direction": request.Direction,
		"amount":    request.Amount,
		"fee":       request.Fee,
		"method":    request.Method,
	}).Info("Payment request submitted")

	return request, nil
}

// RecordTrxID attaches the provider transfer id an operator matched to a
// pending request. A transfer id can back only one pending or approved
// request per method.
func (q *PaymentQueue) RecordTrxID(ctx context.Context, requestID, trxID string) (*models.PaymentRequest, error) {
	if err := q.coordinator.validate.Var(trxID, "required,alphanum,max=64"); err != nil {
		return nil, fmt.Errorf("%w: transfer id: %v", ErrInvalidOperation, err)
	}

	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ok, err := uow.PaymentRequestRepository().SetTrxID(ctx, requestID, trxID)
	if errors.Is(err, ErrDuplicateTransfer) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransfer, trxID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		uow.Rollback()
		request, err := q.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request is %s", ErrRequestAlreadyDecided, request.Status)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"requestID": requestID,
		"trxID":     trxID,
	}).Info("Payment transfer id recorded")

	return q.Get(ctx, requestID)
}

// Decide approves or rejects a pending request. Approving a deposit requires
// its transfer id. Repeating a decision returns the original outcome with
// Duplicate set; contradicting one fails with ErrRequestAlreadyDecided.
func (q *PaymentQueue) Decide(ctx context.Context, requestID, operatorID string, approve bool, reason string) (*models.PaymentDecision, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator id is required", ErrInvalidOperation)
	}

	request, err := q.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	want := models.PaymentStatusRejected
	if approve {
		want = models.PaymentStatusApproved
	}

	if !request.IsPending() {
		return q.repeatedDecision(ctx, request, want)
	}

	if now := q.now(); !now.Before(request.ExpiresAt) {
		if err := q.expire(ctx, request, now); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: request expired", ErrRequestAlreadyDecided)
	}

	if approve {
		if request.Direction == models.PaymentDirectionDeposit && request.TrxID == nil {
			return nil, fmt.Errorf("%w: deposit %s", ErrTrxIDRequired, request.ID)
		}
		return q.approve(ctx, request, operatorID, reason)
	}
	return q.reject(ctx, request, operatorID, reason)
}

func (q *PaymentQueue) approve(ctx context.Context, request *models.PaymentRequest, operatorID, reason string) (*models.PaymentDecision, error) {
	decidedAt := q.now().UTC()
	hook := func(ctx context.Context, uow UnitOfWork, entries []*models.LedgerEntry) error {
		entryID := entries[0].ID
		ok, err := uow.PaymentRequestRepository().MarkDecided(ctx, request.ID, models.PaymentStatusApproved, &operatorID, reason, &entryID, decidedAt)
		if err != nil {
			return fmt.Errorf("failed to mark payment request approved: %w", err)
		}
		if !ok {
			return ErrRequestAlreadyDecided
		}
		uow.EventBus().Publish(decisionEvent(request, models.PaymentStatusApproved, operatorID, reason))
		return nil
	}

	var op Operation
	if request.Direction == models.PaymentDirectionDeposit {
		op = &Deposit{
			Key:       paymentKey(request.ID),
			AccountID: request.AccountID,
			Currency:  request.Currency,
			Amount:    request.NetAmount,
			Method:    request.Method,
			RequestID: request.ID,
			after:     hook,
		}
	} else {
		op = &Withdrawal{
			Key:       paymentKey(request.ID),
			AccountID: request.AccountID,
			Currency:  request.Currency,
			Amount:    request.Amount,
			Method:    request.Method,
			RequestID: request.ID,
			after:     hook,
		}
	}

	result, err := q.coordinator.Apply(ctx, op)
	if errors.Is(err, ErrRequestAlreadyDecided) {
		// Lost a race with another decision
		current, getErr := q.Get(ctx, request.ID)
		if getErr != nil {
			return nil, getErr
		}
		return q.repeatedDecision(ctx, current, models.PaymentStatusApproved)
	}
	if err != nil {
		return nil, err
	}

	updated, err := q.Get(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		q.metrics.RecordPaymentDecision(request.Direction, models.PaymentStatusApproved)
		log.WithFields(log.Fields{
			"requestID":  request.ID,
			"accountID":  request.AccountID,
			"direction":  request.Direction,
			"operatorID": operatorID,
			"balance":    result.Balance,
		}).Info("Payment request approved")
	}

	return &models.PaymentDecision{Request: updated, Result: result, Duplicate: result.Duplicate}, nil
}

func (q *PaymentQueue) reject(ctx context.Context, request *models.PaymentRequest, operatorID, reason string) (*models.PaymentDecision, error) {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	decidedAt := q.now().UTC()
	ok, err := uow.PaymentRequestRepository().MarkDecided(ctx, request.ID, models.PaymentStatusRejected, &operatorID, reason, nil, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment request rejected: %w", err)
	}
	if !ok {
		uow.Rollback()
		current, err := q.Get(ctx, request.ID)
		if err != nil {
			return nil, err
		}
		return q.repeatedDecision(ctx, current, models.PaymentStatusRejected)
	}

	uow.EventBus().Publish(decisionEvent(request, models.PaymentStatusRejected, operatorID, reason))

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	q.metrics.RecordPaymentDecision(request.Direction, models.PaymentStatusRejected)
	log.WithFields(log.Fields{
		"requestID":  request.ID,
		"accountID":  request.AccountID,
		"operatorID": operatorID,
		"reason":     reason,
	}).Info("Payment request rejected")

	updated := *request
	updated.Status = models.PaymentStatusRejected
	updated.DecidedBy = &operatorID
	updated.DecidedAt = &decidedAt
	updated.Reason = reason
	return &models.PaymentDecision{Request: &updated}, nil
}

// repeatedDecision handles a decision on a request that is no longer pending
func (q *PaymentQueue) repeatedDecision(ctx context.Context, request *models.PaymentRequest, want models.PaymentStatus) (*models.PaymentDecision, error) {
	if request.Status != want {
		return nil, fmt.Errorf("%w: request is %s", ErrRequestAlreadyDecided, request.Status)
	}

	decision := &models.PaymentDecision{Request: request, Duplicate: true}
	if want == models.PaymentStatusApproved {
		result, err := q.coordinator.Result(ctx, paymentKey(request.ID))
		if err != nil {
			return nil, err
		}
		if result != nil {
			result.Duplicate = true
		}
		decision.Result = result
	}
	return decision, nil
}

// Expire moves a stale pending request to expired. Expiring an already
// expired request is a no-op.
func (q *PaymentQueue) Expire(ctx context.Context, requestID string) error {
	request, err := q.Get(ctx, requestID)
	if err != nil {
		return err
	}
	switch {
	case request.Status == models.PaymentStatusExpired:
		return nil
	case !request.IsPending():
		return fmt.Errorf("%w: request is %s", ErrRequestAlreadyDecided, request.Status)
	}

	now := q.now()
	if now.Before(request.ExpiresAt) {
		return fmt.Errorf("%w: expires at %s", ErrRequestNotExpired, request.ExpiresAt.Format(time.RFC3339))
	}
	return q.expire(ctx, request, now)
}

// ExpireStale expires every pending request whose deadline is at or before now
func (q *PaymentQueue) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stale, err := uow.PaymentRequestRepository().ListExpired(ctx, now)
	uow.Rollback()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired requests: %w", err)
	}

	expired := 0
	var errs []error
	for _, request := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := q.expire(ctx, request, now); err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", request.ID, err))
			continue
		}
		expired++
	}

	if expired > 0 {
		log.WithField("expired", expired).Info("Expired stale payment requests")
	}
	return expired, errors.Join(errs...)
}

func (q *PaymentQueue) expire(ctx context.Context, request *models.PaymentRequest, now time.Time) error {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ok, err := uow.PaymentRequestRepository().MarkDecided(ctx, request.ID, models.PaymentStatusExpired, nil, "expired", nil, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to mark payment request expired: %w", err)
	}
	if !ok {
		// Decided concurrently
		return nil
	}

	uow.EventBus().Publish(decisionEvent(request, models.PaymentStatusExpired, "", "expired"))

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	q.metrics.RecordPaymentDecision(request.Direction, models.PaymentStatusExpired)
	log.WithFields(log.Fields{
		"requestID": request.ID,
		"accountID": request.AccountID,
	}).Debug("Payment request expired")
	return nil
}

// Get returns a request by id
func (q *PaymentQueue) Get(ctx context.Context, requestID string) (*models.PaymentRequest, error) {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	request, err := uow.PaymentRequestRepository().GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	return request, nil
}

func (q *PaymentQueue) getBySubmitKey(ctx context.Context, key string) (*models.PaymentRequest, error) {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	request, err := uow.PaymentRequestRepository().GetBySubmitKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	return request, nil
}

// ListPending returns requests awaiting an operator, oldest first
func (q *PaymentQueue) ListPending(ctx context.Context) ([]*models.PaymentRequest, error) {
	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.PaymentRequestRepository().ListPending(ctx)
}

// History returns an account's most recent requests in any status
func (q *PaymentQueue) History(ctx context.Context, accountID string, limit int) ([]*models.PaymentRequest, error) {
	if limit <= 0 {
		limit = 20
	}

	uow := q.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.PaymentRequestRepository().ListByAccount(ctx, accountID, limit)
}

func decisionEvent(request *models.PaymentRequest, status models.PaymentStatus, operatorID, reason string) events.PaymentDecidedEvent {
	return events.PaymentDecidedEvent{
		RequestID:  request.ID,
		AccountID:  request.AccountID,
		Direction:  request.Direction,
		Status:     status,
		Currency:   request.Currency,
		Amount:     request.Amount,
		NetAmount:  request.NetAmount,
		OperatorID: operatorID,
		Reason:     reason,
	}
}
