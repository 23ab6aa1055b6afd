package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/master-pd/MARPD-MAX/service"
)

const paymentColumns = `id, submit_key, account_id, direction, currency, amount, fee, net_amount, method,
	destination, trx_id, status, reason, decided_by, decided_at, ledger_entry_id, created_at, expires_at`

// PaymentRequestRepository implements the PaymentRequestRepository interface
type PaymentRequestRepository struct {
	q queryable
}

// NewPaymentRequestRepository creates a new payment request repository
func NewPaymentRequestRepository(db *database.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{q: db.Pool}
}

// newPaymentRequestRepositoryWithTx creates a new payment request repository with a transaction
func newPaymentRequestRepositoryWithTx(tx queryable) *PaymentRequestRepository {
	return &PaymentRequestRepository{q: tx}
}

func scanPaymentRequest(row pgx.Row) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := row.Scan(
		&p.ID,
		&p.SubmitKey,
		&p.AccountID,
		&p.Direction,
		&p.Currency,
		&p.Amount,
		&p.Fee,
		&p.NetAmount,
		&p.Method,
		&p.Destination,
		&p.TrxID,
		&p.Status,
		&p.Reason,
		&p.DecidedBy,
		&p.DecidedAt,
		&p.LedgerEntryID,
		&p.CreatedAt,
		&p.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRequestRepository) list(ctx context.Context, query string, args ...any) ([]*models.PaymentRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*models.PaymentRequest
	for rows.Next() {
		request, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment request: %w", err)
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

const trxIndex = "idx_payment_requests_trx"

// Create inserts a new pending request
func (r *PaymentRequestRepository) Create(ctx context.Context, request *models.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests
		(id, submit_key, account_id, direction, currency, amount, fee, net_amount, method,
		 destination, trx_id, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.q.Exec(ctx, query,
		request.ID,
		request.SubmitKey,
		request.AccountID,
		request.Direction,
		request.Currency,
		request.Amount,
		request.Fee,
		request.NetAmount,
		request.Method,
		request.Destination,
		request.TrxID,
		request.Status,
		request.CreatedAt,
		request.ExpiresAt,
	)
	if isUniqueViolation(err) {
		if violatedConstraint(err) == trxIndex {
			return service.ErrDuplicateTransfer
		}
		return service.ErrDuplicateOperation
	}
	if err != nil {
		return fmt.Errorf("failed to create payment request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by id
func (r *PaymentRequestRepository) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`

	request, err := scanPaymentRequest(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request %s: %w", id, err)
	}
	return request, nil
}

// GetBySubmitKey retrieves the request submitted with key
func (r *PaymentRequestRepository) GetBySubmitKey(ctx context.Context, key string) (*models.PaymentRequest, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE submit_key = $1`

	request, err := scanPaymentRequest(r.q.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request by submit key: %w", err)
	}
	return request, nil
}

// SetTrxID records the provider transfer id of a pending request. Returns
// false if the request is no longer pending.
func (r *PaymentRequestRepository) SetTrxID(ctx context.Context, id, trxID string) (bool, error) {
	query := `
		UPDATE payment_requests
		SET trx_id = $1
		WHERE id = $2 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, trxID, id)
	if isUniqueViolation(err) {
		return false, service.ErrDuplicateTransfer
	}
	if err != nil {
		return false, fmt.Errorf("failed to set transfer id of payment request %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// MarkDecided moves a pending request to a terminal status. Returns false if
// another decision got there first.
func (r *PaymentRequestRepository) MarkDecided(ctx context.Context, id string, status models.PaymentStatus, operatorID *string, reason string, ledgerEntryID *int64, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE payment_requests
		SET status = $1, decided_by = $2, reason = $3, ledger_entry_id = $4, decided_at = $5
		WHERE id = $6 AND status = 'pending'
	`

	result, err := r.q.Exec(ctx, query, status, operatorID, reason, ledgerEntryID, decidedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to decide payment request %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListPending returns pending requests, oldest first
func (r *PaymentRequestRepository) ListPending(ctx context.Context) ([]*models.PaymentRequest, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_requests
		WHERE status = 'pending'
		ORDER BY created_at, id
	`

	requests, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payment requests: %w", err)
	}
	return requests, nil
}

// ListExpired returns pending requests whose expiry is at or before now
func (r *PaymentRequestRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.PaymentRequest, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_requests
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at, id
	`

	requests, err := r.list(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired payment requests: %w", err)
	}
	return requests, nil
}

// ListByAccount returns the newest requests of an account
func (r *PaymentRequestRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.PaymentRequest, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_requests
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	requests, err := r.list(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests for account %s: %w", accountID, err)
	}
	return requests, nil
}

// CountPending returns pending requests per direction
func (r *PaymentRequestRepository) CountPending(ctx context.Context) (map[models.PaymentDirection]int, error) {
	query := `
		SELECT direction, COUNT(*)
		FROM payment_requests
		WHERE status = 'pending'
		GROUP BY direction
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending payment requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.PaymentDirection]int)
	for rows.Next() {
		var direction models.PaymentDirection
		var n int
		if err := rows.Scan(&direction, &n); err != nil {
			return nil, fmt.Errorf("failed to scan pending count: %w", err)
		}
		counts[direction] = n
	}
	return counts, rows.Err()
}
