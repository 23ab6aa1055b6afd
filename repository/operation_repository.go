package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/master-pd/MARPD-MAX/service"
)

// OperationRepository implements the OperationRepository interface
type OperationRepository struct {
	q queryable
}

// NewOperationRepository creates a new idempotency record repository
func NewOperationRepository(db *database.DB) *OperationRepository {
	return &OperationRepository{q: db.Pool}
}

// newOperationRepositoryWithTx creates a new operation repository with a transaction
func newOperationRepositoryWithTx(tx queryable) *OperationRepository {
	return &OperationRepository{q: tx}
}

// Get returns the record stored for key, or nil
func (r *OperationRepository) Get(ctx context.Context, key string) (*models.OperationRecord, error) {
	query := `
		SELECT key, account_id, kind, result, created_at
		FROM operations
		WHERE key = $1
	`

	var record models.OperationRecord
	var resultJSON []byte
	err := r.q.QueryRow(ctx, query, key).Scan(
		&record.Key,
		&record.AccountID,
		&record.Kind,
		&resultJSON,
		&record.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", key, err)
	}

	record.Result = &models.TransactionResult{}
	if err := json.Unmarshal(resultJSON, record.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result of operation %s: %w", key, err)
	}
	return &record, nil
}

// Insert stores a record, returning service.ErrDuplicateOperation if the key exists
func (r *OperationRepository) Insert(ctx context.Context, record *models.OperationRecord) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result of operation %s: %w", record.Key, err)
	}

	query := `
		INSERT INTO operations (key, account_id, kind, result)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err = r.q.QueryRow(ctx, query, record.Key, record.AccountID, record.Kind, resultJSON).Scan(&record.CreatedAt)
	if isUniqueViolation(err) {
		return service.ErrDuplicateOperation
	}
	if err != nil {
		return fmt.Errorf("failed to insert operation %s: %w", record.Key, err)
	}
	return nil
}
