package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/master-pd/MARPD-MAX/service"
)

// BonusClaimRepository implements the BonusClaimRepository interface
type BonusClaimRepository struct {
	q queryable
}

// NewBonusClaimRepository creates a new bonus claim repository
func NewBonusClaimRepository(db *database.DB) *BonusClaimRepository {
	return &BonusClaimRepository{q: db.Pool}
}

// newBonusClaimRepositoryWithTx creates a new bonus claim repository with a transaction
func newBonusClaimRepositoryWithTx(tx queryable) *BonusClaimRepository {
	return &BonusClaimRepository{q: tx}
}

// Create records a claim. A second claim for the same period returns
// service.ErrDuplicateOperation.
func (r *BonusClaimRepository) Create(ctx context.Context, claim *models.BonusClaim) error {
	query := `
		INSERT INTO bonus_claims (account_id, bonus_type, period_start, streak, amount, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.q.Exec(ctx, query,
		claim.AccountID,
		claim.BonusType,
		claim.PeriodStart,
		claim.Streak,
		claim.Amount,
		claim.ClaimedAt,
	)
	if isUniqueViolation(err) {
		return service.ErrDuplicateOperation
	}
	if err != nil {
		return fmt.Errorf("failed to record %s bonus for account %s: %w", claim.BonusType, claim.AccountID, err)
	}
	return nil
}

// GetLatest returns the newest claim of a type
func (r *BonusClaimRepository) GetLatest(ctx context.Context, accountID string, bonusType models.BonusType) (*models.BonusClaim, error) {
	query := `
		SELECT account_id, bonus_type, period_start, streak, amount, claimed_at
		FROM bonus_claims
		WHERE account_id = $1 AND bonus_type = $2
		ORDER BY period_start DESC
		LIMIT 1
	`

	var c models.BonusClaim
	err := r.q.QueryRow(ctx, query, accountID, bonusType).Scan(
		&c.AccountID,
		&c.BonusType,
		&c.PeriodStart,
		&c.Streak,
		&c.Amount,
		&c.ClaimedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s bonus for account %s: %w", bonusType, accountID, err)
	}
	return &c, nil
}
