package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/models"
)

const roundColumns = `id, account_id, game, currency, stake, outcome, multiplier, payout, status, opened_at, resolved_at`

// GameRoundRepository implements the GameRoundRepository interface
type GameRoundRepository struct {
	q queryable
}

// NewGameRoundRepository creates a new game round repository
func NewGameRoundRepository(db *database.DB) *GameRoundRepository {
	return &GameRoundRepository{q: db.Pool}
}

// newGameRoundRepositoryWithTx creates a new game round repository with a transaction
func newGameRoundRepositoryWithTx(tx queryable) *GameRoundRepository {
	return &GameRoundRepository{q: tx}
}

func scanRound(row pgx.Row) (*models.GameRound, error) {
	var g models.GameRound
	err := row.Scan(
		&g.ID,
		&g.AccountID,
		&g.Game,
		&g.Currency,
		&g.Stake,
		&g.Outcome,
		&g.Multiplier,
		&g.Payout,
		&g.Status,
		&g.OpenedAt,
		&g.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a round
func (r *GameRoundRepository) Create(ctx context.Context, round *models.GameRound) error {
	query := `
		INSERT INTO game_rounds
		(id, account_id, game, currency, stake, outcome, multiplier, payout, status, opened_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.Exec(ctx, query,
		round.ID,
		round.AccountID,
		round.Game,
		round.Currency,
		round.Stake,
		round.Outcome,
		round.Multiplier,
		round.Payout,
		round.Status,
		round.OpenedAt,
		round.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create game round: %w", err)
	}
	return nil
}

// GetByID retrieves a round by id
func (r *GameRoundRepository) GetByID(ctx context.Context, id string) (*models.GameRound, error) {
	query := `SELECT ` + roundColumns + ` FROM game_rounds WHERE id = $1`

	round, err := scanRound(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game round %s: %w", id, err)
	}
	return round, nil
}

// Settle writes the outcome of an opened round. Returns false if the round
// was already settled.
func (r *GameRoundRepository) Settle(ctx context.Context, round *models.GameRound) (bool, error) {
	query := `
		UPDATE game_rounds
		SET outcome = $1, multiplier = $2, payout = $3, status = $4, resolved_at = $5
		WHERE id = $6 AND status = 'opened'
	`

	result, err := r.q.Exec(ctx, query,
		round.Outcome,
		round.Multiplier,
		round.Payout,
		round.Status,
		round.ResolvedAt,
		round.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to settle game round %s: %w", round.ID, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListOpenedBefore returns rounds still opened that were opened before cutoff
func (r *GameRoundRepository) ListOpenedBefore(ctx context.Context, cutoff time.Time) ([]*models.GameRound, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM game_rounds
		WHERE status = 'opened' AND opened_at < $1
		ORDER BY opened_at, id
	`

	rows, err := r.q.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck game rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.GameRound
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

// StatsByAccount returns per-game statistics over resolved rounds
func (r *GameRoundRepository) StatsByAccount(ctx context.Context, accountID string) ([]*models.GameStats, error) {
	query := `
		SELECT
			game,
			COUNT(*) as rounds,
			COUNT(*) FILTER (WHERE payout > stake) as wins,
			COALESCE(SUM(stake), 0)::BIGINT as total_staked,
			COALESCE(SUM(payout), 0)::BIGINT as total_paid
		FROM game_rounds
		WHERE account_id = $1 AND status = 'resolved'
		GROUP BY game
		ORDER BY game
	`

	rows, err := r.q.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game stats for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var stats []*models.GameStats
	for rows.Next() {
		var s models.GameStats
		if err := rows.Scan(&s.Game, &s.Rounds, &s.Wins, &s.TotalStaked, &s.TotalPaid); err != nil {
			return nil, fmt.Errorf("failed to scan game stats: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}
