package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/master-pd/MARPD-MAX/database"
	"github.com/master-pd/MARPD-MAX/models"
)

const entryColumns = `id, account_id, currency, amount, kind, reference_id, operation_key, balance_after, metadata, created_at`

// LedgerRepository implements the LedgerRepository interface. Rows are only
// ever inserted; a trigger rejects updates and deletes.
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a ledger repository that reads committed entries
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var metadataJSON []byte
	err := row.Scan(
		&e.ID,
		&e.AccountID,
		&e.Currency,
		&e.Amount,
		&e.Kind,
		&e.ReferenceID,
		&e.OperationKey,
		&e.BalanceAfter,
		&metadataJSON,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry metadata: %w", err)
		}
	}
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Insert appends an entry and fills in its id and timestamp
func (r *LedgerRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal entry metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries
		(account_id, currency, amount, kind, reference_id, operation_key, balance_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.AccountID,
		entry.Currency,
		entry.Amount,
		entry.Kind,
		entry.ReferenceID,
		entry.OperationKey,
		entry.BalanceAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry for account %s: %w", entry.AccountID, err)
	}
	return nil
}

// LatestBalance returns balance_after of the newest entry, or 0 if there is none
func (r *LedgerRepository) LatestBalance(ctx context.Context, accountID, currency string) (int64, error) {
	query := `
		SELECT balance_after
		FROM ledger_entries
		WHERE account_id = $1 AND currency = $2
		ORDER BY id DESC
		LIMIT 1
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, accountID, currency).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest balance for account %s: %w", accountID, err)
	}
	return balance, nil
}

// ListPage returns up to limit entries after afterID within the range, oldest first
func (r *LedgerRepository) ListPage(ctx context.Context, accountID, currency string, afterID int64, rng models.HistoryRange, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		  AND currency = $2
		  AND id > $3
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY id
		LIMIT $6
	`

	rows, err := r.q.Query(ctx, query, accountID, currency, afterID, nullTime(rng.From), nullTime(rng.To), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for account %s: %w", accountID, err)
	}
	return collectEntries(rows)
}

// GetByReference returns every entry sharing a reference id
func (r *LedgerRepository) GetByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE reference_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for reference %s: %w", referenceID, err)
	}
	return collectEntries(rows)
}

// SumBalances folds every account and currency from its entries
func (r *LedgerRepository) SumBalances(ctx context.Context) ([]models.BalanceSum, error) {
	query := `
		SELECT account_id, currency, SUM(amount)::BIGINT
		FROM ledger_entries
		GROUP BY account_id, currency
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to sum balances: %w", err)
	}
	defer rows.Close()

	var sums []models.BalanceSum
	for rows.Next() {
		var s models.BalanceSum
		if err := rows.Scan(&s.AccountID, &s.Currency, &s.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance sum: %w", err)
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

// SumDebitsSince returns the positive total debited with kind since a time
func (r *LedgerRepository) SumDebitsSince(ctx context.Context, accountID, currency string, kind models.EntryKind, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(-SUM(amount), 0)::BIGINT
		FROM ledger_entries
		WHERE account_id = $1
		  AND currency = $2
		  AND kind = $3
		  AND amount < 0
		  AND created_at >= $4
	`

	var total int64
	err := r.q.QueryRow(ctx, query, accountID, currency, kind, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s debits for account %s: %w", kind, accountID, err)
	}
	return total, nil
}

// TotalsByKind returns the signed sum of entries per kind for a currency
func (r *LedgerRepository) TotalsByKind(ctx context.Context, currency string) (map[models.EntryKind]int64, error) {
	query := `
		SELECT kind, SUM(amount)::BIGINT
		FROM ledger_entries
		WHERE currency = $1
		GROUP BY kind
	`

	rows, err := r.q.Query(ctx, query, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger totals for %s: %w", currency, err)
	}
	defer rows.Close()

	totals := make(map[models.EntryKind]int64)
	for rows.Next() {
		var kind models.EntryKind
		var sum int64
		if err := rows.Scan(&kind, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan ledger total: %w", err)
		}
		totals[kind] = sum
	}
	return totals, rows.Err()
}
