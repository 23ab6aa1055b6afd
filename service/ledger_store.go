package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
)

const defaultHistoryPageSize = 500

// LedgerStore is the only writer of ledger entries. Appends happen inside a
// caller-supplied unit of work so that multi-leg operations commit together.
type LedgerStore struct {
	reader   LedgerRepository
	pageSize int
}

// NewLedgerStore creates a ledger store. reader serves history reads outside
// of any transaction.
func NewLedgerStore(reader LedgerRepository) *LedgerStore {
	return &LedgerStore{
		reader:   reader,
		pageSize: defaultHistoryPageSize,
	}
}

// Append writes one entry through uow, computing its balance snapshot from the
// latest entry of the same account and currency. It publishes a
// BalanceChangedEvent that is delivered only if uow commits. Callers must hold
// the account's lock so the snapshot cannot race another append.
func (s *LedgerStore) Append(ctx context.Context, uow UnitOfWork, draft models.EntryDraft) (*models.LedgerEntry, error) {
	if draft.Amount == 0 {
		return nil, fmt.Errorf("%w: zero amount entry", ErrInvalidOperation)
	}

	account, err := uow.AccountRepository().GetByID(ctx, draft.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrUnknownAccount
	}

	current, err := uow.LedgerRepository().LatestBalance(ctx, draft.AccountID, draft.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	}

	balanceAfter := current + draft.Amount
	if balanceAfter < 0 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, current, -draft.Amount)
	}

	entry := &models.LedgerEntry{
		AccountID:    draft.AccountID,
		Currency:     draft.Currency,
		Amount:       draft.Amount,
		Kind:         draft.Kind,
		ReferenceID:  draft.ReferenceID,
		OperationKey: draft.OperationKey,
		BalanceAfter: balanceAfter,
		Metadata:     draft.Metadata,
	}
	if err := uow.LedgerRepository().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangedEvent{
		AccountID:   entry.AccountID,
		Currency:    entry.Currency,
		EntryID:     entry.ID,
		Kind:        entry.Kind,
		OldBalance:  current,
		NewBalance:  balanceAfter,
		Amount:      entry.Amount,
		ReferenceID: entry.ReferenceID,
	})

	return entry, nil
}

// ReadHistory lazily yields committed entries for an account and currency in
// append order. Entries are fetched a page at a time; iterating the sequence
// again re-reads from the start.
func (s *LedgerStore) ReadHistory(ctx context.Context, accountID, currency string, rng models.HistoryRange) iter.Seq2[*models.LedgerEntry, error] {
	return func(yield func(*models.LedgerEntry, error) bool) {
		var afterID int64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := s.reader.ListPage(ctx, accountID, currency, afterID, rng, s.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("failed to read ledger page: %w", err))
				return
			}

			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
				afterID = entry.ID
			}

			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// ReplayBalance folds the full history of an account from zero. It also
// checks every entry's balance snapshot against the running sum and returns
// ErrIntegrityFault if the chain is broken.
func (s *LedgerStore) ReplayBalance(ctx context.Context, accountID, currency string) (int64, error) {
	var balance int64
	for entry, err := range s.ReadHistory(ctx, accountID, currency, models.HistoryRange{}) {
		if err != nil {
			return 0, err
		}
		balance += entry.Amount
		if entry.BalanceAfter != balance {
			return balance, fmt.Errorf("%w: entry %d records balance %d, replay gives %d",
				ErrIntegrityFault, entry.ID, entry.BalanceAfter, balance)
		}
	}
	return balance, nil
}

// EntriesByReference returns every entry that shares a reference id
func (s *LedgerStore) EntriesByReference(ctx context.Context, referenceID string) ([]*models.LedgerEntry, error) {
	return s.reader.GetByReference(ctx, referenceID)
}
