package repository

import (
	"context"
	"testing"
	"time"

	"github.com/master-pd/MARPD-MAX/models"
	"github.com/master-pd/MARPD-MAX/repository/testutil"
	"github.com/master-pd/MARPD-MAX/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRequestRepository(t *testing.T) {
	t.Parallel()

	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	ledger := NewLedgerRepository(testDB.DB)
	repo := NewPaymentRequestRepository(testDB.DB)
	ctx := context.Background()

	account := createAccount(t, accounts, "acct-pay")

	key := "submit-1"
	first := testutil.CreateTestPaymentRequest("pay-1", account.ID, 10000)
	first.SubmitKey = &key
	require.NoError(t, repo.Create(ctx, first))

	t.Run("submit key is unique", func(t *testing.T) {
		dup := testutil.CreateTestPaymentRequest("pay-dup", account.ID, 10000)
		dup.SubmitKey = &key
		assert.ErrorIs(t, repo.Create(ctx, dup), service.ErrDuplicateOperation)

		found, err := repo.GetBySubmitKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "pay-1", found.ID)
	})

	t.Run("approval requires a ledger entry", func(t *testing.T) {
		operator := "op-1"
		_, err := repo.MarkDecided(ctx, "pay-1", models.PaymentStatusApproved, &operator, "", nil, time.Now())
		assert.Error(t, err)
	})

	t.Run("only one decision wins", func(t *testing.T) {
		entry := testutil.CreateTestEntry(account.ID, 10000, 10000, models.EntryKindDeposit)
		require.NoError(t, ledger.Insert(ctx, entry))

		operator := "op-1"
		ok, err := repo.MarkDecided(ctx, "pay-1", models.PaymentStatusApproved, &operator, "", &entry.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.MarkDecided(ctx, "pay-1", models.PaymentStatusRejected, &operator, "late", nil, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		decided, err := repo.GetByID(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusApproved, decided.Status)
		assert.Equal(t, entry.ID, *decided.LedgerEntryID)
		assert.Equal(t, "op-1", *decided.DecidedBy)
	})

	t.Run("pending and expired lists", func(t *testing.T) {
		stale := testutil.CreateTestPaymentRequest("pay-stale", account.ID, 5000)
		stale.Direction = models.PaymentDirectionWithdrawal
		stale.ExpiresAt = time.Now().Add(-time.Minute)
		require.NoError(t, repo.Create(ctx, stale))

		fresh := testutil.CreateTestPaymentRequest("pay-fresh", account.ID, 5000)
		require.NoError(t, repo.Create(ctx, fresh))

		pending, err := repo.ListPending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		expired, err := repo.ListExpired(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "pay-stale", expired[0].ID)

		counts, err := repo.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[models.PaymentDirectionDeposit])
		assert.Equal(t, 1, counts[models.PaymentDirectionWithdrawal])

		history, err := repo.ListByAccount(ctx, account.ID, 2)
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})
}

func TestPaymentRequestRepository_TrxIDIndex(t *testing.T) {
	t.Parallel()

	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	repo := NewPaymentRequestRepository(testDB.DB)
	ctx := context.Background()

	account := createAccount(t, accounts, "acct-trx")
	trx := "8N7A6B5C4D"

	first := testutil.CreateTestPaymentRequest("trx-1", account.ID, 10000)
	first.TrxID = &trx
	require.NoError(t, repo.Create(ctx, first))

	dup := testutil.CreateTestPaymentRequest("trx-2", account.ID, 10000)
	dup.TrxID = &trx
	assert.ErrorIs(t, repo.Create(ctx, dup), service.ErrDuplicateTransfer)

	otherMethod := testutil.CreateTestPaymentRequest("trx-3", account.ID, 10000)
	otherMethod.Method = "bkash"
	otherMethod.TrxID = &trx
	require.NoError(t, repo.Create(ctx, otherMethod))

	later := testutil.CreateTestPaymentRequest("trx-4", account.ID, 10000)
	require.NoError(t, repo.Create(ctx, later))

	_, err := repo.SetTrxID(ctx, "trx-4", trx)
	assert.ErrorIs(t, err, service.ErrDuplicateTransfer)

	// Rejecting the holder frees the transfer id
	operator := "op-1"
	ok, err := repo.MarkDecided(ctx, "trx-1", models.PaymentStatusRejected, &operator, "wrong amount", nil, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SetTrxID(ctx, "trx-4", trx)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.GetByID(ctx, "trx-4")
	require.NoError(t, err)
	require.NotNil(t, stored.TrxID)
	assert.Equal(t, trx, *stored.TrxID)

	// Decided requests keep their transfer id
	ok, err = repo.SetTrxID(ctx, "trx-1", "1A2B3C")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGameRoundRepository(t *testing.T) {
	t.Parallel()

	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	repo := NewGameRoundRepository(testDB.DB)
	ctx := context.Background()

	account := createAccount(t, accounts, "acct-rounds")
	now := time.Now().UTC()

	old := testutil.CreateTestRound("round-old", account.ID, "dice", 1000, now.Add(-time.Hour))
	recent := testutil.CreateTestRound("round-new", account.ID, "dice", 2000, now)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, recent))

	stuck, err := repo.ListOpenedBefore(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "round-old", stuck[0].ID)

	resolvedAt := now
	recent.Status = models.RoundStatusResolved
	recent.Outcome = "win"
	recent.Multiplier = "1.85"
	recent.Payout = 3700
	recent.ResolvedAt = &resolvedAt

	ok, err := repo.Settle(ctx, recent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Settle(ctx, recent)
	require.NoError(t, err)
	assert.False(t, ok, "a settled round cannot be settled again")

	got, err := repo.GetByID(ctx, "round-new")
	require.NoError(t, err)
	assert.Equal(t, "win", got.Outcome)
	assert.True(t, got.Won())

	stats, err := repo.StatsByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, models.GameStats{Game: "dice", Rounds: 1, Wins: 1, TotalStaked: 2000, TotalPaid: 3700}, *stats[0])
}

func TestOperationAndBonusRepositories(t *testing.T) {
	t.Parallel()

	testDB := testutil.SetupTestDatabase(t)
	accounts := NewAccountRepository(testDB.DB)
	ops := NewOperationRepository(testDB.DB)
	claims := NewBonusClaimRepository(testDB.DB)
	ctx := context.Background()

	account := createAccount(t, accounts, "acct-ops")

	t.Run("operation results round trip", func(t *testing.T) {
		missing, err := ops.Get(ctx, "op-missing")
		require.NoError(t, err)
		assert.Nil(t, missing)

		record := &models.OperationRecord{
			Key:       "op-1",
			AccountID: account.ID,
			Kind:      models.OperationKindBonus,
			Result: &models.TransactionResult{
				OperationKey: "op-1",
				Kind:         models.OperationKindBonus,
				AccountID:    account.ID,
				Currency:     "BDT",
				Balance:      5000,
			},
		}
		require.NoError(t, ops.Insert(ctx, record))
		assert.ErrorIs(t, ops.Insert(ctx, record), service.ErrDuplicateOperation)

		stored, err := ops.Get(ctx, "op-1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, int64(5000), stored.Result.Balance)
		assert.False(t, stored.Result.Duplicate)
	})

	t.Run("latest bonus claim", func(t *testing.T) {
		latest, err := claims.GetLatest(ctx, account.ID, models.BonusTypeDaily)
		require.NoError(t, err)
		assert.Nil(t, latest)

		day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		for i := range 3 {
			require.NoError(t, claims.Create(ctx, &models.BonusClaim{
				AccountID:   account.ID,
				BonusType:   models.BonusTypeDaily,
				PeriodStart: day.AddDate(0, 0, i),
				Streak:      i + 1,
				Amount:      10000,
				ClaimedAt:   day.AddDate(0, 0, i),
			}))
		}

		latest, err = claims.GetLatest(ctx, account.ID, models.BonusTypeDaily)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, 3, latest.Streak)

		err = claims.Create(ctx, &models.BonusClaim{
			AccountID:   account.ID,
			BonusType:   models.BonusTypeDaily,
			PeriodStart: day,
			Amount:      10000,
			ClaimedAt:   day,
		})
		assert.ErrorIs(t, err, service.ErrDuplicateOperation)
	})
}
