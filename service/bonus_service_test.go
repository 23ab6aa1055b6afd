package service

import (
	"context"
	"testing"
	"time"

	"github.com/master-pd/MARPD-MAX/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonusService_WelcomeOnFirstContact(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	account, err := h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), h.balance(account.ID))

	again, err := h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)
	assert.Equal(t, int64(50000), h.balance(account.ID))

	// A direct retry is deduplicated by its key
	res, err := h.core.ClaimBonus(ctx, account.ID, models.BonusTypeWelcome)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(50000), h.replay(t, account.ID))
}

func TestBonusService_WelcomeRetriedAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.store.failInsert = func(e *models.LedgerEntry) error {
		if e.Kind == models.EntryKindBonus {
			return errSimulatedCrash
		}
		return nil
	}
	account, err := h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(account.ID))

	h.store.failInsert = nil
	again, err := h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)
	assert.Equal(t, int64(50000), h.balance(account.ID))

	_, err = h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), h.replay(t, account.ID))
}

func TestBonusService_WelcomeDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cfg.WelcomeBonus = 0

	account, err := h.core.EnsureAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(account.ID))
	assert.Equal(t, 0, h.store.entryCount())
}

func TestBonusService_DailyStreak(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acct := h.account(t, "acct-a")

	day1, err := h.core.Bonuses.ClaimDaily(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, day1.Streak)
	assert.Equal(t, int64(10000), day1.Amount)

	_, err = h.core.Bonuses.ClaimDaily(ctx, acct)
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)

	h.clock.Advance(11*time.Hour + 59*time.Minute)
	_, err = h.core.Bonuses.ClaimDaily(ctx, acct)
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed, "still the same period")

	h.clock.Advance(time.Minute)
	day2, err := h.core.Bonuses.ClaimDaily(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 2, day2.Streak)
	assert.Equal(t, int64(12000), day2.Amount)

	// Skipping a period resets the streak
	h.clock.Advance(48 * time.Hour)
	day4, err := h.core.Bonuses.ClaimDaily(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, 1, day4.Streak)

	assert.Equal(t, int64(32000), h.balance(acct))
}

func TestBonusService_DailyAmountCapped(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		streak int
		want   int64
	}{
		{1, 10000},
		{2, 12000},
		{10, 28000},
		{11, 30000},
		{40, 30000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.core.Bonuses.DailyAmount(tt.streak), "streak %d", tt.streak)
	}
}

func TestBonusService_ClaimBonusRejectsPromotional(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acct := h.account(t, "acct-a")

	_, err := h.core.ClaimBonus(ctx, acct, models.BonusTypePromotional)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	res, err := h.core.Bonuses.GrantPromotional(ctx, "promo:eid:"+acct, acct, "", 7000, "op-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7000), res.Balance)

	_, err = h.core.Bonuses.GrantPromotional(ctx, "promo:eid2:"+acct, acct, "", 7000, "")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestBonusService_DailyRequiresActiveAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.addAccount("acct-s", "user-s", models.AccountStatusSuspended)

	_, err := h.core.ClaimBonus(ctx, "acct-s", models.BonusTypeDaily)
	assert.ErrorIs(t, err, ErrAccountSuspended)

	// The failed claim must not block a claim after reactivation
	require.NoError(t, h.core.Registry.SetStatus(ctx, "acct-s", models.AccountStatusActive))
	res, err := h.core.ClaimBonus(ctx, "acct-s", models.BonusTypeDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.Balance)
}
