package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/master-pd/MARPD-MAX/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPeriodically_StopsOnRequest(t *testing.T) {
	var runs atomic.Int32
	stop := runPeriodically(context.Background(), "Test worker", 5*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRunPeriodically_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	stop := runPeriodically(ctx, "Test worker", time.Hour, func(ctx context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	stop()
	assert.Equal(t, int32(1), runs.Load())
}

func TestPaymentExpiryWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acct := h.account(t, "acct-a")

	request, err := h.core.Deposit(ctx, "d1", acct, "BDT", 5000, "nagad", "", "")
	require.NoError(t, err)
	h.clock.Advance(24 * time.Hour)

	stop := NewPaymentExpiryWorker(h.core.Payments, 10*time.Millisecond).Start(ctx)
	defer stop()

	assert.Eventually(t, func() bool {
		return h.store.payment(request.ID).Status == models.PaymentStatusExpired
	}, time.Second, 5*time.Millisecond)
}

func TestRoundRecoveryWorker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	acct := h.account(t, "acct-a")
	h.fund(t, acct, 5000)

	opened, err := h.core.Settlement.OpenRound(ctx, PlayRequest{Key: "m1", AccountID: acct, Game: "coin_flip", Stake: 1000})
	require.NoError(t, err)
	h.clock.Advance(time.Hour)

	stop := NewRoundRecoveryWorker(h.core.Settlement, 10*time.Millisecond).Start(ctx)
	defer stop()

	assert.Eventually(t, func() bool {
		return h.store.round(opened.Round.ID).Status == models.RoundStatusRefunded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(5000), h.balance(acct))
}

func TestCore_StartRebuildsCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)
	acct := h.account(t, "acct-a")
	h.fund(t, acct, 7000)

	// A restarted process begins with an empty cache
	h.core.Registry.balances.Clear()
	require.Equal(t, int64(0), h.balance(acct))

	stop, err := h.core.Start(ctx)
	require.NoError(t, err)
	defer stop()

	assert.Equal(t, int64(7000), h.balance(acct))

	// The first reconciliation pass finds nothing to report
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.AccountStatusActive, h.store.account(acct).Status)
}
