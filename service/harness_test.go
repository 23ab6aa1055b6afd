package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/events"
	"github.com/master-pd/MARPD-MAX/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// testHarness wires a Core over the in-memory store
type testHarness struct {
	store *memStore
	cfg   *config.Config
	rng   *fixedRandom
	core  *Core
	clock *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scenarioTable has a 10% win paying 5x and a 90% loss
func scenarioTable() *config.GameTable {
	return &config.GameTable{
		Name:           "scenario",
		MinBet:         1,
		MaxBet:         100000,
		ExpectedReturn: decimal.RequireFromString("0.5"),
		Outcomes: []config.GameOutcome{
			{Name: "win", Weight: 1, Multiplier: decimal.NewFromInt(5)},
			{Name: "lose", Weight: 9, Multiplier: decimal.Zero},
		},
	}
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := config.NewTestConfig()
	cfg.Games["scenario"] = scenarioTable()

	store := newMemStore()
	clock := &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store.now = clock.Now

	rng := &fixedRandom{}
	core := NewCore(store, store.reader(), cfg, rng, nil)
	core.Coordinator.now = clock.Now
	core.Settlement.now = clock.Now
	core.Payments.now = clock.Now
	core.Bonuses.now = clock.Now

	return &testHarness{store: store, cfg: cfg, rng: rng, core: core, clock: clock}
}

// account seeds an active account
func (h *testHarness) account(t *testing.T, id string) string {
	t.Helper()
	h.store.addAccount(id, "user-"+id, models.AccountStatusActive)
	return id
}

// fund credits an account through an adjustment
func (h *testHarness) fund(t *testing.T, accountID string, amount int64) {
	t.Helper()
	_, err := h.core.Apply(context.Background(), &Adjustment{
		Key:        "seed:" + newSortableID(),
		AccountID:  accountID,
		Currency:   "BDT",
		Amount:     amount,
		OperatorID: "test",
		Reason:     "seed",
	})
	require.NoError(t, err)
}

// balance returns the cached BDT balance
func (h *testHarness) balance(accountID string) int64 {
	return h.core.Registry.GetBalance(accountID, "BDT")
}

// replay returns the ledger-derived BDT balance
func (h *testHarness) replay(t *testing.T, accountID string) int64 {
	t.Helper()
	b, err := h.core.Ledger.ReplayBalance(context.Background(), accountID, "BDT")
	require.NoError(t, err)
	return b
}

// eventRecorder collects events delivered by the bus
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *testHarness) recordEvents() *eventRecorder {
	rec := &eventRecorder{}
	h.store.bus.SubscribeAll(func(ctx context.Context, e events.Event) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.events = append(rec.events, e)
	})
	return rec
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}
