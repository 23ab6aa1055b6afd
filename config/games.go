package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// GameOutcome is one row of a multiplier table
type GameOutcome struct {
	Name       string          `json:"name"`
	Weight     int64           `json:"weight"`     // Relative probability
	Multiplier decimal.Decimal `json:"multiplier"` // Payout per unit staked, including the stake
}

// GameTable describes a game as weighted outcomes. The probability-weighted
// multiplier sum must equal ExpectedReturn, which must be below 1.
type GameTable struct {
	Name           string          `json:"name"`
	MinBet         int64           `json:"min_bet"`
	MaxBet         int64           `json:"max_bet"`
	ExpectedReturn decimal.Decimal `json:"expected_return"`
	Outcomes       []GameOutcome   `json:"outcomes"`
}

// TotalWeight returns the sum of all outcome weights
func (t *GameTable) TotalWeight() int64 {
	var total int64
	for _, o := range t.Outcomes {
		total += o.Weight
	}
	return total
}

// weightedSum returns sum(weight * multiplier) over all outcomes
func (t *GameTable) weightedSum() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range t.Outcomes {
		sum = sum.Add(o.Multiplier.Mul(decimal.NewFromInt(o.Weight)))
	}
	return sum
}

// WeightedReturn computes the expected return implied by the outcomes
func (t *GameTable) WeightedReturn() decimal.Decimal {
	total := t.TotalWeight()
	if total == 0 {
		return decimal.Zero
	}
	return t.weightedSum().Div(decimal.NewFromInt(total))
}

// HouseEdge returns 1 - ExpectedReturn
func (t *GameTable) HouseEdge() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(t.ExpectedReturn)
}

// Payout returns floor(stake * multiplier) for the given outcome
func (t *GameTable) Payout(stake int64, outcome GameOutcome) int64 {
	return decimal.NewFromInt(stake).Mul(outcome.Multiplier).Floor().IntPart()
}

// Outcome looks up an outcome row by name
func (t *GameTable) Outcome(name string) (GameOutcome, bool) {
	for _, o := range t.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return GameOutcome{}, false
}

// Validate checks bet limits, weights and the house edge invariant
func (t *GameTable) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("game name is required")
	}
	if t.MinBet <= 0 || t.MaxBet < t.MinBet {
		return fmt.Errorf("invalid bet range %d-%d", t.MinBet, t.MaxBet)
	}
	if len(t.Outcomes) == 0 {
		return fmt.Errorf("at least one outcome is required")
	}
	seen := make(map[string]bool, len(t.Outcomes))
	for _, o := range t.Outcomes {
		if o.Name == "" || seen[o.Name] {
			return fmt.Errorf("outcome names must be unique and non-empty")
		}
		seen[o.Name] = true
		if o.Weight <= 0 {
			return fmt.Errorf("outcome %s has non-positive weight %d", o.Name, o.Weight)
		}
		if o.Multiplier.IsNegative() {
			return fmt.Errorf("outcome %s has negative multiplier %s", o.Name, o.Multiplier)
		}
	}
	if !t.ExpectedReturn.IsPositive() || !t.ExpectedReturn.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("expected return %s must be in (0, 1)", t.ExpectedReturn)
	}
	// Compared as sum(w*m) == ER * total so the check is exact.
	want := t.ExpectedReturn.Mul(decimal.NewFromInt(t.TotalWeight()))
	if got := t.weightedSum(); !got.Equal(want) {
		return fmt.Errorf("weighted multipliers give expected return %s, configured %s",
			t.WeightedReturn().StringFixed(6), t.ExpectedReturn)
	}
	return nil
}

// DefaultGameTables returns the built-in games. Amounts are in minor units.
//
//	coin_flip     1:1 heads/tails, 1.95x            expected return 0.975
//	dice          player die vs house die, 36 pairs  expected return 0.9375
//	slot          3 reels of 8 symbols, 512 spins    expected return 0.96875
//	number_guess  pick 1-100                         expected return 0.9
func DefaultGameTables() map[string]*GameTable {
	d := decimal.RequireFromString
	tables := []*GameTable{
		{
			Name: "coin_flip", MinBet: 500, MaxBet: 200000,
			ExpectedReturn: d("0.975"),
			Outcomes: []GameOutcome{
				{Name: "win", Weight: 1, Multiplier: d("1.95")},
				{Name: "lose", Weight: 1, Multiplier: d("0")},
			},
		},
		{
			Name: "dice", MinBet: 1000, MaxBet: 1000000,
			ExpectedReturn: d("0.9375"),
			Outcomes: []GameOutcome{
				{Name: "win", Weight: 15, Multiplier: d("1.85")},
				{Name: "push", Weight: 6, Multiplier: d("1")},
				{Name: "lose", Weight: 15, Multiplier: d("0")},
			},
		},
		{
			Name: "slot", MinBet: 2000, MaxBet: 500000,
			ExpectedReturn: d("0.96875"),
			Outcomes: []GameOutcome{
				{Name: "three_of_a_kind", Weight: 8, Multiplier: d("20")},
				{Name: "pair", Weight: 168, Multiplier: d("2")},
				{Name: "no_match", Weight: 336, Multiplier: d("0")},
			},
		},
		{
			Name: "number_guess", MinBet: 1000, MaxBet: 100000,
			ExpectedReturn: d("0.9"),
			Outcomes: []GameOutcome{
				{Name: "exact", Weight: 1, Multiplier: d("90")},
				{Name: "miss", Weight: 99, Multiplier: d("0")},
			},
		},
	}

	games := make(map[string]*GameTable, len(tables))
	for _, t := range tables {
		games[t.Name] = t
	}
	return games
}

// LoadGameTables reads a JSON array of game tables from path
func LoadGameTables(path string) (map[string]*GameTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game tables file: %w", err)
	}

	var tables []*GameTable
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to parse game tables file: %w", err)
	}

	games := make(map[string]*GameTable, len(tables))
	for _, t := range tables {
		if _, exists := games[t.Name]; exists {
			return nil, fmt.Errorf("duplicate game table %s", t.Name)
		}
		games[t.Name] = t
	}
	return games, nil
}
