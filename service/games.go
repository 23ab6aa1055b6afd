package service

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/shopspring/decimal"
)

// GameCatalog returns the configured game tables ordered by name
func GameCatalog(cfg *config.Config) []*config.GameTable {
	tables := make([]*config.GameTable, 0, len(cfg.Games))
	for _, t := range cfg.Games {
		tables = append(tables, t)
	}
	slices.SortFunc(tables, func(a, b *config.GameTable) int {
		return strings.Compare(a.Name, b.Name)
	})
	return tables
}

// OutcomeTally is the observed frequency of one outcome in a simulation
type OutcomeTally struct {
	Outcome  string
	Expected float64 // Probability from the table
	Observed float64
	Count    int64
}

// SimulationReport summarizes many simulated rounds of one game
type SimulationReport struct {
	Game           string
	Rounds         int
	Stake          int64
	Staked         int64
	Paid           int64
	ExpectedReturn decimal.Decimal
	ObservedReturn float64
	ChiSquared     float64 // Goodness of fit of outcome counts against weights
	Outcomes       []OutcomeTally
}

// DegreesOfFreedom returns the degrees of freedom of the chi-squared statistic
func (r *SimulationReport) DegreesOfFreedom() int {
	return len(r.Outcomes) - 1
}

// Simulate plays rounds of a table without touching the ledger, using the
// same draw and payout rules as live rounds
func Simulate(table *config.GameTable, rounds int, stake int64, rng RandomSource) (*SimulationReport, error) {
	if rounds <= 0 {
		return nil, fmt.Errorf("%w: rounds must be positive", ErrInvalidOperation)
	}
	if stake < table.MinBet || stake > table.MaxBet {
		return nil, fmt.Errorf("%w: %d not in %d-%d", ErrBetOutOfRange, stake, table.MinBet, table.MaxBet)
	}

	counts := make(map[string]int64, len(table.Outcomes))
	report := &SimulationReport{
		Game:           table.Name,
		Rounds:         rounds,
		Stake:          stake,
		ExpectedReturn: table.ExpectedReturn,
	}

	for range rounds {
		outcome, err := DrawOutcome(table, rng)
		if err != nil {
			return nil, err
		}
		counts[outcome.Name]++
		report.Staked += stake
		report.Paid += table.Payout(stake, outcome)
	}

	total := float64(table.TotalWeight())
	for _, o := range table.Outcomes {
		expected := float64(o.Weight) / total
		count := counts[o.Name]
		report.Outcomes = append(report.Outcomes, OutcomeTally{
			Outcome:  o.Name,
			Expected: expected,
			Observed: float64(count) / float64(rounds),
			Count:    count,
		})

		expectedCount := expected * float64(rounds)
		report.ChiSquared += math.Pow(float64(count)-expectedCount, 2) / expectedCount
	}
	report.ObservedReturn = float64(report.Paid) / float64(report.Staked)

	return report, nil
}
