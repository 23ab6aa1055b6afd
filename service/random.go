package service

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/master-pd/MARPD-MAX/config"
)

// RandomSource draws uniform integers in [0, n)
type RandomSource interface {
	Int63n(n int64) (int64, error)
}

// CryptoRandom draws from crypto/rand so outcomes cannot be predicted from
// earlier rounds
type CryptoRandom struct{}

// Int63n returns a uniform value in [0, n)
func (CryptoRandom) Int63n(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid range %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return v.Int64(), nil
}

// DrawOutcome picks an outcome with probability weight/total
func DrawOutcome(table *config.GameTable, rng RandomSource) (config.GameOutcome, error) {
	total := table.TotalWeight()
	roll, err := rng.Int63n(total)
	if err != nil {
		return config.GameOutcome{}, fmt.Errorf("%w: %v", ErrOutcomeUnavailable, err)
	}

	for _, o := range table.Outcomes {
		if roll < o.Weight {
			return o, nil
		}
		roll -= o.Weight
	}
	return config.GameOutcome{}, fmt.Errorf("%w: roll outside table", ErrOutcomeUnavailable)
}
