package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCurrentPeriodStart(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		resetHour int
		expected  time.Time
	}{
		{
			name:      "after reset hour",
			now:       time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC),
			resetHour: 12,
			expected:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:      "before reset hour uses yesterday",
			now:       time.Date(2026, 3, 10, 11, 59, 0, 0, time.UTC),
			resetHour: 12,
			expected:  time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		},
		{
			name:      "exactly at reset",
			now:       time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			resetHour: 0,
			expected:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "non-UTC input normalized",
			now:       time.Date(2026, 3, 10, 3, 0, 0, 0, time.FixedZone("BST", 6*3600)),
			resetHour: 0,
			expected:  time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CurrentPeriodStart(tt.now, tt.resetHour))
		})
	}
}

func TestNextResetTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), NextResetTime(now, 12))
	assert.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), NextResetTime(now, 18))
}
