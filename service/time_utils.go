package service

import (
	"time"
)

// NextResetTime returns the first period boundary strictly after now
func NextResetTime(now time.Time, resetHour int) time.Time {
	now = now.UTC()
	resetTime := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)

	if !now.Before(resetTime) {
		resetTime = resetTime.AddDate(0, 0, 1)
	}

	return resetTime
}

// CurrentPeriodStart returns the most recent period boundary at or before now
func CurrentPeriodStart(now time.Time, resetHour int) time.Time {
	now = now.UTC()
	periodStart := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)

	if now.Before(periodStart) {
		periodStart = periodStart.AddDate(0, 0, -1)
	}

	return periodStart
}
