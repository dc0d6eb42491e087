package usecase

import (
	"time"

	"github.com/uniplaces/carbon"

	"MedArticles/internal/domain"
)

const longWindowDays = 365

// LastNDays is the window from n days before now up to today, both inclusive.
func LastNDays(now time.Time, n int) domain.DateRange {
	if n < 0 {
		n = 0
	}
	start := carbon.NewCarbon(now).SubDays(n).StartOfDay()
	return domain.NewDateRange(start.Time, now)
}

// SinceLastStored starts the day after the newest stored article and ends today.
// A newest date of today or later collapses the window onto today.
func SinceLastStored(latest, now time.Time) domain.DateRange {
	today := carbon.NewCarbon(now).StartOfDay()
	start := carbon.NewCarbon(latest).StartOfDay().AddDay()
	if start.After(today.Time) {
		start = today
	}
	return domain.NewDateRange(start.Time, today.Time)
}
