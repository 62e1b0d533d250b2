package util

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// IsNight reports whether now lies between sunset and sunrise at the
// given position. Days without sunrise or sunset (polar regions) never
// count as night.
func IsNight(latitude, longitude float64, now time.Time) bool {
	utc := now.UTC()
	transitions := false
	// Far from Greenwich a solar day spans two UTC dates, so the
	// neighbouring days are checked as well.
	for _, offset := range []int{-1, 0, 1} {
		day := utc.AddDate(0, 0, offset)
		rise, set := sunrise.SunriseSunset(latitude, longitude, day.Year(), day.Month(), day.Day())
		if rise.IsZero() || set.IsZero() {
			continue
		}
		transitions = true
		if !utc.Before(rise) && !utc.After(set) {
			return false
		}
	}
	return transitions
}
