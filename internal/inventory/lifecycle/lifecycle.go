// Package lifecycle derives a batch's freshness stage from its expiry date.
package lifecycle

import "time"

// Stage is the freshness state of a batch
type Stage string

const (
	StageFresh      Stage = "FRESH"
	StageNearExpiry Stage = "NEAR_EXPIRY"
	StageExpired    Stage = "EXPIRED"
)

// Valid reports whether s is a known stage. Used at the persistence boundary.
func (s Stage) Valid() bool {
	switch s {
	case StageFresh, StageNearExpiry, StageExpired:
		return true
	}
	return false
}

// DaysUntilExpiry returns whole calendar days between today and the expiry
// date. Negative when already expired. Both values are truncated to dates
// so the time-of-day component never shifts the result.
func DaysUntilExpiry(expiry, today time.Time) int {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(t).Hours() / 24)
}

// Classify derives the stage from the expiry date, the current date and the
// item's fresh threshold: expired when past expiry, near-expiry within the
// threshold (inclusive), fresh otherwise. Batches without an expiry date are
// never classified; callers skip them.
func Classify(expiry, today time.Time, freshThresholdDays int) Stage {
	days := DaysUntilExpiry(expiry, today)
	switch {
	case days < 0:
		return StageExpired
	case days <= freshThresholdDays:
		return StageNearExpiry
	default:
		return StageFresh
	}
}
