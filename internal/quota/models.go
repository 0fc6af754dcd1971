// Package quota tracks the daily distance and search budget. The ledger is
// the single source of truth for quota state: it lives in memory, is
// mutated continuously while tracking, and is mirrored to durable storage
// asynchronously by the persistence syncer.
package quota

import "time"

// Default daily limits.
const (
	DefaultDistanceLimitMeters = 5000
	DefaultSearchLimit         = 100
)

// DateLayout is the calendar-date format used for daily resets.
// Resets compare calendar dates, not elapsed time, so they align to local
// midnight regardless of how long the process has been running.
const DateLayout = "2006-01-02"

// Usage is the daily quota record. Counters increase monotonically within a
// calendar day and reset to zero exactly once when LastReset is not today.
type Usage struct {
	DistanceTraveledMeters float64 `json:"distanceTraveledMeters"`
	DistanceLimitMeters    float64 `json:"distanceLimitMeters"`
	SearchCount            int     `json:"searchCount"`
	SearchLimit            int     `json:"searchLimit"`

	// LastReset is the calendar date (YYYY-MM-DD, local time) the counters
	// were last zeroed.
	LastReset string `json:"lastReset"`
}

// Today returns the current local calendar date in DateLayout.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// DefaultUsage returns a fresh quota record with default limits, reset today.
func DefaultUsage(now time.Time) Usage {
	return Usage{
		DistanceLimitMeters: DefaultDistanceLimitMeters,
		SearchLimit:         DefaultSearchLimit,
		LastReset:           Today(now),
	}
}
