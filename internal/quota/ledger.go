package quota

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNegativeDistance is returned when AddDistance is called with a
// negative delta.
var ErrNegativeDistance = errors.New("distance delta must be non-negative")

// LedgerConfig holds configuration for the quota ledger.
type LedgerConfig struct {
	// Initial is the usage record loaded from storage. If nil, a default
	// record is created (first run).
	Initial *Usage

	// Logger for ledger operations.
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now; injectable for
	// rollover tests.
	Now func() time.Time
}

// Ledger owns the daily quota counters. All mutations go through the
// ledger; every mutation publishes the resulting snapshot on Events so the
// persistence syncer can mirror it to storage without the caller blocking.
type Ledger struct {
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	usage Usage

	events chan Usage
}

// NewLedger creates a quota ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	usage := DefaultUsage(now())
	if cfg.Initial != nil {
		usage = *cfg.Initial
		if usage.DistanceLimitMeters == 0 {
			usage.DistanceLimitMeters = DefaultDistanceLimitMeters
		}
		if usage.SearchLimit == 0 {
			usage.SearchLimit = DefaultSearchLimit
		}
	}

	l := &Ledger{
		logger: cfg.Logger,
		now:    now,
		usage:  usage,
		events: make(chan Usage, 1),
	}

	// A stale record from a previous session resets immediately.
	l.CheckAndResetIfNeeded()

	return l
}

// AddDistance accumulates a validated movement delta into the day's
// distance counter. Drift-classified deltas must never reach this method;
// classification is the tracker's job.
func (l *Ledger) AddDistance(meters float64) error {
	if meters < 0 {
		return ErrNegativeDistance
	}

	l.mu.Lock()
	l.resetIfStaleLocked()
	l.usage.DistanceTraveledMeters += meters
	snapshot := l.usage
	l.mu.Unlock()

	l.publish(snapshot)
	return nil
}

// IncrementSearchCount records one completed search resolution. Called
// exactly once per search that produced results, whether from cache or
// from the remote lookup; never for a search that failed before any fetch
// attempt.
func (l *Ledger) IncrementSearchCount() {
	l.mu.Lock()
	l.resetIfStaleLocked()
	l.usage.SearchCount++
	snapshot := l.usage
	l.mu.Unlock()

	l.publish(snapshot)
}

// CheckAndResetIfNeeded zeroes both counters when the stored reset date is
// not today's calendar date. Returns true if a reset occurred. Safe to call
// any number of times per day; only the first call after midnight resets.
func (l *Ledger) CheckAndResetIfNeeded() bool {
	l.mu.Lock()
	reset := l.resetIfStaleLocked()
	snapshot := l.usage
	l.mu.Unlock()

	if reset {
		l.publish(snapshot)
	}
	return reset
}

// IsDistanceExceeded reports whether today's distance counter has reached
// its limit. The day rollover check runs first, so a stale record never
// reports exceeded.
func (l *Ledger) IsDistanceExceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfStaleLocked()
	return l.usage.DistanceTraveledMeters >= l.usage.DistanceLimitMeters
}

// IsSearchExceeded reports whether today's search counter has reached its
// limit.
func (l *Ledger) IsSearchExceeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfStaleLocked()
	return l.usage.SearchCount >= l.usage.SearchLimit
}

// DistancePercentage returns the distance budget already consumed as a
// percentage, capped at 100.
func (l *Ledger) DistancePercentage() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfStaleLocked()

	if l.usage.DistanceLimitMeters <= 0 {
		return 100
	}
	pct := l.usage.DistanceTraveledMeters / l.usage.DistanceLimitMeters * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Snapshot returns a copy of the current usage record.
func (l *Ledger) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetIfStaleLocked()
	return l.usage
}

// Events delivers the latest usage snapshot after each mutation. The
// channel is buffered and coalescing: if the consumer lags, only the most
// recent snapshot is retained. Reads must never block writers.
func (l *Ledger) Events() <-chan Usage {
	return l.events
}

// resetIfStaleLocked performs the day-rollover reset. Callers must hold mu.
func (l *Ledger) resetIfStaleLocked() bool {
	today := Today(l.now())
	if l.usage.LastReset == today {
		return false
	}

	l.logger.Info().
		Str("last_reset", l.usage.LastReset).
		Str("today", today).
		Float64("distance_traveled_m", l.usage.DistanceTraveledMeters).
		Int("search_count", l.usage.SearchCount).
		Msg("daily quota reset")

	l.usage.DistanceTraveledMeters = 0
	l.usage.SearchCount = 0
	l.usage.LastReset = today
	return true
}

// publish delivers a snapshot to the events channel, replacing any
// undelivered older snapshot.
func (l *Ledger) publish(snapshot Usage) {
	for {
		select {
		case l.events <- snapshot:
			return
		default:
			// Drop the stale snapshot and retry with the fresh one.
			select {
			case <-l.events:
			default:
			}
		}
	}
}
