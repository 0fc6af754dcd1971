package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/geo"
	"github.com/roadtripper/roadtripper/internal/quota"
)

// ErrAlreadyTracking is returned by Start when a watch is already running.
var ErrAlreadyTracking = errors.New("tracker already running")

// ErrNoPosition is returned when no position has been observed yet.
var ErrNoPosition = errors.New("no position observed yet")

// DefaultMovementThresholdMeters is how far the device must travel from
// the last re-search anchor before OnMoved fires.
const DefaultMovementThresholdMeters = 100

// TrackerConfig holds configuration for the tracker.
type TrackerConfig struct {
	// Source is the position feed (required).
	Source Source

	// Ledger accumulates traveled distance (required).
	Ledger *quota.Ledger

	// Logger for tracker operations.
	Logger zerolog.Logger

	// MovementThresholdMeters triggers OnMoved once the device has moved
	// this far from the anchor (default: 100).
	MovementThresholdMeters float64

	// OnMoved is called with the new position each time the movement
	// threshold is crossed (optional). Called from the watch goroutine.
	OnMoved func(geo.Point)
}

// Stats summarizes a tracking session.
type Stats struct {
	Updates      int     `json:"updates"`
	DriftSkipped int     `json:"driftSkipped"`
	Errors       int     `json:"errors"`
	MetersAdded  float64 `json:"metersAdded"`
	Running      bool    `json:"running"`

	// LastError is set when the source hits a permission or unknown
	// failure and cleared by the next good fix.
	LastError *SourceError `json:"lastError,omitempty"`
}

// Tracker consumes a position source, filters GPS drift out of distance
// accounting, fans positions out to subscribers, and fires a callback when
// the device has moved far enough to warrant a fresh search. Updates are
// processed strictly in arrival order.
type Tracker struct {
	source    Source
	ledger    *quota.Ledger
	logger    zerolog.Logger
	threshold float64
	onMoved   func(geo.Point)

	mu          sync.Mutex
	running     bool
	stopWatch   func()
	done        chan struct{}
	last        *Position
	anchor      *geo.Point
	subscribers map[int]chan Position
	nextSubID   int
	stats       Stats
}

// NewTracker creates a tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	threshold := cfg.MovementThresholdMeters
	if threshold == 0 {
		threshold = DefaultMovementThresholdMeters
	}

	return &Tracker{
		source:      cfg.Source,
		ledger:      cfg.Ledger,
		logger:      cfg.Logger,
		threshold:   threshold,
		onMoved:     cfg.OnMoved,
		subscribers: make(map[int]chan Position),
	}
}

// Start begins watching the position source. It returns once the watch is
// established; updates are processed on a background goroutine until Stop
// is called, ctx is canceled, or a fatal source error arrives.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrAlreadyTracking
	}

	updates, stop, err := t.source.Watch(ctx)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	t.running = true
	t.stopWatch = stop
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	t.logger.Info().Msg("position tracking started")

	go func() {
		defer close(done)
		for update := range updates {
			t.process(update)
		}
		t.markStopped()
	}()

	return nil
}

// Stop ends the watch. Safe to call concurrently and repeatedly; stopping
// a tracker that never started is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	stop := t.stopWatch
	done := t.done
	t.stopWatch = nil
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		<-done
	}
}

// Current returns the most recent accepted position.
func (t *Tracker) Current() (Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Position{}, ErrNoPosition
	}
	return *t.last, nil
}

// Subscribe returns a channel of accepted positions and a cancel function.
// Slow subscribers drop updates rather than blocking the watch loop.
func (t *Tracker) Subscribe() (<-chan Position, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSubID
	t.nextSubID++
	ch := make(chan Position, 8)
	t.subscribers[id] = ch

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existing, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Stats returns a snapshot of session counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.stats
	stats.Running = t.running
	return stats
}

// process handles one update under the lock so updates are applied in
// arrival order.
func (t *Tracker) process(update Update) {
	if update.Err != nil {
		t.handleError(update.Err)
		return
	}
	if update.Position == nil {
		return
	}
	pos := *update.Position

	t.mu.Lock()

	t.stats.Updates++
	t.stats.LastError = nil

	var onMoved func(geo.Point)
	if t.last == nil {
		t.last = &pos
		anchor := pos.Point
		t.anchor = &anchor
	} else {
		delta := geo.Distance(t.last.Point, pos.Point)
		if geo.IsDrift(delta) {
			// Noise or an impossible jump stays out of distance accounting,
			// but the fix is still the freshest known position: it becomes
			// the new baseline so accounting resumes from wherever the
			// device actually is.
			t.stats.DriftSkipped++
			t.logger.Debug().
				Float64("delta_m", delta).
				Msg("skipping drift update for distance accounting")
		} else if err := t.ledger.AddDistance(delta); err != nil {
			t.logger.Warn().Err(err).Msg("failed to record traveled distance")
		} else {
			t.stats.MetersAdded += delta
		}
		t.last = &pos

		if t.anchor == nil {
			anchor := pos.Point
			t.anchor = &anchor
		} else if geo.Distance(*t.anchor, pos.Point) >= t.threshold {
			anchor := pos.Point
			t.anchor = &anchor
			onMoved = t.onMoved
		}
	}

	t.publishLocked(pos)
	t.mu.Unlock()

	if onMoved != nil {
		onMoved(pos.Point)
	}
}

func (t *Tracker) publishLocked(pos Position) {
	for _, ch := range t.subscribers {
		select {
		case ch <- pos:
		default:
		}
	}
}

// LastError returns the most recent source error that put tracking in an
// error state, or nil. A good fix clears it.
func (t *Tracker) LastError() *SourceError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.LastError
}

func (t *Tracker) handleError(srcErr *SourceError) {
	t.mu.Lock()
	t.stats.Errors++
	if srcErr.IsFatal() || srcErr.Code == CodeUnknown {
		errCopy := *srcErr
		t.stats.LastError = &errCopy
	}
	stop := t.stopWatch
	t.mu.Unlock()

	if srcErr.IsFatal() {
		t.logger.Error().
			Str("code", string(srcErr.Code)).
			Str("message", srcErr.Message).
			Msg("position source revoked, stopping tracking")
		if stop != nil {
			stop()
		}
		return
	}

	t.logger.Warn().
		Str("code", string(srcErr.Code)).
		Str("message", srcErr.Message).
		Msg("transient position source error")
}

func (t *Tracker) markStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false
	t.stopWatch = nil
	for id, ch := range t.subscribers {
		delete(t.subscribers, id)
		close(ch)
	}
	t.logger.Info().
		Int("updates", t.stats.Updates).
		Int("drift_skipped", t.stats.DriftSkipped).
		Float64("meters_added", t.stats.MetersAdded).
		Msg("position tracking stopped")
}
