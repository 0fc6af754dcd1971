package persist

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/prefs"
	"github.com/roadtripper/roadtripper/internal/quota"
)

const (
	// DefaultQuotaDelay is the debounce window for quota writes. Distance
	// accumulates continuously while driving, so the window is wide.
	DefaultQuotaDelay = 2 * time.Second

	// DefaultPrefsDelay is the debounce window for preference writes.
	// Preference edits are deliberate, so they land quickly.
	DefaultPrefsDelay = 500 * time.Millisecond

	// writeTimeout bounds each storage write, including the shutdown flush.
	writeTimeout = 5 * time.Second
)

// SyncerConfig holds configuration for the syncer.
type SyncerConfig struct {
	// QuotaEvents is the ledger's change stream (required).
	QuotaEvents <-chan quota.Usage

	// QuotaRepo receives debounced quota writes (required).
	QuotaRepo quota.Repository

	// PrefsEvents is the preference service's change stream (required).
	PrefsEvents <-chan prefs.Preferences

	// PrefsRepo receives debounced preference writes (required).
	PrefsRepo prefs.Repository

	// Logger for syncer operations.
	Logger zerolog.Logger

	// Clock drives the debounce timers. Defaults to the real clock.
	Clock quartz.Clock

	// QuotaDelay overrides the quota debounce window.
	QuotaDelay time.Duration

	// PrefsDelay overrides the preferences debounce window.
	PrefsDelay time.Duration
}

// Syncer consumes change streams and writes the latest record of each
// kind after a debounce. Storage failures are logged and dropped: the
// in-memory state stays authoritative and the next change retries.
type Syncer struct {
	quotaEvents <-chan quota.Usage
	quotaRepo   quota.Repository
	prefsEvents <-chan prefs.Preferences
	prefsRepo   prefs.Repository
	logger      zerolog.Logger

	quotaDebounce *Debouncer
	prefsDebounce *Debouncer

	pendingQuota *quota.Usage
	pendingPrefs *prefs.Preferences
	pendingCh    chan func()
}

// NewSyncer creates a syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	quotaDelay := cfg.QuotaDelay
	if quotaDelay == 0 {
		quotaDelay = DefaultQuotaDelay
	}
	prefsDelay := cfg.PrefsDelay
	if prefsDelay == 0 {
		prefsDelay = DefaultPrefsDelay
	}

	s := &Syncer{
		quotaEvents: cfg.QuotaEvents,
		quotaRepo:   cfg.QuotaRepo,
		prefsEvents: cfg.PrefsEvents,
		prefsRepo:   cfg.PrefsRepo,
		logger:      cfg.Logger,
		pendingCh:   make(chan func(), 2),
	}
	s.quotaDebounce = NewDebouncer(clock, quotaDelay, func() { s.enqueue(s.writeQuota) })
	s.prefsDebounce = NewDebouncer(clock, prefsDelay, func() { s.enqueue(s.writePrefs) })
	return s
}

// Run consumes events until ctx is canceled, then flushes anything still
// pending. All state access happens on this goroutine; the debounce
// timers only enqueue work back onto it.
func (s *Syncer) Run(ctx context.Context) {
	s.logger.Info().Msg("persistence syncer started")

	for {
		select {
		case usage := <-s.quotaEvents:
			s.pendingQuota = &usage
			s.quotaDebounce.Trigger()

		case p := <-s.prefsEvents:
			s.pendingPrefs = &p
			s.prefsDebounce.Trigger()

		case write := <-s.pendingCh:
			write()

		case <-ctx.Done():
			s.quotaDebounce.Stop()
			s.prefsDebounce.Stop()
			s.drainPending()
			s.writeQuota()
			s.writePrefs()
			s.logger.Info().Msg("persistence syncer stopped")
			return
		}
	}
}

// enqueue hands a write back to the Run goroutine. If Run has already
// exited the write is dropped; the shutdown flush covered it.
func (s *Syncer) enqueue(write func()) {
	select {
	case s.pendingCh <- write:
	default:
	}
}

// drainPending absorbs any last events raced in before shutdown so the
// final flush writes the freshest records.
func (s *Syncer) drainPending() {
	for {
		select {
		case usage := <-s.quotaEvents:
			s.pendingQuota = &usage
		case p := <-s.prefsEvents:
			s.pendingPrefs = &p
		default:
			return
		}
	}
}

func (s *Syncer) writeQuota() {
	if s.pendingQuota == nil {
		return
	}
	usage := *s.pendingQuota

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.quotaRepo.Upsert(ctx, usage); err != nil {
		s.logger.Warn().Err(err).Msg("quota write failed, keeping in-memory state")
		return
	}

	s.pendingQuota = nil
	s.logger.Debug().
		Float64("distance_m", usage.DistanceTraveledMeters).
		Int("searches", usage.SearchCount).
		Msg("quota usage persisted")
}

func (s *Syncer) writePrefs() {
	if s.pendingPrefs == nil {
		return
	}
	record := *s.pendingPrefs

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.prefsRepo.Upsert(ctx, record); err != nil {
		s.logger.Warn().Err(err).Msg("preferences write failed, keeping in-memory state")
		return
	}

	s.pendingPrefs = nil
	s.logger.Debug().Msg("preferences persisted")
}
