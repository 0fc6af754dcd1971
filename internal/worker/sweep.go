package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roadtripper/roadtripper/internal/poi"
	"github.com/roadtripper/roadtripper/internal/quota"
)

// SweepJob prunes expired rows from the persisted place cache and rolls
// the quota record over to the current day, mirroring the result to
// storage so a restart starts from accurate counters.
type SweepJob struct {
	config    SweepConfig
	logger    zerolog.Logger
	store     poi.Store
	ledger    *quota.Ledger
	quotaRepo quota.Repository

	metrics *SweepMetrics
}

// SweepMetrics tracks sweep job statistics.
type SweepMetrics struct {
	mu sync.RWMutex

	TotalSweeps   int64
	FailedSweeps  int64
	RowsPruned    int64
	QuotaRollover int64

	LastSweepAt       time.Time
	LastSweepDuration time.Duration
}

// Snapshot returns a copy of the current metrics.
func (m *SweepMetrics) Snapshot() SweepMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SweepMetrics{
		TotalSweeps:       m.TotalSweeps,
		FailedSweeps:      m.FailedSweeps,
		RowsPruned:        m.RowsPruned,
		QuotaRollover:     m.QuotaRollover,
		LastSweepAt:       m.LastSweepAt,
		LastSweepDuration: m.LastSweepDuration,
	}
}

// SweepJobConfig holds configuration for creating a SweepJob.
type SweepJobConfig struct {
	Config    SweepConfig
	Logger    zerolog.Logger
	Store     poi.Store
	Ledger    *quota.Ledger
	QuotaRepo quota.Repository
}

// NewSweepJob creates a new sweep job processor.
func NewSweepJob(cfg SweepJobConfig) *SweepJob {
	return &SweepJob{
		config:    cfg.Config.withDefaults(),
		logger:    cfg.Logger,
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		quotaRepo: cfg.QuotaRepo,
		metrics:   &SweepMetrics{},
	}
}

// SweepResult contains the result of one sweep pass.
type SweepResult struct {
	StartTime  time.Time
	Duration   time.Duration
	RowsPruned int64
	RolledOver bool
	Err        error
}

// Run executes a single sweep pass.
func (j *SweepJob) Run(ctx context.Context) *SweepResult {
	start := time.Now()
	result := &SweepResult{StartTime: start}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	pruned, err := j.store.ClearExpired(ctx, j.config.MaxAge)
	if err != nil {
		j.logger.Error().Err(err).Msg("cache sweep failed")
		result.Err = err
	} else {
		result.RowsPruned = pruned
		if pruned > 0 {
			j.logger.Info().Int64("rows", pruned).Msg("pruned expired cached places")
		}
	}

	if j.ledger != nil {
		result.RolledOver = j.rolloverQuota(ctx)
	}

	result.Duration = time.Since(start)
	j.record(result)
	return result
}

// rolloverQuota zeroes the ledger when the calendar day has changed and
// mirrors the fresh record to storage.
func (j *SweepJob) rolloverQuota(ctx context.Context) bool {
	if !j.ledger.CheckAndResetIfNeeded() {
		return false
	}

	j.logger.Info().Msg("quota rolled over to new day")
	if j.quotaRepo != nil {
		if err := j.quotaRepo.Upsert(ctx, j.ledger.Snapshot()); err != nil {
			j.logger.Warn().Err(err).Msg("failed to persist rolled-over quota")
		}
	}
	return true
}

// RunPeriodic runs sweep passes on the configured interval until the
// context is canceled.
func (j *SweepJob) RunPeriodic(ctx context.Context) {
	j.logger.Info().
		Dur("interval", j.config.Interval).
		Dur("max_age", j.config.MaxAge).
		Msg("starting periodic cache sweep")

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("periodic cache sweep stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

// Metrics returns the job's metrics collector.
func (j *SweepJob) Metrics() *SweepMetrics {
	return j.metrics
}

func (j *SweepJob) record(result *SweepResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalSweeps++
	if result.Err != nil {
		j.metrics.FailedSweeps++
	}
	j.metrics.RowsPruned += result.RowsPruned
	if result.RolledOver {
		j.metrics.QuotaRollover++
	}
	j.metrics.LastSweepAt = result.StartTime
	j.metrics.LastSweepDuration = result.Duration
}
