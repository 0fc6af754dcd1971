// Package worker provides background job processing for RoadTripper.
package worker

import (
	"time"
)

// SweepConfig holds configuration for the cache sweep job.
type SweepConfig struct {
	// MaxAge is the age past which cached places are pruned.
	// Matches the search engine's cache TTL. Default: 10 minutes.
	MaxAge time.Duration

	// Interval is how often the periodic sweep runs. Default: 5 minutes.
	Interval time.Duration

	// Timeout bounds a single sweep pass. Default: 30 seconds.
	Timeout time.Duration
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		MaxAge:   10 * time.Minute,
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

func (c SweepConfig) withDefaults() SweepConfig {
	d := DefaultSweepConfig()
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
