package prefs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PremiumGate reports whether premium categories are unlocked.
type PremiumGate interface {
	IsPremiumCategoriesEnabled(ctx context.Context) bool
}

// ServiceConfig holds configuration for the preferences service.
type ServiceConfig struct {
	// Repository is the durable store (required).
	Repository Repository

	// Gate decides premium category access (required).
	Gate PremiumGate

	// Logger for service operations.
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service holds the current preferences in memory, validates updates, and
// publishes changed records for debounced persistence. The persisted
// record is loaded once at startup; afterwards memory is authoritative.
type Service struct {
	repo   Repository
	gate   PremiumGate
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current Preferences

	events chan Preferences
}

// NewService creates the preferences service and loads the persisted
// record. A missing record falls back to defaults; a read failure falls
// back to defaults too, since preferences are recoverable state.
func NewService(ctx context.Context, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		repo:   cfg.Repository,
		gate:   cfg.Gate,
		logger: cfg.Logger,
		now:    now,
		events: make(chan Preferences, 1),
	}

	stored, err := cfg.Repository.Get(ctx)
	switch {
	case err == nil:
		s.current = *stored
	case errors.Is(err, ErrPreferencesNotFound):
		s.current = DefaultPreferences()
	default:
		cfg.Logger.Warn().Err(err).Msg("failed to load preferences, using defaults")
		s.current = DefaultPreferences()
	}

	return s
}

// Get returns the current preferences.
func (s *Service) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and applies new preferences. Premium categories are
// rejected unless the premium tier is enabled. The change is published on
// Events for the persistence layer to pick up.
func (s *Service) Update(ctx context.Context, p Preferences) (Preferences, error) {
	if err := p.Validate(); err != nil {
		return Preferences{}, err
	}

	if !s.gate.IsPremiumCategoriesEnabled(ctx) {
		for _, c := range p.Filter.Categories {
			if c.IsPremium() {
				return Preferences{}, fmt.Errorf("%q: %w", c, ErrPremiumCategory)
			}
		}
	}

	p.UpdatedAt = s.now()

	s.mu.Lock()
	s.current = p
	s.mu.Unlock()

	s.publish(p)

	s.logger.Debug().
		Int("categories", len(p.Filter.Categories)).
		Float64("min_rating", p.Filter.MinRating).
		Str("theme", string(p.Theme)).
		Msg("preferences updated")

	return p, nil
}

// Events returns the stream of changed preference records. The channel
// coalesces: only the most recent unconsumed record is retained.
func (s *Service) Events() <-chan Preferences {
	return s.events
}

func (s *Service) publish(p Preferences) {
	for {
		select {
		case s.events <- p:
			return
		default:
			// Drop the stale pending record and retry with the new one.
			select {
			case <-s.events:
			default:
			}
		}
	}
}
