package resilience

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	cfg := DefaultConfig("places")
	cfg.Registry = registry
	NewClient(cfg)

	health, ok := registry.GetHealth("places")
	require.True(t, ok)
	assert.Equal(t, "places", health.Name)
	assert.True(t, health.IsHealthy())

	_, ok = registry.GetHealth("unknown")
	assert.False(t, ok)
}

func TestRegistryRecordsFailuresAndRecovery(t *testing.T) {
	registry := NewRegistry()

	cfg := DefaultConfig("places")
	cfg.Registry = registry
	NewClient(cfg)

	registry.RecordFailure("places", errors.New("connection refused"))
	registry.RecordFailure("places", errors.New("connection refused"))

	health, ok := registry.GetHealth("places")
	require.True(t, ok)
	assert.True(t, health.IsDegraded())
	assert.Equal(t, uint32(2), health.ConsecutiveFails)
	assert.Equal(t, "connection refused", health.LastError)
	assert.False(t, health.LastFailureAt.IsZero())

	registry.RecordSuccess("places")

	health, ok = registry.GetHealth("places")
	require.True(t, ok)
	assert.True(t, health.IsHealthy())
	assert.Zero(t, health.ConsecutiveFails)
	assert.Empty(t, health.LastError)
}

func TestRegistryGetAllHealth(t *testing.T) {
	registry := NewRegistry()

	for _, name := range []string{"places", "geocoder"} {
		cfg := DefaultConfig(name)
		cfg.Registry = registry
		NewClient(cfg)
	}

	all := registry.GetAllHealth()
	assert.Len(t, all, 2)
}

func TestRegistryIgnoresUnknownProvider(t *testing.T) {
	registry := NewRegistry()

	// Must not panic or create phantom entries.
	registry.RecordSuccess("ghost")
	registry.RecordFailure("ghost", errors.New("boom"))

	assert.Empty(t, registry.GetAllHealth())
}
