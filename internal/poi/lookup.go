package poi

import (
	"context"
	"errors"

	"github.com/roadtripper/roadtripper/internal/geo"
)

// Sentinel errors for search operations.
var (
	// ErrLookupUnavailable indicates the places lookup is down or the
	// circuit breaker is open.
	ErrLookupUnavailable = errors.New("places lookup unavailable")
	// ErrPlaceNotFound indicates the requested place does not exist.
	ErrPlaceNotFound = errors.New("place not found")
	// ErrMalformedResponse indicates the lookup returned a body that could
	// not be decoded.
	ErrMalformedResponse = errors.New("malformed lookup response")
	// ErrSearchQuotaExceeded is a gating outcome, not a failure: today's
	// search budget is spent. Callers route it to a limit/upgrade flow
	// rather than an error message.
	ErrSearchQuotaExceeded = errors.New("daily search quota exceeded")
)

// Lookup defines the interface to the remote places service.
type Lookup interface {
	// SearchNearby returns places of the given categories within
	// radiusMeters of center. DistanceMeters on the returned POIs is not
	// populated; the engine recomputes it per query.
	SearchNearby(ctx context.Context, center geo.Point, radiusMeters int, categories []Category) ([]POI, error)

	// GetPlace returns a single place by its stable ID.
	// Returns ErrPlaceNotFound if the remote has no such place.
	GetPlace(ctx context.Context, id string) (*POI, error)

	// Name returns the lookup identifier for logging and health reporting.
	Name() string
}

// Error provides detailed error information from the places lookup.
type Error struct {
	Lookup  string // Lookup that generated the error
	Code    string // Error code, e.g. "HTTP_502"
	Message string // Human-readable message
	Err     error  // Underlying sentinel error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
