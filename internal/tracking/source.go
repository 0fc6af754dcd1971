// Package tracking turns a raw position feed into a drift-filtered stream
// of device positions and accounts traveled distance against the daily
// quota.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/roadtripper/roadtripper/internal/geo"
)

// Permission is the position source's authorization state.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// ErrorCode classifies position source failures.
type ErrorCode string

const (
	// CodePermissionDenied means the source may no longer be read. Fatal:
	// the tracker stops.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodePositionUnavailable means the source temporarily has no fix.
	// Transient: the tracker keeps watching.
	CodePositionUnavailable ErrorCode = "POSITION_UNAVAILABLE"

	// CodeTimeout means a position did not arrive in time. Transient.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeUnknown covers everything else. The watch continues, but the
	// error is surfaced as the tracker's error state.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// SourceError is a classified failure from the position source.
type SourceError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("position source: %s: %s", e.Code, e.Message)
}

// IsFatal reports whether the error should stop tracking entirely.
func (e *SourceError) IsFatal() bool {
	return e.Code == CodePermissionDenied
}

// Position is one fix from the position source.
type Position struct {
	Point          geo.Point `json:"point"`
	AccuracyMeters float64   `json:"accuracyMeters,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	SpeedMPS       *float64  `json:"speedMps,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Update is one event on the watch stream: either a position or a
// classified error, never both.
type Update struct {
	Position *Position
	Err      *SourceError
}

// Source is a feed of device positions.
type Source interface {
	// Watch starts delivering updates until ctx is canceled or stop is
	// called. The returned channel is closed when the watch ends.
	Watch(ctx context.Context) (updates <-chan Update, stop func(), err error)

	// Current returns the most recent known position without watching.
	Current(ctx context.Context) (Position, error)

	// CheckPermission reports the source's authorization state.
	CheckPermission(ctx context.Context) (Permission, error)
}
