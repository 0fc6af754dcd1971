package models

// PositionUpdateRequest reports a device position fix.
type PositionUpdateRequest struct {
	Point          Point      `json:"point" validate:"required"`
	AccuracyMeters float64    `json:"accuracyMeters,omitempty" validate:"gte=0"`
	Heading        *float64   `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	SpeedMPS       *float64   `json:"speedMps,omitempty" validate:"omitempty,gte=0"`
	Timestamp      *Timestamp `json:"timestamp,omitempty"`
}

// PositionResponse is the tracker's view of the current position.
type PositionResponse struct {
	Point          Point     `json:"point"`
	AccuracyMeters float64   `json:"accuracyMeters,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	SpeedMPS       *float64  `json:"speedMps,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// TrackingStats summarizes the tracking session.
type TrackingStats struct {
	Updates      int            `json:"updates"`
	DriftSkipped int            `json:"driftSkipped"`
	Errors       int            `json:"errors"`
	MetersAdded  float64        `json:"metersAdded"`
	Running      bool           `json:"running"`
	LastError    *TrackingError `json:"lastError,omitempty"`
}

// TrackingError describes a source failure that put tracking in an error
// state.
type TrackingError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
