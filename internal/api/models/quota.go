package models

// QuotaResponse reports the day's budget consumption.
type QuotaResponse struct {
	DistanceTraveledMeters float64 `json:"distanceTraveledMeters"`
	DistanceLimitMeters    float64 `json:"distanceLimitMeters"`
	DistancePercentage     float64 `json:"distancePercentage"`
	SearchCount            int     `json:"searchCount"`
	SearchLimit            int     `json:"searchLimit"`
	LastReset              string  `json:"lastReset"`
	DistanceExceeded       bool    `json:"distanceExceeded"`
	SearchExceeded         bool    `json:"searchExceeded"`
}
