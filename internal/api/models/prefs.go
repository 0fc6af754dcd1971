package models

// Preferences are the user's saved search settings on the wire.
type Preferences struct {
	Categories []string   `json:"categories"`
	MinRating  float64    `json:"minRating" validate:"gte=0,lte=5"`
	OpenNow    bool       `json:"openNow"`
	Theme      string     `json:"theme" validate:"oneof=light dark system"`
	UpdatedAt  *Timestamp `json:"updatedAt,omitempty"`
}
