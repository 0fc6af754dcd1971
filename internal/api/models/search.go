package models

// SearchNearbyRequest asks for points of interest around a center.
type SearchNearbyRequest struct {
	Center Point `json:"center" validate:"required"`

	// RadiusMeters is optional; zero lets the engine pick its starting
	// radius and expand as needed.
	RadiusMeters int `json:"radiusMeters,omitempty" validate:"gte=0,lte=10000"`

	// Categories restricts the search. Omitted means the saved
	// preference categories are used.
	Categories []string `json:"categories,omitempty"`

	// MinRating filters out places rated below this value.
	MinRating *float64 `json:"minRating,omitempty" validate:"omitempty,gte=0,lte=5"`

	// OpenNow keeps only places currently open.
	OpenNow bool `json:"openNow,omitempty"`
}

// SearchNearbyResponse is the ranked result of a nearby search.
type SearchNearbyResponse struct {
	Places             []Place `json:"places"`
	Center             Point   `json:"center"`
	SearchRadiusMeters int     `json:"searchRadiusMeters"`
	SuggestedZoom      int     `json:"suggestedZoom"`
}

// Place is one point of interest in API responses.
type Place struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Location       Point   `json:"location"`
	DistanceMeters float64 `json:"distanceMeters"`
	Rating         float64 `json:"rating"`
	RatingCount    int     `json:"ratingCount"`
	PriceLevel     *int    `json:"priceLevel,omitempty"`
	IsOpen         *bool   `json:"isOpen,omitempty"`
	Address        string  `json:"address,omitempty"`
	PhotoURL       string  `json:"photoUrl,omitempty"`
}
