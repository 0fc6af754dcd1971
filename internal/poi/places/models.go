package places

// placesNearbyRequest is the wire request for a nearby search.
type placesNearbyRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Radius    int      `json:"radius"`
	Types     []string `json:"types"`
}

// placesNearbyResponse is the wire response for a nearby search.
type placesNearbyResponse struct {
	Places []placeRecord `json:"places"`
}

// placeRecord is one place as returned by the provider.
type placeRecord struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Location placeLocation `json:"location"`
	Rating   float64       `json:"rating"`
	// RatingCount is the number of ratings behind the aggregate score.
	RatingCount int    `json:"ratingCount"`
	PriceLevel  *int   `json:"priceLevel,omitempty"`
	IsOpen      *bool  `json:"isOpen,omitempty"`
	Address     string `json:"address,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

type placeLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// placesErrorResponse is the provider's error envelope.
type placesErrorResponse struct {
	Error string `json:"error"`
}
