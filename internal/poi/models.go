// Package poi provides point-of-interest search with a two-tier cache and
// progressive radius expansion over a remote places lookup.
package poi

import (
	"time"

	"github.com/roadtripper/roadtripper/internal/geo"
)

// Category is a point-of-interest category. The vocabulary is closed; the
// remote lookup maps its upstream taxonomy into this set.
type Category string

const (
	CategoryRestaurant       Category = "restaurant"
	CategoryCafe             Category = "cafe"
	CategoryAttraction       Category = "attraction"
	CategoryHotel            Category = "hotel"
	CategoryGasStation       Category = "gas_station"
	CategoryConvenienceStore Category = "convenience_store"
)

// FallbackCategory is assigned when the remote reports a type outside the
// closed vocabulary.
const FallbackCategory = CategoryRestaurant

// AllCategories returns the full category vocabulary.
func AllCategories() []Category {
	return []Category{
		CategoryRestaurant,
		CategoryCafe,
		CategoryAttraction,
		CategoryHotel,
		CategoryGasStation,
		CategoryConvenienceStore,
	}
}

// FreeTierCategories are available without premium entitlement.
func FreeTierCategories() []Category {
	return []Category{CategoryRestaurant, CategoryCafe, CategoryAttraction}
}

// PremiumCategories require premium entitlement.
func PremiumCategories() []Category {
	return []Category{CategoryHotel, CategoryGasStation, CategoryConvenienceStore}
}

// ParseCategory maps a raw category string into the vocabulary. Unknown
// strings fall back to FallbackCategory rather than erroring.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryRestaurant, CategoryCafe, CategoryAttraction,
		CategoryHotel, CategoryGasStation, CategoryConvenienceStore:
		return Category(s)
	default:
		return FallbackCategory
	}
}

// IsPremium reports whether the category requires premium entitlement.
func (c Category) IsPremium() bool {
	switch c {
	case CategoryHotel, CategoryGasStation, CategoryConvenienceStore:
		return true
	default:
		return false
	}
}

// POI represents a point of interest. Identity is the remote source's
// stable ID. DistanceMeters is derived per query and recomputed against
// the querying position; it is never authoritative in storage.
type POI struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       Category  `json:"category"`
	Location       geo.Point `json:"location"`
	DistanceMeters float64   `json:"distanceMeters"`
	Rating         float64   `json:"rating"`
	RatingCount    int       `json:"ratingCount"`
	PriceLevel     *int      `json:"priceLevel,omitempty"`
	IsOpen         *bool     `json:"isOpen,omitempty"`
	Address        string    `json:"address,omitempty"`
	PhotoURL       string    `json:"photoUrl,omitempty"`
}

// SearchFilter narrows a nearby search. An empty category set
// short-circuits the search to an empty result without any cache or
// network access.
type SearchFilter struct {
	Categories  []Category `json:"categories"`
	MinRating   float64    `json:"minRating"`
	OpenNowOnly bool       `json:"openNowOnly"`
}

// DefaultFilter returns the out-of-the-box search filter.
func DefaultFilter() SearchFilter {
	return SearchFilter{
		Categories:  FreeTierCategories(),
		MinRating:   4.0,
		OpenNowOnly: false,
	}
}

// HasCategory reports whether c is in the filter's category set.
func (f SearchFilter) HasCategory(c Category) bool {
	for _, fc := range f.Categories {
		if fc == c {
			return true
		}
	}
	return false
}

// SearchResult is the outcome of a nearby search. SearchRadiusMeters is
// the radius actually used after progressive expansion, so callers can
// size a map viewport accordingly.
type SearchResult struct {
	POIs               []POI     `json:"pois"`
	Center             geo.Point `json:"center"`
	SearchRadiusMeters int       `json:"searchRadiusMeters"`
	SuggestedZoom      int       `json:"suggestedZoom"`
}

// CachedPOI is a POI persisted in the durable cache, annotated with the
// search that produced it. Rows are written after every remote fetch,
// pruned by age, and re-validated against the query's spatial and category
// constraints on every read.
type CachedPOI struct {
	POI

	CachedAt           time.Time `json:"cachedAt"`
	SearchCenter       geo.Point `json:"searchCenter"`
	SearchRadiusMeters int       `json:"searchRadiusMeters"`
}

// SuggestedZoom maps a search radius to a map zoom level.
func SuggestedZoom(radiusMeters int) int {
	switch {
	case radiusMeters <= 1000:
		return 15
	case radiusMeters <= 3000:
		return 14
	case radiusMeters <= 5000:
		return 13
	default:
		return 12
	}
}
