// Package prefs manages the user's search preferences: selected
// categories, minimum rating, open-now filtering, and display theme.
package prefs

import (
	"errors"
	"fmt"
	"time"

	"github.com/roadtripper/roadtripper/internal/poi"
)

// ErrPreferencesNotFound is returned when no preferences are persisted yet.
var ErrPreferencesNotFound = errors.New("preferences not found")

// ErrPremiumCategory is returned when a premium category is selected
// without the premium tier being enabled.
var ErrPremiumCategory = errors.New("category requires premium tier")

// Theme selects the map display theme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Preferences are the user's saved search settings.
type Preferences struct {
	Filter    poi.SearchFilter `json:"filter"`
	Theme     Theme            `json:"theme"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// DefaultPreferences returns the settings a fresh install starts with.
func DefaultPreferences() Preferences {
	return Preferences{
		Filter: poi.DefaultFilter(),
		Theme:  ThemeSystem,
	}
}

// Validate checks structural validity independent of the premium tier.
func (p Preferences) Validate() error {
	if p.Filter.MinRating < 0 || p.Filter.MinRating > 5 {
		return fmt.Errorf("min rating %.1f out of range [0, 5]", p.Filter.MinRating)
	}
	switch p.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return fmt.Errorf("unknown theme %q", p.Theme)
	}
	seen := make(map[poi.Category]bool, len(p.Filter.Categories))
	for _, c := range p.Filter.Categories {
		if !validCategory(c) {
			return fmt.Errorf("unknown category %q", c)
		}
		if seen[c] {
			return fmt.Errorf("duplicate category %q", c)
		}
		seen[c] = true
	}
	return nil
}

func validCategory(c poi.Category) bool {
	for _, known := range poi.AllCategories() {
		if known == c {
			return true
		}
	}
	return false
}
