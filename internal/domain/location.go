package domain

import (
	"strings"

	"dreamwright/pkg/slug"
)

// LocationType enumerates location settings.
type LocationType string

const (
	LocationTypeInterior LocationType = "interior"
	LocationTypeExterior LocationType = "exterior"
)

// LocationAssets records generated visual reference artifacts.
type LocationAssets struct {
	Reference string `json:"reference,omitempty"`
}

// Location is a story setting with its generated reference asset.
type Location struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        LocationType   `json:"type"`
	Description string         `json:"description,omitempty"`
	VisualTags  []string       `json:"visual_tags,omitempty"`
	Assets      LocationAssets `json:"assets"`
}

// EnsureID derives the id from the name when absent.
func (l *Location) EnsureID() {
	if l.ID == "" {
		l.ID = slug.Location(l.Name)
	}
}

// ParseLocationType maps a free-form type string onto the enum. Unknown
// types fall back to interior.
func ParseLocationType(s string) LocationType {
	switch t := LocationType(strings.ToLower(strings.TrimSpace(s))); t {
	case LocationTypeInterior, LocationTypeExterior:
		return t
	}
	return LocationTypeInterior
}
