package domain

import (
	"strings"

	"dreamwright/pkg/slug"
)

// CharacterRole enumerates narrative roles.
type CharacterRole string

const (
	CharacterRoleProtagonist CharacterRole = "protagonist"
	CharacterRoleAntagonist  CharacterRole = "antagonist"
	CharacterRoleSupporting  CharacterRole = "supporting"
	CharacterRoleMinor       CharacterRole = "minor"
)

// CharacterDescription holds the free-text facets used to prompt the model.
type CharacterDescription struct {
	Physical    string `json:"physical,omitempty"`
	Personality string `json:"personality,omitempty"`
	Background  string `json:"background,omitempty"`
	Motivation  string `json:"motivation,omitempty"`
}

// CharacterAssets records generated visual reference artifacts. Paths are
// relative asset keys; the files may have been deleted out-of-band, so
// presence of a key does not guarantee presence of the file.
type CharacterAssets struct {
	ReferenceInput string `json:"reference_input,omitempty"`
	Portrait       string `json:"portrait,omitempty"`
	Sheet          string `json:"sheet,omitempty"`
}

// Character is a story character with its generated reference assets.
type Character struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Role        CharacterRole        `json:"role"`
	Age         string               `json:"age,omitempty"`
	Description CharacterDescription `json:"description"`
	VisualTags  []string             `json:"visual_tags,omitempty"`
	Assets      CharacterAssets      `json:"assets"`
}

// EnsureID derives the id from the name when absent.
func (c *Character) EnsureID() {
	if c.ID == "" {
		c.ID = slug.Character(c.Name)
	}
}

// ParseCharacterRole maps a free-form role string onto the enum. Unknown
// roles fall back to supporting.
func ParseCharacterRole(s string) CharacterRole {
	switch r := CharacterRole(strings.ToLower(strings.TrimSpace(s))); r {
	case CharacterRoleProtagonist, CharacterRoleAntagonist, CharacterRoleSupporting, CharacterRoleMinor:
		return r
	}
	return CharacterRoleSupporting
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
