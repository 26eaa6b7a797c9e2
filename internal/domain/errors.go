package domain

import "fmt"

// Error codes surfaced in API payloads.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeValidation  = "VALIDATION_ERROR"
	CodeDependency  = "DEPENDENCY_ERROR"
	CodeAssetExists = "ASSET_EXISTS"
	CodeGeneration  = "GENERATION_ERROR"
)

// NotFoundError reports a missing chapter/scene/panel/character/location.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ValidationError reports malformed input, e.g. an out-of-range chapter number.
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string { return e.Message }

// Requirement is one unmet generation precondition. Produced by dependency
// validation and carried inside a DependencyError; never persisted.
type Requirement struct {
	Type          string `json:"type"`
	ChapterNumber int    `json:"chapter_number,omitempty"`
	SceneNumber   int    `json:"scene_number,omitempty"`
	CharacterID   string `json:"character_id,omitempty"`
	CharacterName string `json:"character_name,omitempty"`
	LocationID    string `json:"location_id,omitempty"`
	LocationName  string `json:"location_name,omitempty"`
	Message       string `json:"message"`
	Resolution    string `json:"resolution,omitempty"`
}

// DependencyError carries the full list of missing requirements. Generation
// is all-or-nothing per requested scope: callers must not start partial work
// when this fires.
type DependencyError struct {
	Message string
	Missing []Requirement
}

func (e *DependencyError) Error() string { return e.Message }

// AssetExistsError is the idempotency guard raised when a generation target
// already has an artifact and overwrite was not requested.
type AssetExistsError struct {
	AssetType string
	AssetID   string
	Path      string
}

func (e *AssetExistsError) Error() string {
	return fmt.Sprintf("%s asset for %q already exists at %s", e.AssetType, e.AssetID, e.Path)
}

// GenerationError reports that the external model returned no usable output
// or rejected the request.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GenerationError) Unwrap() error { return e.Err }
