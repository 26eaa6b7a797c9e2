// Package pipeline renders panel artwork for scripted chapters: dependency
// validation, sequential generation with panel-to-panel continuity, and the
// bookkeeping that records artifacts back onto the project.
package pipeline

import (
	"fmt"

	"dreamwright/internal/domain"
	"dreamwright/internal/storage"
)

// Scope selects what a run covers: a whole chapter, or one scene of it when
// SceneNumber is set.
type Scope struct {
	ChapterNumber int
	SceneNumber   int
}

// Validator checks that everything a render run needs already exists.
type Validator struct {
	project *domain.Project
	store   *storage.Store
}

// NewValidator builds a validator over a loaded project.
func NewValidator(project *domain.Project, store *storage.Store) *Validator {
	return &Validator{project: project, store: store}
}

// Validate returns every unmet requirement for the scope, empty when the run
// may proceed. Structural problems (missing chapter or scene) short-circuit;
// asset problems accumulate so the caller sees the full shopping list at once.
func (v *Validator) Validate(scope Scope) []domain.Requirement {
	var missing []domain.Requirement

	chapter := v.project.ChapterByNumber(scope.ChapterNumber)
	if chapter == nil {
		return append(missing, domain.Requirement{
			Type:          "chapter",
			ChapterNumber: scope.ChapterNumber,
			Message:       fmt.Sprintf("Chapter %d not found", scope.ChapterNumber),
			Resolution:    fmt.Sprintf("Generate chapter %d first", scope.ChapterNumber),
		})
	}
	if len(chapter.Scenes) == 0 {
		return append(missing, domain.Requirement{
			Type:          "scenes",
			ChapterNumber: scope.ChapterNumber,
			Message:       fmt.Sprintf("Chapter %d has no scenes", scope.ChapterNumber),
			Resolution:    "Regenerate chapter",
		})
	}

	scenes := chapter.Scenes
	if scope.SceneNumber != 0 {
		scene := chapter.SceneByNumber(scope.SceneNumber)
		if scene == nil {
			return append(missing, domain.Requirement{
				Type:        "scene",
				SceneNumber: scope.SceneNumber,
				Message:     fmt.Sprintf("Scene %d not found in Chapter %d", scope.SceneNumber, scope.ChapterNumber),
				Resolution:  "Check scene number",
			})
		}
		scenes = []domain.Scene{*scene}
	}

	if scope.ChapterNumber > 1 && v.project.ChapterByNumber(scope.ChapterNumber-1) == nil {
		missing = append(missing, domain.Requirement{
			Type:          "previous_chapter",
			ChapterNumber: scope.ChapterNumber - 1,
			Message:       fmt.Sprintf("Chapter %d must be generated first", scope.ChapterNumber-1),
			Resolution:    fmt.Sprintf("Generate chapter %d first", scope.ChapterNumber-1),
		})
	}

	charIDs, locIDs := requiredIDs(scenes)

	for _, id := range charIDs {
		char := v.project.CharacterByID(id)
		if char == nil {
			missing = append(missing, domain.Requirement{
				Type:        "character",
				CharacterID: id,
				Message:     fmt.Sprintf("Character %q not found in project", id),
				Resolution:  "Check character IDs in scene",
			})
			continue
		}
		if char.Assets.Portrait == "" {
			missing = append(missing, domain.Requirement{
				Type:          "character_asset",
				CharacterID:   id,
				CharacterName: char.Name,
				Message:       fmt.Sprintf("No portrait asset for %s", char.Name),
				Resolution:    fmt.Sprintf("Generate portrait asset for character %q", char.Name),
			})
			continue
		}
		if !v.store.AssetExists(char.Assets.Portrait) {
			missing = append(missing, domain.Requirement{
				Type:          "character_asset",
				CharacterID:   id,
				CharacterName: char.Name,
				Message:       fmt.Sprintf("Portrait file missing for %s", char.Name),
				Resolution:    fmt.Sprintf("Regenerate portrait asset for character %q", char.Name),
			})
		}
	}

	for _, id := range locIDs {
		loc := v.project.LocationByID(id)
		if loc == nil {
			missing = append(missing, domain.Requirement{
				Type:       "location",
				LocationID: id,
				Message:    fmt.Sprintf("Location %q not found in project", id),
				Resolution: "Check location IDs in scene",
			})
			continue
		}
		if loc.Assets.Reference == "" {
			missing = append(missing, domain.Requirement{
				Type:         "location_asset",
				LocationID:   id,
				LocationName: loc.Name,
				Message:      fmt.Sprintf("No reference asset for %s", loc.Name),
				Resolution:   fmt.Sprintf("Generate reference asset for location %q", loc.Name),
			})
			continue
		}
		if !v.store.AssetExists(loc.Assets.Reference) {
			missing = append(missing, domain.Requirement{
				Type:         "location_asset",
				LocationID:   id,
				LocationName: loc.Name,
				Message:      fmt.Sprintf("Reference file missing for %s", loc.Name),
				Resolution:   fmt.Sprintf("Regenerate reference asset for location %q", loc.Name),
			})
		}
	}

	return missing
}

// requiredIDs collects character and location ids referenced by the scenes,
// first-seen order, deduplicated.
func requiredIDs(scenes []domain.Scene) (charIDs, locIDs []string) {
	seenChar := make(map[string]struct{})
	seenLoc := make(map[string]struct{})
	for i := range scenes {
		scene := &scenes[i]
		if scene.LocationID != "" {
			if _, ok := seenLoc[scene.LocationID]; !ok {
				seenLoc[scene.LocationID] = struct{}{}
				locIDs = append(locIDs, scene.LocationID)
			}
		}
		for j := range scene.Panels {
			for _, pc := range scene.Panels[j].Characters {
				if _, ok := seenChar[pc.CharacterID]; !ok {
					seenChar[pc.CharacterID] = struct{}{}
					charIDs = append(charIDs, pc.CharacterID)
				}
			}
		}
	}
	return charIDs, locIDs
}
