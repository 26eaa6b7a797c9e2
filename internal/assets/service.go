// Package assets generates character and location reference images.
package assets

import (
	"context"
	"fmt"
	"strings"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/infra"
	"dreamwright/internal/storage"
	"dreamwright/pkg/slug"
)

// GenerateOptions tunes reference asset generation.
type GenerateOptions struct {
	Style      string
	Resolution string
	Overwrite  bool
}

func (o *GenerateOptions) defaults() {
	if o.Style == "" {
		o.Style = "webtoon"
	}
	if o.Resolution == "" {
		o.Resolution = "1K"
	}
}

// CharacterAssetResult reports the artifacts written for one character.
type CharacterAssetResult struct {
	CharacterID  string `json:"character_id"`
	SheetPath    string `json:"sheet_path"`
	PortraitPath string `json:"portrait_path"`
	Style        string `json:"style"`
}

// LocationAssetResult reports the artifact written for one location.
type LocationAssetResult struct {
	LocationID string `json:"location_id"`
	Path       string `json:"path"`
	Style      string `json:"style"`
}

// Service renders reference assets and records their keys on the project.
type Service struct {
	images genai.ImageGenerator
	store  *storage.Store
	logger infra.Logger
}

// NewService wires an asset generation service.
func NewService(images genai.ImageGenerator, store *storage.Store, logger infra.Logger) *Service {
	return &Service{images: images, store: store, logger: logger}
}

// GenerateCharacterAsset renders a character's reference artifacts in two
// steps: the full-body turnaround sheet first, then a portrait that uses the
// sheet as its consistency reference so the face matches the body design.
// An existing portrait whose file is still on disk blocks regeneration
// unless Overwrite is set.
func (s *Service) GenerateCharacterAsset(ctx context.Context, project *domain.Project, characterID string, opts GenerateOptions) (*CharacterAssetResult, error) {
	opts.defaults()

	char := project.CharacterByID(characterID)
	if char == nil {
		return nil, &domain.NotFoundError{Resource: "character", ID: characterID}
	}
	if !opts.Overwrite && char.Assets.Portrait != "" && s.store.AssetExists(char.Assets.Portrait) {
		return nil, &domain.AssetExistsError{AssetType: "character", AssetID: char.Name, Path: char.Assets.Portrait}
	}

	folder := "characters/" + slug.Make(char.Name)

	var sheetRefs []genai.Reference
	if char.Assets.ReferenceInput != "" && s.store.AssetExists(char.Assets.ReferenceInput) {
		sheetRefs = append(sheetRefs, genai.Reference{
			Path: s.store.AbsoluteAssetPath(char.Assets.ReferenceInput),
			Role: fmt.Sprintf("existing reference of %s - match appearance exactly", char.Name),
		})
	}

	sheet, err := s.images.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      characterPrompt(char, characterSheetBasePrompt(opts.Style)),
		References:  sheetRefs,
		AspectRatio: "16:9",
		Resolution:  opts.Resolution,
		Style:       opts.Style,
		Refresh:     opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	sheetKey, err := s.store.SaveAsset(ctx, folder+"/sheet.png", sheet.Data, characterMetadata(char, opts.Style, "character_sheet", "", sheet.Metadata))
	if err != nil {
		return nil, err
	}
	char.Assets.Sheet = sheetKey

	portrait, err := s.images.GenerateImage(ctx, genai.ImageRequest{
		Prompt: characterPrompt(char, portraitBasePrompt(opts.Style)),
		References: []genai.Reference{{
			Path: s.store.AbsoluteAssetPath(sheetKey),
			Role: fmt.Sprintf("existing portrait of %s for consistency", char.Name),
		}},
		AspectRatio: "9:16",
		Resolution:  opts.Resolution,
		Style:       opts.Style,
		Refresh:     opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	portraitKey, err := s.store.SaveAsset(ctx, folder+"/portrait.png", portrait.Data, characterMetadata(char, opts.Style, "portrait", sheetKey, portrait.Metadata))
	if err != nil {
		return nil, err
	}
	char.Assets.Portrait = portraitKey

	if err := s.store.SaveProject(project); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("character", char.ID).
		Str("sheet", sheetKey).
		Str("portrait", portraitKey).
		Msg("character assets generated")

	return &CharacterAssetResult{
		CharacterID:  char.ID,
		SheetPath:    sheetKey,
		PortraitPath: portraitKey,
		Style:        opts.Style,
	}, nil
}

// GenerateLocationAsset renders a location's background reference image.
func (s *Service) GenerateLocationAsset(ctx context.Context, project *domain.Project, locationID string, opts GenerateOptions) (*LocationAssetResult, error) {
	opts.defaults()

	loc := project.LocationByID(locationID)
	if loc == nil {
		return nil, &domain.NotFoundError{Resource: "location", ID: locationID}
	}
	if !opts.Overwrite && loc.Assets.Reference != "" && s.store.AssetExists(loc.Assets.Reference) {
		return nil, &domain.AssetExistsError{AssetType: "location", AssetID: loc.Name, Path: loc.Assets.Reference}
	}

	result, err := s.images.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      locationPrompt(loc, opts.Style),
		AspectRatio: "16:9",
		Resolution:  opts.Resolution,
		Style:       opts.Style,
		Refresh:     opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	key, err := s.store.SaveAsset(ctx, "locations/"+slug.Make(loc.Name)+"/reference.png", result.Data, map[string]any{
		"type":          "location",
		"location_id":   loc.ID,
		"location_name": loc.Name,
		"location_type": string(loc.Type),
		"style":         opts.Style,
		"description":   loc.Description,
		"visual_tags":   loc.VisualTags,
		"generation":    result.Metadata,
	})
	if err != nil {
		return nil, err
	}
	loc.Assets.Reference = key

	if err := s.store.SaveProject(project); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("location", loc.ID).
		Str("reference", key).
		Msg("location asset generated")

	return &LocationAssetResult{LocationID: loc.ID, Path: key, Style: opts.Style}, nil
}

func characterMetadata(char *domain.Character, style, assetType, referenceSheet string, generation map[string]any) map[string]any {
	meta := map[string]any{
		"type":           "character",
		"character_id":   char.ID,
		"character_name": char.Name,
		"role":           string(char.Role),
		"age":            char.Age,
		"style":          style,
		"visual_tags":    char.VisualTags,
		"description": map[string]any{
			"physical":    char.Description.Physical,
			"personality": char.Description.Personality,
		},
		"asset_type": assetType,
		"generation": generation,
	}
	if referenceSheet != "" {
		meta["reference_sheet"] = referenceSheet
	}
	return meta
}

// characterPrompt appends the character's identity details to a base prompt.
func characterPrompt(char *domain.Character, basePrompt string) string {
	parts := []string{basePrompt, "\nCharacter: " + char.Name}
	if char.Age != "" {
		parts = append(parts, "Age: "+char.Age)
	}
	if char.Description.Physical != "" {
		parts = append(parts, "Physical appearance: "+char.Description.Physical)
	}
	if len(char.VisualTags) > 0 {
		parts = append(parts, "Visual details: "+strings.Join(char.VisualTags, ", "))
	}
	if char.Description.Personality != "" {
		parts = append(parts, "Personality (for expression): "+char.Description.Personality)
	}
	return strings.Join(parts, "\n")
}

func characterSheetBasePrompt(style string) string {
	return fmt.Sprintf(`Create a CHARACTER TURNAROUND SHEET in %s art style.

## LAYOUT
Create a SINGLE IMAGE showing the SAME character THREE times side by side:
- LEFT: Full body FRONT view (facing viewer)
- CENTER: Full body SIDE view (profile, facing right)
- RIGHT: Full body BACK view (facing away)

## REQUIREMENTS
- All three views show the EXACT SAME character with IDENTICAL outfit
- Full body from head to feet in each view
- Relaxed standing pose (arms slightly away from body to show costume)
- Clean white or light gray background
- Character sheet/model sheet style for animation reference
- All views at the same scale and aligned at feet level
- Show clothing, hair, and accessories clearly from all angles
- Professional quality suitable for production reference

## CONSISTENCY IS CRITICAL
- Same hair style/color in all views
- Same outfit in all views (every detail must match)
- Same accessories and items in all views
- Same body proportions in all views
`, style)
}

func portraitBasePrompt(style string) string {
	return fmt.Sprintf(`Create a character portrait in %s art style.

Requirements:
- Upper body portrait (head to waist or chest)
- Neutral expression showing character's personality
- Clean background (solid color or simple gradient)
- High quality, detailed illustration
- Consistent with webtoon/manhwa aesthetic
- Front-facing, looking slightly towards viewer
- Vertical composition suitable for character card
`, style)
}

func locationPrompt(loc *domain.Location, style string) string {
	parts := []string{fmt.Sprintf(`Create a background/environment illustration in %s art style.

Requirements:
- Establishing shot of the location
- Bright daylight, clear visibility, natural lighting
- No characters in the scene
- Detailed environment suitable for webtoon backgrounds
- Wide composition showing the space
- Atmospheric and immersive

IMPORTANT - Background Only Rules:
- Focus on ENVIRONMENTAL elements: walls, floors, ceilings, architecture, lighting, atmosphere
- DO NOT include interactive objects that characters would use (cars, furniture, seats, steering wheels, etc.)
- Interactive props and character positioning will be handled separately during panel composition
- This is a STATIC BACKGROUND reference that panels will composite characters onto
`, style)}
	parts = append(parts, "\nLocation: "+loc.Name, "Type: "+string(loc.Type))
	if loc.Description != "" {
		parts = append(parts, "Description: "+loc.Description)
	}
	if len(loc.VisualTags) > 0 {
		parts = append(parts, "Visual details: "+strings.Join(loc.VisualTags, ", "))
	}
	return strings.Join(parts, "\n")
}
