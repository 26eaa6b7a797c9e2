package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/infra"
	"dreamwright/internal/storage"
)

// RunOptions tunes one render run.
type RunOptions struct {
	Style      string
	Resolution string
	Overwrite  bool

	// Progress, when set, receives (done, total) after every panel.
	Progress func(done, total int)
}

func (o *RunOptions) defaults() {
	if o.Style == "" {
		o.Style = "webtoon"
	}
	if o.Resolution == "" {
		o.Resolution = "1K"
	}
}

// RunResult summarizes a render run. Counts partition the panels in scope:
// every panel is generated, skipped, or errored.
type RunResult struct {
	ChapterNumber  int    `json:"chapter_number"`
	SceneNumber    int    `json:"scene_number,omitempty"`
	GeneratedCount int    `json:"generated_count"`
	SkippedCount   int    `json:"skipped_count"`
	ErrorCount     int    `json:"error_count"`
	OutputDir      string `json:"output_dir,omitempty"`
}

// Orchestrator drives panel rendering for chapters and scenes.
type Orchestrator struct {
	store    *storage.Store
	images   genai.ImageGenerator
	logger   infra.Logger
	observer RunObserver
}

// NewOrchestrator wires a render orchestrator.
func NewOrchestrator(store *storage.Store, images genai.ImageGenerator, logger infra.Logger) *Orchestrator {
	return &Orchestrator{store: store, images: images, logger: logger, observer: nopObserver{}}
}

// SetObserver installs a run observer. Must be called before a run starts.
func (o *Orchestrator) SetObserver(obs RunObserver) {
	if obs == nil {
		obs = nopObserver{}
	}
	o.observer = obs
}

// RunChapter renders every panel of a chapter, scene by scene, panels in
// order. Validation is all-or-nothing: nothing renders while any dependency
// is missing. Individual panel failures do not abort the run.
func (o *Orchestrator) RunChapter(ctx context.Context, project *domain.Project, chapterNumber int, opts RunOptions) (*RunResult, error) {
	opts.defaults()

	if missing := NewValidator(project, o.store).Validate(Scope{ChapterNumber: chapterNumber}); len(missing) > 0 {
		return nil, &domain.DependencyError{
			Message: fmt.Sprintf("cannot generate panels for chapter %d: dependencies not met", chapterNumber),
			Missing: missing,
		}
	}

	chapter := project.ChapterByNumber(chapterNumber)
	charRefs, locRefs := o.buildReferences(project)

	total := 0
	for i := range chapter.Scenes {
		total += len(chapter.Scenes[i].Panels)
	}

	result := &RunResult{
		ChapterNumber: chapterNumber,
		OutputDir:     fmt.Sprintf("assets/panels/chapter-%d/", chapterNumber),
	}
	done := 0

	for i := range chapter.Scenes {
		scene := &chapter.Scenes[i]
		o.observer.SceneStarted(chapterNumber, scene)

		track := newTracker()
		if i == 0 && scene.ContinuesFromPreviousChapter {
			o.seedFromPreviousChapter(project, chapterNumber, track)
		}

		runErr := o.runScene(ctx, project, chapter, scene, charRefs, locRefs, track, opts, result, &done, total)

		if err := o.store.SaveProject(project); err != nil {
			return nil, err
		}
		if runErr != nil {
			return nil, runErr
		}
	}

	o.logRun(result)
	return result, nil
}

// RunScene renders every panel of a single scene. Cross-chapter seeding does
// not apply; only a whole-chapter run starts from the previous chapter's
// closing frame.
func (o *Orchestrator) RunScene(ctx context.Context, project *domain.Project, chapterNumber, sceneNumber int, opts RunOptions) (*RunResult, error) {
	opts.defaults()

	if missing := NewValidator(project, o.store).Validate(Scope{ChapterNumber: chapterNumber, SceneNumber: sceneNumber}); len(missing) > 0 {
		return nil, &domain.DependencyError{
			Message: fmt.Sprintf("cannot generate panels for chapter %d: dependencies not met", chapterNumber),
			Missing: missing,
		}
	}

	chapter := project.ChapterByNumber(chapterNumber)
	scene := chapter.SceneByNumber(sceneNumber)
	charRefs, locRefs := o.buildReferences(project)

	result := &RunResult{ChapterNumber: chapterNumber, SceneNumber: sceneNumber}
	done := 0

	o.observer.SceneStarted(chapterNumber, scene)
	runErr := o.runScene(ctx, project, chapter, scene, charRefs, locRefs, newTracker(), opts, result, &done, len(scene.Panels))

	if err := o.store.SaveProject(project); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}

	o.logRun(result)
	return result, nil
}

// runScene walks the scene's panels in order. Panels never render in
// parallel: each may depend on its predecessor's artifact.
func (o *Orchestrator) runScene(
	ctx context.Context,
	project *domain.Project,
	chapter *domain.Chapter,
	scene *domain.Scene,
	charRefs, locRefs map[string]string,
	track *tracker,
	opts RunOptions,
	result *RunResult,
	done *int,
	total int,
) error {
	location := project.LocationByID(scene.LocationID)

	for i := range scene.Panels {
		// Cancellation stops the run before the next panel; the panel in
		// flight is never abandoned halfway.
		if err := ctx.Err(); err != nil {
			return err
		}

		panel := &scene.Panels[i]
		o.observer.PanelStarted(chapter.Number, scene.Number, panel)

		key := storage.PanelAssetKey(chapter.Number, scene.Number, panel.Number)
		outcome := PanelOutcome{
			ChapterNumber: chapter.Number,
			SceneNumber:   scene.Number,
			PanelNumber:   panel.Number,
			AssetKey:      key,
		}

		switch {
		case o.store.AssetExists(key) && !opts.Overwrite:
			// Idempotent skip. The existing artifact still becomes the
			// continuity reference for the next panel; its character set
			// comes from the artifact's own sidecar.
			panel.ImagePath = key
			track.advance(o.store.AbsoluteAssetPath(key), o.recordedCharacterIDs(key))
			result.SkippedCount++
			outcome.Skipped = true

		default:
			if err := o.renderPanel(ctx, project, chapter, scene, panel, location, charRefs, locRefs, track, opts, key); err != nil {
				o.logger.Error().Err(err).
					Int("chapter", chapter.Number).
					Int("scene", scene.Number).
					Int("panel", panel.Number).
					Msg("panel generation failed")
				result.ErrorCount++
				outcome.Err = err
			} else {
				result.GeneratedCount++
			}
		}

		*done++
		if opts.Progress != nil {
			opts.Progress(*done, total)
		}
		o.observer.PanelFinished(outcome)
	}
	return nil
}

func (o *Orchestrator) renderPanel(
	ctx context.Context,
	project *domain.Project,
	chapter *domain.Chapter,
	scene *domain.Scene,
	panel *domain.Panel,
	location *domain.Location,
	charRefs, locRefs map[string]string,
	track *tracker,
	opts RunOptions,
	key string,
) error {
	chars := make(map[string]*domain.Character, len(panel.Characters))
	for _, pc := range panel.Characters {
		if c := project.CharacterByID(pc.CharacterID); c != nil {
			chars[pc.CharacterID] = c
		}
	}

	usePrevious := track.use(panel)

	prompt := buildPanelPrompt(panelPromptInput{
		Panel:         panel,
		Scene:         scene,
		Characters:    chars,
		Location:      location,
		Style:         opts.Style,
		UseContinuity: usePrevious,
		InPrevious: func(id string) bool {
			return usePrevious && track.inReference(id)
		},
	})

	var refs []genai.Reference
	if usePrevious {
		refs = append(refs, genai.Reference{Path: track.path, Role: "previous panel for visual continuity"})
	}
	for _, pc := range panel.Characters {
		if path, ok := charRefs[pc.CharacterID]; ok {
			name := pc.CharacterID
			if c, ok := chars[pc.CharacterID]; ok {
				name = c.Name
			}
			refs = append(refs, genai.Reference{Path: path, Role: "character reference for " + name})
		}
	}
	if path, ok := locRefs[scene.LocationID]; ok {
		refs = append(refs, genai.Reference{Path: path, Role: "location/background reference"})
	}

	aspectRatio := "3:4"
	if panel.Type == domain.PanelTypeSplash {
		aspectRatio = "9:16"
	}

	rendered, err := o.images.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      prompt,
		References:  refs,
		AspectRatio: aspectRatio,
		Resolution:  opts.Resolution,
		Style:       opts.Style,
		Refresh:     opts.Overwrite,
	})
	if err != nil {
		return err
	}

	metadata := o.panelMetadata(chapter, scene, panel, prompt, aspectRatio, opts, refs, rendered.Metadata)
	if _, err := o.store.SaveAsset(ctx, key, rendered.Data, metadata); err != nil {
		return err
	}

	panel.ImagePath = key
	track.advance(o.store.AbsoluteAssetPath(key), panel.CharacterIDs())
	return nil
}

func (o *Orchestrator) panelMetadata(
	chapter *domain.Chapter,
	scene *domain.Scene,
	panel *domain.Panel,
	prompt, aspectRatio string,
	opts RunOptions,
	refs []genai.Reference,
	generation map[string]any,
) map[string]any {
	refMeta := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		path := r.Path
		// Sidecars carry asset-relative paths so a project directory can move.
		if rel, err := filepath.Rel(o.store.AssetsPath(), r.Path); err == nil && !filepath.IsAbs(rel) && rel[0] != '.' {
			path = filepath.ToSlash(rel)
		}
		refMeta = append(refMeta, map[string]any{"path": path, "role": r.Role})
	}

	charMeta := make([]map[string]any, 0, len(panel.Characters))
	for _, pc := range panel.Characters {
		charMeta = append(charMeta, map[string]any{
			"character_id": pc.CharacterID,
			"expression":   pc.Expression,
			"position":     pc.Position,
		})
	}

	return map[string]any{
		"type":           "panel",
		"panel_id":       panel.ID,
		"panel_number":   panel.Number,
		"scene_number":   scene.Number,
		"chapter_number": chapter.Number,
		"prompt":         prompt,
		"parameters": map[string]any{
			"aspect_ratio": aspectRatio,
			"resolution":   opts.Resolution,
			"style":        opts.Style,
			"panel_type":   string(panel.Type),
		},
		"references": refMeta,
		"panel_data": map[string]any{
			"action": panel.Action,
			"composition": map[string]any{
				"shot_type": string(panel.Composition.ShotType),
				"angle":     string(panel.Composition.Angle),
			},
			"characters":              charMeta,
			"continues_from_previous": panel.ContinuesFromPrevious,
			"continuity_note":         panel.ContinuityNote,
		},
		"generation": generation,
	}
}

// buildReferences maps character and location ids to absolute reference image
// paths. Characters prefer the turnaround sheet over the portrait: three views
// anchor poses and costumes better than a single bust.
func (o *Orchestrator) buildReferences(project *domain.Project) (charRefs, locRefs map[string]string) {
	charRefs = make(map[string]string)
	for i := range project.Characters {
		char := &project.Characters[i]
		if char.Assets.Sheet != "" && o.store.AssetExists(char.Assets.Sheet) {
			charRefs[char.ID] = o.store.AbsoluteAssetPath(char.Assets.Sheet)
			continue
		}
		if char.Assets.Portrait != "" && o.store.AssetExists(char.Assets.Portrait) {
			charRefs[char.ID] = o.store.AbsoluteAssetPath(char.Assets.Portrait)
		}
	}
	locRefs = make(map[string]string)
	for i := range project.Locations {
		loc := &project.Locations[i]
		if loc.Assets.Reference != "" && o.store.AssetExists(loc.Assets.Reference) {
			locRefs[loc.ID] = o.store.AbsoluteAssetPath(loc.Assets.Reference)
		}
	}
	return charRefs, locRefs
}

// seedFromPreviousChapter points the tracker at the previous chapter's last
// rendered panel, when one exists on disk.
func (o *Orchestrator) seedFromPreviousChapter(project *domain.Project, chapterNumber int, track *tracker) {
	prev := project.ChapterByNumber(chapterNumber - 1)
	if prev == nil {
		return
	}
	last := prev.LastPanel()
	if last == nil || last.ImagePath == "" || !o.store.AssetExists(last.ImagePath) {
		return
	}
	track.seed(o.store.AbsoluteAssetPath(last.ImagePath), o.recordedCharacterIDs(last.ImagePath))
}

// recordedCharacterIDs reads the character set an artifact's sidecar recorded
// at generation time. Empty when the sidecar is missing or unreadable.
func (o *Orchestrator) recordedCharacterIDs(key string) []string {
	meta, err := o.store.AssetMetadata(key)
	if err != nil || meta == nil {
		return nil
	}
	panelData, ok := meta["panel_data"].(map[string]any)
	if !ok {
		return nil
	}
	rawChars, ok := panelData["characters"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, raw := range rawChars {
		if m, ok := raw.(map[string]any); ok {
			if id, ok := m["character_id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (o *Orchestrator) logRun(result *RunResult) {
	o.logger.Info().
		Int("chapter", result.ChapterNumber).
		Int("generated", result.GeneratedCount).
		Int("skipped", result.SkippedCount).
		Int("errors", result.ErrorCount).
		Msg("panel run finished")
}
