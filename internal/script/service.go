// Package script turns story beats into fully scripted chapters.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/infra"
	"dreamwright/internal/storage"
)

// Options tunes a single chapter generation.
type Options struct {
	PanelsPerScene int
	Temperature    float64
	Refresh        bool

	// Feedback carries reviewer notes into a regeneration prompt.
	Feedback string
}

func (o *Options) defaults() {
	if o.PanelsPerScene <= 0 {
		o.PanelsPerScene = 6
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.8
	}
}

// Service generates chapter scripts and persists them into the project.
type Service struct {
	gen    genai.StructuredGenerator
	store  *storage.Store
	logger infra.Logger
}

// NewService wires a chapter script service.
func NewService(gen genai.StructuredGenerator, store *storage.Store, logger infra.Logger) *Service {
	return &Service{gen: gen, store: store, logger: logger}
}

// CheckPrerequisites verifies that chapter n can be scripted: the project has
// a story with beat n, and chapters are generated in order, so beat n past
// the first requires chapter n-1 to exist already.
func (s *Service) CheckPrerequisites(project *domain.Project, chapterNumber int) error {
	if project.Story == nil || len(project.Story.StoryBeats) == 0 {
		return &domain.ValidationError{
			Message: "project has no story beats; generate a story first",
			Field:   "story",
		}
	}
	if beats := len(project.Story.StoryBeats); chapterNumber < 1 || chapterNumber > beats {
		return &domain.ValidationError{
			Message: fmt.Sprintf("chapter number %d is out of range; the story has %d beats", chapterNumber, beats),
			Field:   "chapter_number",
		}
	}
	if chapterNumber > 1 && project.ChapterByNumber(chapterNumber-1) == nil {
		return &domain.DependencyError{
			Message: fmt.Sprintf("cannot generate chapter %d before chapter %d", chapterNumber, chapterNumber-1),
			Missing: []domain.Requirement{{
				Type:          "previous_chapter",
				ChapterNumber: chapterNumber - 1,
				Message:       fmt.Sprintf("Chapter %d must be generated first", chapterNumber-1),
				Resolution:    fmt.Sprintf("Generate chapter %d first for story continuity", chapterNumber-1),
			}},
		}
	}
	return nil
}

// GenerateChapter scripts chapter n from story beat n and saves the project.
func (s *Service) GenerateChapter(ctx context.Context, project *domain.Project, chapterNumber int, opts Options) (*domain.Chapter, error) {
	opts.defaults()

	if err := s.CheckPrerequisites(project, chapterNumber); err != nil {
		return nil, err
	}

	prompt := buildChapterPrompt(project, chapterNumber, opts.PanelsPerScene)
	if opts.Feedback != "" {
		prompt += fmt.Sprintf("\nREVISION FEEDBACK (apply to this version):\n%s\n", opts.Feedback)
	}

	var resp chapterResponse
	err := s.gen.GenerateStructured(ctx, genai.StructuredRequest{
		Prompt:            prompt,
		SystemInstruction: chapterSystemInstruction,
		SchemaName:        "chapter",
		Schema:            chapterSchema,
		Temperature:       opts.Temperature,
		Refresh:           opts.Refresh,
	}, &resp)
	if err != nil {
		return nil, err
	}

	chapter := convertChapter(&resp, project, chapterNumber)
	chapter.EnsureIDs()

	replaced := false
	for i := range project.Chapters {
		if project.Chapters[i].Number == chapterNumber {
			project.Chapters[i] = *chapter
			replaced = true
			break
		}
	}
	if !replaced {
		project.Chapters = append(project.Chapters, *chapter)
		sort.Slice(project.Chapters, func(i, j int) bool {
			return project.Chapters[i].Number < project.Chapters[j].Number
		})
	}
	if project.Status == domain.ProjectStatusDraft {
		project.Status = domain.ProjectStatusInProgress
	}

	if err := s.store.SaveProject(project); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("chapter", chapterNumber).
		Int("scenes", len(chapter.Scenes)).
		Msg("chapter script generated")

	return project.ChapterByNumber(chapterNumber), nil
}

// FormatChapter renders a chapter script for human review.
func FormatChapter(c *domain.Chapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chapter %d: %s\n", c.Number, c.Title)
	fmt.Fprintf(&b, "Summary: %s\n\n", c.Summary)

	for i := range c.Scenes {
		scene := &c.Scenes[i]
		fmt.Fprintf(&b, "── Scene %d ──\n", scene.Number)
		if scene.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", scene.Description)
		}
		if scene.LocationID != "" {
			fmt.Fprintf(&b, "Location: %s\n", scene.LocationID)
		}
		fmt.Fprintf(&b, "Mood: %s\n\n", scene.Mood)

		for j := range scene.Panels {
			panel := &scene.Panels[j]
			marker := ""
			if panel.ContinuesFromPrevious {
				marker = " [continues]"
			}
			fmt.Fprintf(&b, "  Panel %d:%s\n", panel.Number, marker)
			fmt.Fprintf(&b, "    Shot: %s, Angle: %s\n", panel.Composition.ShotType, panel.Composition.Angle)
			if panel.ContinuesFromPrevious && panel.ContinuityNote != "" {
				fmt.Fprintf(&b, "    Continuity: %s\n", panel.ContinuityNote)
			}
			fmt.Fprintf(&b, "    Action: %s\n", panel.Action)
			if len(panel.Characters) > 0 {
				parts := make([]string, 0, len(panel.Characters))
				for _, pc := range panel.Characters {
					parts = append(parts, fmt.Sprintf("%s(%s)", pc.CharacterID, pc.Expression))
				}
				fmt.Fprintf(&b, "    Characters: %s\n", strings.Join(parts, ", "))
			}
			for _, d := range panel.Dialogue {
				label := ""
				if d.Type != domain.DialogueSpeech {
					label = fmt.Sprintf("[%s] ", d.Type)
				}
				fmt.Fprintf(&b, "    %s%q\n", label, d.Text)
			}
			if len(panel.SFX) > 0 {
				fmt.Fprintf(&b, "    SFX: %s\n", strings.Join(panel.SFX, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func buildChapterPrompt(project *domain.Project, chapterNumber, panelsPerScene int) string {
	story := project.Story
	beat := story.StoryBeats[chapterNumber-1]

	charLines := make([]string, 0, len(project.Characters))
	for i := range project.Characters {
		c := &project.Characters[i]
		charLines = append(charLines, fmt.Sprintf("- %s (%s): %s", c.Name, c.Role, c.Description.Personality))
	}
	locLines := make([]string, 0, len(project.Locations))
	for i := range project.Locations {
		l := &project.Locations[i]
		locLines = append(locLines, fmt.Sprintf("- %s: %s", l.Name, l.Description))
	}

	prevContext := previousChaptersContext(project, chapterNumber)

	return fmt.Sprintf(`Create a detailed webtoon chapter for the following:

STORY: %s
%s
%s
CHAPTER %d: %s
%s

AVAILABLE CHARACTERS:
%s

AVAILABLE LOCATIONS:
%s

Generate 2-3 scenes with %d panels each that bring this story beat to life.
Include specific dialogue, expressions, and visual directions.
Make sure to use the available characters and locations appropriately.
`,
		story.Title,
		story.Logline,
		prevContext,
		chapterNumber, beat.Beat,
		beat.Description,
		strings.Join(charLines, "\n"),
		strings.Join(locLines, "\n"),
		panelsPerScene,
	)
}

// previousChaptersContext gives the model the story so far: headlines for
// every earlier chapter, plus scene-level detail for the two most recent so
// dialogue voice and open threads carry over.
func previousChaptersContext(project *domain.Project, chapterNumber int) string {
	var previous []*domain.Chapter
	for i := range project.Chapters {
		if project.Chapters[i].Number < chapterNumber {
			previous = append(previous, &project.Chapters[i])
		}
	}
	if len(previous) == 0 {
		return ""
	}
	sort.Slice(previous, func(i, j int) bool { return previous[i].Number < previous[j].Number })

	headlines := make([]string, 0, len(previous))
	for _, ch := range previous {
		headlines = append(headlines, fmt.Sprintf("Chapter %d: %s - %s", ch.Number, ch.Title, ch.Summary))
	}

	recent := previous
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}
	details := make([]string, 0, len(recent))
	for _, ch := range recent {
		details = append(details, chapterDetail(ch))
	}

	return fmt.Sprintf(`
STORY SO FAR (all previous chapters):
%s

RECENT CHAPTER DETAILS (for voice and continuity):
%s

IMPORTANT: Continue the story naturally from where the previous chapter left off.
Maintain character voice, ongoing plot threads, and emotional arcs.
Reference events from earlier chapters where relevant.
`, strings.Join(headlines, "\n"), strings.Join(details, "\n"))
}

func chapterDetail(ch *domain.Chapter) string {
	lines := []string{
		fmt.Sprintf("Chapter %d: %s", ch.Number, ch.Title),
		fmt.Sprintf("Summary: %s", ch.Summary),
	}
	for i := range ch.Scenes {
		scene := &ch.Scenes[i]
		if scene.Description != "" {
			lines = append(lines, fmt.Sprintf("- Scene: %s", truncate(scene.Description, 100)))
		}
		limit := len(scene.Panels)
		if limit > 2 {
			limit = 2
		}
		for j := 0; j < limit; j++ {
			if len(scene.Panels[j].Dialogue) > 0 {
				lines = append(lines, fmt.Sprintf("  - %q", truncate(scene.Panels[j].Dialogue[0].Text, 60)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// convertChapter maps the model's name-keyed response onto the project's
// id-keyed domain model. Names resolve by exact case-insensitive match only;
// unresolvable names are dropped rather than guessed.
func convertChapter(resp *chapterResponse, project *domain.Project, chapterNumber int) *domain.Chapter {
	// Models sometimes emit a scene number twice; keep the richer one.
	byNumber := make(map[int]*sceneResponse)
	order := make([]int, 0, len(resp.Scenes))
	for i := range resp.Scenes {
		sr := &resp.Scenes[i]
		prev, ok := byNumber[sr.Number]
		if !ok {
			order = append(order, sr.Number)
			byNumber[sr.Number] = sr
		} else if len(sr.Panels) > len(prev.Panels) {
			byNumber[sr.Number] = sr
		}
	}
	sort.Ints(order)

	scenes := make([]domain.Scene, 0, len(order))
	for _, n := range order {
		sr := byNumber[n]

		locationID := ""
		if loc := project.LocationByName(sr.LocationName); loc != nil {
			locationID = loc.ID
		}

		var charIDs []string
		for _, name := range sr.CharacterNames {
			if c := project.CharacterByName(name); c != nil {
				charIDs = append(charIDs, c.ID)
			}
		}

		panels := make([]domain.Panel, 0, len(sr.Panels))
		for i := range sr.Panels {
			panels = append(panels, convertPanel(&sr.Panels[i], project))
		}

		scenes = append(scenes, domain.Scene{
			Number:                       sr.Number,
			LocationID:                   locationID,
			TimeOfDay:                    parseTimeOfDay(sr.TimeOfDay),
			Mood:                         sr.Mood,
			Description:                  sr.Description,
			CharacterIDs:                 charIDs,
			Panels:                       panels,
			ContinuesFromPreviousChapter: sr.ContinuesFromPreviousChapter,
		})
	}

	return &domain.Chapter{
		Number:  chapterNumber,
		Title:   resp.Title,
		Summary: resp.Summary,
		Status:  domain.ChapterStatusOutlined,
		Scenes:  scenes,
	}
}

func convertPanel(pr *panelResponse, project *domain.Project) domain.Panel {
	expressions := make(map[string]string, len(pr.CharacterExpressions))
	for _, ce := range pr.CharacterExpressions {
		expressions[strings.ToLower(ce.CharacterName)] = ce.Expression
	}

	positions := []string{"left", "center", "right"}
	var panelChars []domain.PanelCharacter
	for i, name := range pr.Characters {
		c := project.CharacterByName(name)
		if c == nil {
			continue
		}
		expr := expressions[strings.ToLower(name)]
		if expr == "" {
			expr = "neutral"
		}
		panelChars = append(panelChars, domain.PanelCharacter{
			CharacterID: c.ID,
			Expression:  expr,
			Position:    positions[i%len(positions)],
		})
	}

	var dialogue []domain.Dialogue
	for _, dr := range pr.Dialogue {
		characterID := ""
		if dr.CharacterName != "" {
			if c := project.CharacterByName(dr.CharacterName); c != nil {
				characterID = c.ID
			}
		}
		dialogue = append(dialogue, domain.Dialogue{
			CharacterID: characterID,
			Text:        dr.Text,
			Type:        parseDialogueType(dr.Type),
		})
	}

	return domain.Panel{
		Number: pr.Number,
		Type:   domain.PanelTypePanel,
		Composition: domain.PanelComposition{
			ShotType: parseShotType(pr.ShotType),
			Angle:    parseAngle(pr.Angle),
		},
		Characters:            panelChars,
		Action:                pr.Action,
		Dialogue:              dialogue,
		SFX:                   pr.SFX,
		ContinuesFromPrevious: pr.ContinuesFromPrevious,
		ContinuityNote:        pr.ContinuityNote,
	}
}

func parseTimeOfDay(s string) domain.TimeOfDay {
	switch domain.TimeOfDay(strings.ToLower(s)) {
	case domain.TimeOfDayMorning, domain.TimeOfDayDay, domain.TimeOfDayEvening, domain.TimeOfDayNight:
		return domain.TimeOfDay(strings.ToLower(s))
	}
	return domain.TimeOfDayDay
}

func parseShotType(s string) domain.ShotType {
	switch domain.ShotType(strings.ToLower(s)) {
	case domain.ShotWide, domain.ShotMedium, domain.ShotCloseUp, domain.ShotExtremeCloseUp:
		return domain.ShotType(strings.ToLower(s))
	}
	return domain.ShotMedium
}

func parseAngle(s string) domain.CameraAngle {
	switch domain.CameraAngle(strings.ToLower(s)) {
	case domain.AngleEyeLevel, domain.AngleHigh, domain.AngleLow, domain.AngleDutch:
		return domain.CameraAngle(strings.ToLower(s))
	}
	return domain.AngleEyeLevel
}

func parseDialogueType(s string) domain.DialogueType {
	switch domain.DialogueType(strings.ToLower(s)) {
	case domain.DialogueSpeech, domain.DialogueThought, domain.DialogueNarration:
		return domain.DialogueType(strings.ToLower(s))
	}
	return domain.DialogueSpeech
}

// Wire shapes for the structured chapter response. Names, not ids: the model
// works in character and location names and conversion resolves them.
type chapterResponse struct {
	Number  int             `json:"number"`
	Title   string          `json:"title"`
	Summary string          `json:"summary"`
	Scenes  []sceneResponse `json:"scenes"`
}

type sceneResponse struct {
	Number                       int             `json:"number"`
	LocationName                 string          `json:"location_name"`
	TimeOfDay                    string          `json:"time_of_day"`
	Mood                         string          `json:"mood"`
	Description                  string          `json:"description"`
	CharacterNames               []string        `json:"character_names"`
	Panels                       []panelResponse `json:"panels"`
	ContinuesFromPreviousChapter bool            `json:"continues_from_previous_chapter"`
}

type panelResponse struct {
	Number                int                  `json:"number"`
	ShotType              string               `json:"shot_type"`
	Angle                 string               `json:"angle"`
	Action                string               `json:"action"`
	Characters            []string             `json:"characters"`
	CharacterExpressions  []expressionResponse `json:"character_expressions"`
	Dialogue              []dialogueResponse   `json:"dialogue"`
	SFX                   []string             `json:"sfx"`
	ContinuesFromPrevious bool                 `json:"continues_from_previous"`
	ContinuityNote        string               `json:"continuity_note"`
}

type expressionResponse struct {
	CharacterName string `json:"character_name"`
	Expression    string `json:"expression"`
}

type dialogueResponse struct {
	CharacterName string `json:"character_name"`
	Text          string `json:"text"`
	Type          string `json:"type"`
}

var chapterSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "number": {"type": "INTEGER"},
    "title": {"type": "STRING"},
    "summary": {"type": "STRING"},
    "scenes": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "number": {"type": "INTEGER"},
          "location_name": {"type": "STRING"},
          "time_of_day": {"type": "STRING", "enum": ["morning", "day", "evening", "night"]},
          "mood": {"type": "STRING"},
          "description": {"type": "STRING"},
          "character_names": {"type": "ARRAY", "items": {"type": "STRING"}},
          "continues_from_previous_chapter": {"type": "BOOLEAN"},
          "panels": {
            "type": "ARRAY",
            "items": {
              "type": "OBJECT",
              "properties": {
                "number": {"type": "INTEGER"},
                "shot_type": {"type": "STRING", "enum": ["wide", "medium", "close_up", "extreme_close_up"]},
                "angle": {"type": "STRING", "enum": ["eye_level", "high", "low", "dutch"]},
                "action": {"type": "STRING"},
                "characters": {"type": "ARRAY", "items": {"type": "STRING"}},
                "character_expressions": {
                  "type": "ARRAY",
                  "items": {
                    "type": "OBJECT",
                    "properties": {
                      "character_name": {"type": "STRING"},
                      "expression": {"type": "STRING"}
                    },
                    "required": ["character_name", "expression"]
                  }
                },
                "dialogue": {
                  "type": "ARRAY",
                  "items": {
                    "type": "OBJECT",
                    "properties": {
                      "character_name": {"type": "STRING"},
                      "text": {"type": "STRING"},
                      "type": {"type": "STRING", "enum": ["speech", "thought", "narration"]}
                    },
                    "required": ["text"]
                  }
                },
                "sfx": {"type": "ARRAY", "items": {"type": "STRING"}},
                "continues_from_previous": {"type": "BOOLEAN"},
                "continuity_note": {"type": "STRING"}
              },
              "required": ["number", "shot_type", "angle", "action"]
            }
          }
        },
        "required": ["number", "location_name", "time_of_day", "panels"]
      }
    }
  },
  "required": ["number", "title", "summary", "scenes"]
}`)

const chapterSystemInstruction = `You are an expert webtoon storyboard artist creating addictive, visually compelling content. Convert story beats into detailed chapters optimized for vertical scrolling.

## SCENE STRUCTURE (4-8 panels per scene)
Each scene should have rhythm:
1. **Opening** (1-2 panels): Establish location and mood with wide/medium shots
2. **Development** (2-4 panels): Build tension or emotion, advance plot
3. **Payoff/Hook** (1-2 panels): End with impact - revelation, emotion, or cliffhanger

## PANEL PACING FOR ENGAGEMENT
- **Slow moments down**: Use multiple panels for emotional beats (reaction shots, silences)
- **Speed up action**: Quick cuts, motion blur descriptions, diagonal compositions
- **Create rhythm**: Alternate between dialogue-heavy and visual-only panels
- **End scenes on hooks**: Last panel should make readers NEED to scroll

## SHOT TYPES (use variety!)
- **wide**: Full environment, multiple characters, establishing mood
- **medium**: Waist-up, ideal for dialogue and interaction
- **close_up**: Face focus, emotional intensity, important reactions
- **extreme_close_up**: Eyes, hands, objects - for emphasis and tension

## CAMERA ANGLES (match emotion)
- **eye_level**: Neutral, normal conversation
- **high**: Vulnerability, overview, isolation
- **low**: Power, threat, dramatic impact
- **dutch**: Unease, disorientation, wrongness

## EXPRESSIONS
Use specific emotions: neutral, happy, sad, angry, surprised, scared, confused, determined, embarrassed, thoughtful, mischievous, exhausted, hopeful, devastated

## CHARACTER AND LOCATION REFERENCES (CRITICAL)
- ONLY use characters from the provided character list - never invent new characters
- Use EXACT character names as provided
- ONLY use locations from the provided location list - never invent new locations
- Use EXACT location names as provided
- Every panel's characters[] array MUST only contain names from the available characters
- Every scene's location MUST match a name from the available locations

## CHARACTER INCLUSION IN PANELS (CRITICAL)
For each panel, list ALL characters who should be visible or partially visible:
- Include characters who are the main focus of the panel
- Include characters who are interacting with the main focus
- Include characters whose body parts are visible (hands, back, silhouette)
- For interaction panels (giving/receiving, conversation, fighting), ALWAYS include ALL participants

## PROP AND OBJECT CONTINUITY
When objects appear across multiple panels:
- Describe distinctive features (color, shape, markings) in the first panel
- Reference the same features in subsequent panels
- Use continuity_note to specify what must stay the same

## PANEL CONTINUITY
For continuous moments (same scene, same beat):
- continues_from_previous: true for direct continuation (reaction shots, zooms)
- continuity_note: what stays consistent (pose, lighting, background angle, PROPS)

## CROSS-CHAPTER CONTINUITY
For first scene:
- continues_from_previous_chapter: true if immediate continuation (mid-conversation, cliffhanger resolution)
- continues_from_previous_chapter: false if time skip or new setting`
