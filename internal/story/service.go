// Package story expands a raw story idea into the full narrative backbone of
// a project: story beats, characters, and locations.
package story

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/infra"
	"dreamwright/internal/storage"
	"dreamwright/pkg/slug"
)

// Options tunes a single story expansion.
type Options struct {
	Genre       string
	Tone        string
	Episodes    int
	Temperature float64
	Refresh     bool

	// RefinePrompt runs the raw idea through a text pass that fleshes out a
	// terse prompt before expansion.
	RefinePrompt bool
}

func (o *Options) defaults() {
	if o.Episodes <= 0 {
		o.Episodes = 10
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.8
	}
}

// Result summarizes an expansion for job result payloads.
type Result struct {
	StoryID        string `json:"story_id"`
	Title          string `json:"title"`
	CharacterCount int    `json:"character_count"`
	LocationCount  int    `json:"location_count"`
}

// Service expands story prompts and persists the result into the project.
type Service struct {
	text   genai.TextGenerator
	gen    genai.StructuredGenerator
	store  *storage.Store
	logger infra.Logger
}

// NewService wires a story expansion service.
func NewService(text genai.TextGenerator, gen genai.StructuredGenerator, store *storage.Store, logger infra.Logger) *Service {
	return &Service{text: text, gen: gen, store: store, logger: logger}
}

// Expand turns a prompt into a story with beats, characters, and locations,
// replacing whatever the project held before. The caller decides whether an
// existing story blocks the call.
func (s *Service) Expand(ctx context.Context, project *domain.Project, prompt string, opts Options) (*Result, error) {
	opts.defaults()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &domain.ValidationError{Message: "story prompt is required", Field: "prompt"}
	}

	if opts.RefinePrompt {
		refined, err := s.refinePrompt(ctx, prompt, opts)
		if err != nil {
			return nil, err
		}
		prompt = refined
	}

	var resp expansionResponse
	err := s.gen.GenerateStructured(ctx, genai.StructuredRequest{
		Prompt:            buildExpansionPrompt(prompt, opts),
		SystemInstruction: expansionSystemInstruction,
		SchemaName:        "story",
		Schema:            storySchema,
		Temperature:       opts.Temperature,
		Refresh:           opts.Refresh,
	}, &resp)
	if err != nil {
		return nil, err
	}

	story := convertStory(&resp)
	characters := convertCharacters(resp.Characters)
	locations := convertLocations(resp.Locations)

	project.OriginalPrompt = prompt
	project.Story = story
	project.Characters = characters
	project.Locations = locations
	if project.Status == domain.ProjectStatusDraft {
		project.Status = domain.ProjectStatusInProgress
	}

	if err := s.store.SaveProject(project); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("story_id", story.ID).
		Str("title", story.Title).
		Int("beats", len(story.StoryBeats)).
		Int("characters", len(characters)).
		Int("locations", len(locations)).
		Msg("story expanded")

	return &Result{
		StoryID:        story.ID,
		Title:          story.Title,
		CharacterCount: len(characters),
		LocationCount:  len(locations),
	}, nil
}

// refinePrompt rewrites a raw idea into a richer brief before expansion.
func (s *Service) refinePrompt(ctx context.Context, prompt string, opts Options) (string, error) {
	refined, err := s.text.GenerateText(ctx, genai.TextRequest{
		Prompt:            fmt.Sprintf("Rewrite this story idea as a richer one-paragraph brief. Keep every named character, place, and plot element; add concrete stakes, a protagonist goal, and a visual hook. Answer with the brief only.\n\nIDEA:\n%s", prompt),
		SystemInstruction: "You sharpen story pitches for webtoon writers. You never change what the idea is about, only make it more concrete.",
		Temperature:       opts.Temperature,
		Refresh:           opts.Refresh,
	})
	if err != nil {
		return "", err
	}
	refined = strings.TrimSpace(refined)
	if refined == "" {
		return prompt, nil
	}
	return refined, nil
}

func buildExpansionPrompt(prompt string, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expand this story idea into a complete webtoon/short-form drama structure:\n\nSTORY IDEA:\n%s\n\n", prompt)
	if opts.Genre != "" {
		fmt.Fprintf(&b, "SUGGESTED GENRE: %s\n", opts.Genre)
	}
	if opts.Tone != "" {
		fmt.Fprintf(&b, "SUGGESTED TONE: %s\n", opts.Tone)
	}
	fmt.Fprintf(&b, "TARGET EPISODES: %d\n", opts.Episodes)
	b.WriteString(`
Please create:
1. A compelling title and logline
2. Genre and tone that best fits the story
3. Core themes (2-4 themes)
4. A synopsis (2-3 paragraphs)
5. Key story beats (hook, inciting incident, rising action, climax, resolution)
6. Characters (4-5 max): 1-2 main characters and 2-3 supporting characters with detailed descriptions and visual tags
7. Key locations (3-4) with descriptions and visual tags

Make the story engaging for a modern audience, suitable for vertical scrolling webtoon format or short-form video drama.
`)
	return b.String()
}

func convertStory(resp *expansionResponse) *domain.Story {
	beats := make([]domain.StoryBeat, 0, len(resp.StoryBeats))
	for _, b := range resp.StoryBeats {
		beats = append(beats, domain.StoryBeat{Beat: b.Beat, Description: b.Description})
	}
	return &domain.Story{
		ID:             "story_" + slug.Make(resp.Title),
		Title:          resp.Title,
		Logline:        resp.Logline,
		Genre:          parseGenre(resp.Genre),
		Tone:           parseTone(resp.Tone),
		Themes:         resp.Themes,
		TargetAudience: resp.TargetAudience,
		EpisodeCount:   resp.EpisodeCount,
		Synopsis:       resp.Synopsis,
		StoryBeats:     beats,
	}
}

func convertCharacters(chars []characterResponse) []domain.Character {
	result := make([]domain.Character, 0, len(chars))
	for _, c := range chars {
		char := domain.Character{
			Name: c.Name,
			Role: domain.ParseCharacterRole(c.Role),
			Age:  c.Age,
			Description: domain.CharacterDescription{
				Physical:    c.PhysicalDescription,
				Personality: c.Personality,
				Background:  c.Background,
				Motivation:  c.Motivation,
			},
			VisualTags: c.VisualTags,
		}
		char.EnsureID()
		result = append(result, char)
	}
	return result
}

func convertLocations(locs []locationResponse) []domain.Location {
	result := make([]domain.Location, 0, len(locs))
	for _, l := range locs {
		loc := domain.Location{
			Name:        l.Name,
			Type:        domain.ParseLocationType(l.Type),
			Description: l.Description,
			VisualTags:  l.VisualTags,
		}
		loc.EnsureID()
		result = append(result, loc)
	}
	return result
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

func parseGenre(s string) string {
	switch g := normalize(s); g {
	case "romance", "action", "fantasy", "thriller", "slice_of_life",
		"horror", "comedy", "drama", "mystery", "scifi":
		return g
	}
	return "drama"
}

func parseTone(s string) string {
	switch t := normalize(s); t {
	case "comedic", "dramatic", "dark", "lighthearted", "romantic", "suspenseful":
		return t
	}
	return "dramatic"
}

// Wire shapes for the structured expansion response.
type expansionResponse struct {
	Title          string              `json:"title"`
	Logline        string              `json:"logline"`
	Genre          string              `json:"genre"`
	Tone           string              `json:"tone"`
	Themes         []string            `json:"themes"`
	TargetAudience string              `json:"target_audience"`
	EpisodeCount   int                 `json:"episode_count"`
	Synopsis       string              `json:"synopsis"`
	StoryBeats     []beatResponse      `json:"story_beats"`
	Characters     []characterResponse `json:"characters"`
	Locations      []locationResponse  `json:"locations"`
}

type beatResponse struct {
	Beat        string `json:"beat"`
	Description string `json:"description"`
}

type characterResponse struct {
	Name                string   `json:"name"`
	Role                string   `json:"role"`
	Age                 string   `json:"age"`
	PhysicalDescription string   `json:"physical_description"`
	Personality         string   `json:"personality"`
	Background          string   `json:"background"`
	Motivation          string   `json:"motivation"`
	VisualTags          []string `json:"visual_tags"`
}

type locationResponse struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	VisualTags  []string `json:"visual_tags"`
}

var storySchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "title": {"type": "STRING"},
    "logline": {"type": "STRING"},
    "genre": {"type": "STRING"},
    "tone": {"type": "STRING"},
    "themes": {"type": "ARRAY", "items": {"type": "STRING"}},
    "target_audience": {"type": "STRING"},
    "episode_count": {"type": "INTEGER"},
    "synopsis": {"type": "STRING"},
    "story_beats": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "beat": {"type": "STRING"},
          "description": {"type": "STRING"}
        },
        "required": ["beat", "description"]
      }
    },
    "characters": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "name": {"type": "STRING"},
          "role": {"type": "STRING"},
          "age": {"type": "STRING"},
          "physical_description": {"type": "STRING"},
          "personality": {"type": "STRING"},
          "background": {"type": "STRING"},
          "motivation": {"type": "STRING"},
          "visual_tags": {"type": "ARRAY", "items": {"type": "STRING"}}
        },
        "required": ["name"]
      }
    },
    "locations": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "name": {"type": "STRING"},
          "type": {"type": "STRING"},
          "description": {"type": "STRING"},
          "visual_tags": {"type": "ARRAY", "items": {"type": "STRING"}}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["title", "logline", "genre", "tone", "synopsis", "story_beats", "characters", "locations"]
}`)

const expansionSystemInstruction = `You are an expert webtoon and short-form drama writer. Expand a simple story prompt into a complete story structure optimized for addictive, visual storytelling.

STORY STRUCTURE: design beats that hook readers and keep them scrolling.
1. Hook (episode 1): grab attention in the first panel with mystery, danger, or emotion.
2. Inciting incident: the event that starts the main conflict; end the beat on a cliffhanger.
3. Rising action: build tension with discoveries, character moments, and a hook into each next episode.
4. Climax: the peak of conflict, foreshadowed across earlier episodes.
5. Resolution: a satisfying emotional payoff that connects back to the opening.

ADDICTIVE ELEMENTS: recurring visual motifs, mystery breadcrumbs that pay off later, emotional anchors, clear personal stakes, and time pressure.

CHARACTER DESIGN (4-5 max): 1-2 main characters with contrasting designs, 2-3 supporting characters with one defining visual trait each. Every character carries a secret or hidden depth revealed later.

LOCATION DESIGN (3-4 max): each location has two moods, sensory details, and specific lived-in objects.

VISUAL TAGS (critical for consistency): each character wears ONE consistent outfit through the entire story. Tags must pin down hair (exact color, length, style), eyes, face, the full outfit (top, bottom, footwear, signature accessories), build, and a color palette. Location tags pin down lighting style, key objects, atmosphere words, color palette, and sound or sensory elements.`
