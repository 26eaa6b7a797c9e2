package domain

import (
	"time"

	"dreamwright/pkg/slug"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
)

// StoryBeat is one key plot point; chapter N is generated from beat N.
type StoryBeat struct {
	Beat        string `json:"beat"`
	Description string `json:"description"`
}

// Story is the expanded narrative backbone of a project.
type Story struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Logline        string      `json:"logline,omitempty"`
	Genre          string      `json:"genre,omitempty"`
	Tone           string      `json:"tone,omitempty"`
	Themes         []string    `json:"themes,omitempty"`
	TargetAudience string      `json:"target_audience,omitempty"`
	EpisodeCount   int         `json:"episode_count,omitempty"`
	Synopsis       string      `json:"synopsis,omitempty"`
	StoryBeats     []StoryBeat `json:"story_beats,omitempty"`
}

// Project is the top-level container persisted as project.json.
type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Status    ProjectStatus `json:"status"`

	Story      *Story      `json:"story,omitempty"`
	Characters []Character `json:"characters"`
	Locations  []Location  `json:"locations"`
	Chapters   []Chapter   `json:"chapters"`

	OriginalPrompt string `json:"original_prompt,omitempty"`
}

// NewProject constructs an empty draft project with a slug-derived id.
func NewProject(name string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:         "proj_" + slug.Make(name),
		Name:       name,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     ProjectStatusDraft,
		Characters: []Character{},
		Locations:  []Location{},
		Chapters:   []Chapter{},
	}
}

// ChapterByNumber finds a chapter by its number, not its slice position.
func (p *Project) ChapterByNumber(n int) *Chapter {
	for i := range p.Chapters {
		if p.Chapters[i].Number == n {
			return &p.Chapters[i]
		}
	}
	return nil
}

// CharacterByID finds a character by id.
func (p *Project) CharacterByID(id string) *Character {
	for i := range p.Characters {
		if p.Characters[i].ID == id {
			return &p.Characters[i]
		}
	}
	return nil
}

// CharacterByName finds a character by exact name, case-insensitive.
// Substring matching is deliberately not supported: it is ambiguous for
// names that contain each other ("Mina" vs "Mina's Mother").
func (p *Project) CharacterByName(name string) *Character {
	for i := range p.Characters {
		if equalFold(p.Characters[i].Name, name) {
			return &p.Characters[i]
		}
	}
	return nil
}

// LocationByID finds a location by id.
func (p *Project) LocationByID(id string) *Location {
	for i := range p.Locations {
		if p.Locations[i].ID == id {
			return &p.Locations[i]
		}
	}
	return nil
}

// LocationByName finds a location by exact name, case-insensitive.
func (p *Project) LocationByName(name string) *Location {
	for i := range p.Locations {
		if equalFold(p.Locations[i].Name, name) {
			return &p.Locations[i]
		}
	}
	return nil
}
