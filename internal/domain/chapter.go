package domain

import "fmt"

// TimeOfDay sets scene lighting.
type TimeOfDay string

const (
	TimeOfDayMorning TimeOfDay = "morning"
	TimeOfDayDay     TimeOfDay = "day"
	TimeOfDayEvening TimeOfDay = "evening"
	TimeOfDayNight   TimeOfDay = "night"
)

// ShotType enumerates camera framings for a panel.
type ShotType string

const (
	ShotWide           ShotType = "wide"
	ShotMedium         ShotType = "medium"
	ShotCloseUp        ShotType = "close_up"
	ShotExtremeCloseUp ShotType = "extreme_close_up"
)

// CameraAngle enumerates camera angles for a panel.
type CameraAngle string

const (
	AngleEyeLevel CameraAngle = "eye_level"
	AngleHigh     CameraAngle = "high"
	AngleLow      CameraAngle = "low"
	AngleDutch    CameraAngle = "dutch"
)

// PanelType distinguishes ordinary panels from full-page splashes.
type PanelType string

const (
	PanelTypePanel  PanelType = "panel"
	PanelTypeSplash PanelType = "splash"
)

// DialogueType enumerates dialogue renderings.
type DialogueType string

const (
	DialogueSpeech    DialogueType = "speech"
	DialogueThought   DialogueType = "thought"
	DialogueNarration DialogueType = "narration"
)

// Dialogue is one line of dialogue within a panel.
type Dialogue struct {
	CharacterID string       `json:"character_id,omitempty"`
	Text        string       `json:"text"`
	Type        DialogueType `json:"type"`
}

// PanelCharacter places a character in a panel.
type PanelCharacter struct {
	CharacterID string `json:"character_id"`
	Expression  string `json:"expression,omitempty"`
	Pose        string `json:"pose,omitempty"`
	Position    string `json:"position,omitempty"`
}

// PanelComposition describes the visual framing of a panel.
type PanelComposition struct {
	ShotType ShotType    `json:"shot_type"`
	Angle    CameraAngle `json:"angle"`
	Focus    string      `json:"focus,omitempty"`
}

// Panel is a single rendered frame. ContinuesFromPrevious marks the panel
// as the same narrative beat as its predecessor, which makes the renderer
// supply the previous panel image as a consistency reference.
type Panel struct {
	ID          string           `json:"id"`
	Number      int              `json:"number"`
	Type        PanelType        `json:"type"`
	Composition PanelComposition `json:"composition"`
	Characters  []PanelCharacter `json:"characters,omitempty"`
	Action      string           `json:"action,omitempty"`
	Dialogue    []Dialogue       `json:"dialogue,omitempty"`
	SFX         []string         `json:"sfx,omitempty"`

	ContinuesFromPrevious bool   `json:"continues_from_previous"`
	ContinuityNote        string `json:"continuity_note,omitempty"`

	ImagePath string `json:"image_path,omitempty"`
}

// CharacterIDs returns the ids of the characters placed in the panel.
func (p *Panel) CharacterIDs() []string {
	ids := make([]string, 0, len(p.Characters))
	for _, pc := range p.Characters {
		ids = append(ids, pc.CharacterID)
	}
	return ids
}

// Scene groups sequential panels in one location. When
// ContinuesFromPreviousChapter is set and the scene is the chapter's first,
// its first panel references the last panel of the previous chapter.
type Scene struct {
	ID           string    `json:"id"`
	Number       int       `json:"number"`
	LocationID   string    `json:"location_id,omitempty"`
	TimeOfDay    TimeOfDay `json:"time_of_day"`
	Weather      string    `json:"weather,omitempty"`
	CharacterIDs []string  `json:"character_ids,omitempty"`
	Description  string    `json:"description,omitempty"`
	Mood         string    `json:"mood,omitempty"`
	Panels       []Panel   `json:"panels"`

	ContinuesFromPreviousChapter bool `json:"continues_from_previous_chapter"`
}

// PanelByNumber finds a panel by number.
func (s *Scene) PanelByNumber(n int) *Panel {
	for i := range s.Panels {
		if s.Panels[i].Number == n {
			return &s.Panels[i]
		}
	}
	return nil
}

// ChapterStatus enumerates chapter script states.
type ChapterStatus string

const (
	ChapterStatusOutlined  ChapterStatus = "outlined"
	ChapterStatusCompleted ChapterStatus = "completed"
)

// Chapter is one episode of scripted scenes.
type Chapter struct {
	ID      string        `json:"id"`
	Number  int           `json:"number"`
	Title   string        `json:"title,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Status  ChapterStatus `json:"status"`
	Scenes  []Scene       `json:"scenes"`
}

// SceneByNumber finds a scene by number.
func (c *Chapter) SceneByNumber(n int) *Scene {
	for i := range c.Scenes {
		if c.Scenes[i].Number == n {
			return &c.Scenes[i]
		}
	}
	return nil
}

// LastPanel returns the final panel of the final scene, or nil when the
// chapter has no panels.
func (c *Chapter) LastPanel() *Panel {
	for i := len(c.Scenes) - 1; i >= 0; i-- {
		if n := len(c.Scenes[i].Panels); n > 0 {
			return &c.Scenes[i].Panels[n-1]
		}
	}
	return nil
}

// EnsureIDs fills derived ids for the chapter and everything under it.
func (c *Chapter) EnsureIDs() {
	if c.ID == "" {
		c.ID = fmt.Sprintf("ch%d", c.Number)
	}
	for i := range c.Scenes {
		sc := &c.Scenes[i]
		if sc.ID == "" {
			sc.ID = fmt.Sprintf("s%d", sc.Number)
		}
		for j := range sc.Panels {
			if sc.Panels[j].ID == "" {
				sc.Panels[j].ID = fmt.Sprintf("p%d", sc.Panels[j].Number)
			}
		}
	}
}
