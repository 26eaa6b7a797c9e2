package script

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/storage"
)

type fakeGen struct {
	payload string
	lastReq genai.StructuredRequest
	calls   int
}

func (f *fakeGen) GenerateStructured(_ context.Context, req genai.StructuredRequest, out any) error {
	f.lastReq = req
	f.calls++
	return json.Unmarshal([]byte(f.payload), out)
}

func newTestProject() *domain.Project {
	p := domain.NewProject("Test Story")
	p.Story = &domain.Story{
		Title:   "Midnight Kitchen",
		Logline: "A chef discovers her recipes alter memories.",
		StoryBeats: []domain.StoryBeat{
			{Beat: "The discovery", Description: "Mina notices a customer weeping over soup."},
			{Beat: "The cost", Description: "Every altered memory takes one of her own."},
		},
	}
	p.Characters = []domain.Character{
		{Name: "Mina", Role: domain.CharacterRoleProtagonist, Description: domain.CharacterDescription{Personality: "driven, secretive"}},
		{Name: "Old Joon", Role: domain.CharacterRoleSupporting},
	}
	p.Locations = []domain.Location{
		{Name: "Night Kitchen", Description: "A cramped restaurant kitchen"},
	}
	for i := range p.Characters {
		p.Characters[i].EnsureID()
	}
	for i := range p.Locations {
		p.Locations[i].EnsureID()
	}
	return p
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Initialize())
	return store
}

const chapterPayload = `{
  "number": 99,
  "title": "The Discovery",
  "summary": "Mina sees the soup work.",
  "scenes": [
    {
      "number": 1,
      "location_name": "night kitchen",
      "time_of_day": "evening",
      "mood": "tense",
      "character_names": ["MINA", "Nobody Known"],
      "continues_from_previous_chapter": false,
      "panels": [
        {
          "number": 1,
          "shot_type": "wide",
          "angle": "eye_level",
          "action": "Steam rises over the pass.",
          "characters": ["Mina"],
          "character_expressions": [{"character_name": "mina", "expression": "thoughtful"}],
          "dialogue": [{"character_name": "Mina", "text": "Order up.", "type": "speech"}],
          "continues_from_previous": false
        },
        {
          "number": 2,
          "shot_type": "hero_shot",
          "angle": "sideways",
          "action": "Mina freezes mid-plate.",
          "characters": ["Mina", "Ghost"],
          "continues_from_previous": true,
          "continuity_note": "same pass, same plating"
        }
      ]
    },
    {
      "number": 1,
      "location_name": "Night Kitchen",
      "time_of_day": "evening",
      "panels": [
        {"number": 1, "shot_type": "wide", "angle": "eye_level", "action": "short duplicate"}
      ]
    }
  ]
}`

func TestGenerateChapterRequiresStory(t *testing.T) {
	svc := NewService(&fakeGen{}, newTestStore(t), zerolog.Nop())
	p := domain.NewProject("empty")

	_, err := svc.GenerateChapter(context.Background(), p, 1, Options{})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "story", verr.Field)
}

func TestGenerateChapterBeatOutOfRange(t *testing.T) {
	svc := NewService(&fakeGen{}, newTestStore(t), zerolog.Nop())
	p := newTestProject()

	_, err := svc.GenerateChapter(context.Background(), p, 5, Options{})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "chapter_number", verr.Field)
}

func TestGenerateChapterEnforcesSequentialOrder(t *testing.T) {
	gen := &fakeGen{payload: chapterPayload}
	svc := NewService(gen, newTestStore(t), zerolog.Nop())
	p := newTestProject()

	_, err := svc.GenerateChapter(context.Background(), p, 2, Options{})

	var derr *domain.DependencyError
	require.ErrorAs(t, err, &derr)
	require.Len(t, derr.Missing, 1)
	assert.Equal(t, "previous_chapter", derr.Missing[0].Type)
	assert.Equal(t, 1, derr.Missing[0].ChapterNumber)
	assert.Zero(t, gen.calls, "no generation before dependency check passes")
}

func TestGenerateChapterConvertsAndSaves(t *testing.T) {
	gen := &fakeGen{payload: chapterPayload}
	store := newTestStore(t)
	svc := NewService(gen, store, zerolog.Nop())
	p := newTestProject()

	ch, err := svc.GenerateChapter(context.Background(), p, 1, Options{})
	require.NoError(t, err)

	// The requested number wins over whatever the model claimed.
	assert.Equal(t, 1, ch.Number)
	assert.Equal(t, "The Discovery", ch.Title)
	assert.Equal(t, domain.ChapterStatusOutlined, ch.Status)
	assert.Equal(t, "ch1", ch.ID)

	// Duplicate scene numbers collapse to the richer variant.
	require.Len(t, ch.Scenes, 1)
	scene := ch.Scenes[0]
	require.Len(t, scene.Panels, 2)

	// Names resolve case-insensitively; unknown names are dropped.
	assert.Equal(t, p.Locations[0].ID, scene.LocationID)
	assert.Equal(t, []string{p.Characters[0].ID}, scene.CharacterIDs)
	require.Len(t, scene.Panels[1].Characters, 1)
	assert.Equal(t, p.Characters[0].ID, scene.Panels[1].Characters[0].CharacterID)

	// Expression lookup and defaults.
	assert.Equal(t, "thoughtful", scene.Panels[0].Characters[0].Expression)
	assert.Equal(t, "neutral", scene.Panels[1].Characters[0].Expression)

	// Unknown enum values fall back.
	assert.Equal(t, domain.ShotMedium, scene.Panels[1].Composition.ShotType)
	assert.Equal(t, domain.AngleEyeLevel, scene.Panels[1].Composition.Angle)
	assert.Equal(t, domain.TimeOfDayEvening, scene.TimeOfDay)

	assert.True(t, scene.Panels[1].ContinuesFromPrevious)
	assert.Equal(t, "same pass, same plating", scene.Panels[1].ContinuityNote)

	// The project was persisted with the new chapter.
	loaded, err := store.LoadProject()
	require.NoError(t, err)
	require.NotNil(t, loaded.ChapterByNumber(1))
	assert.Equal(t, domain.ProjectStatusInProgress, loaded.Status)
}

func TestGenerateChapterRegenerateReplacesInPlace(t *testing.T) {
	gen := &fakeGen{payload: chapterPayload}
	store := newTestStore(t)
	svc := NewService(gen, store, zerolog.Nop())
	p := newTestProject()

	_, err := svc.GenerateChapter(context.Background(), p, 1, Options{})
	require.NoError(t, err)
	_, err = svc.GenerateChapter(context.Background(), p, 1, Options{})
	require.NoError(t, err)

	require.Len(t, p.Chapters, 1)
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateChapterPromptCarriesPreviousChapters(t *testing.T) {
	gen := &fakeGen{payload: chapterPayload}
	store := newTestStore(t)
	svc := NewService(gen, store, zerolog.Nop())
	p := newTestProject()

	_, err := svc.GenerateChapter(context.Background(), p, 1, Options{})
	require.NoError(t, err)
	assert.NotContains(t, gen.lastReq.Prompt, "STORY SO FAR")

	_, err = svc.GenerateChapter(context.Background(), p, 2, Options{})
	require.NoError(t, err)
	assert.Contains(t, gen.lastReq.Prompt, "STORY SO FAR")
	assert.Contains(t, gen.lastReq.Prompt, "Chapter 1: The Discovery")
	assert.True(t, strings.Contains(gen.lastReq.Prompt, "CHAPTER 2: The cost"))
	assert.Equal(t, "chapter", gen.lastReq.SchemaName)
}
