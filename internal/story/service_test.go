package story

import (
	"context"
	"encoding/json"
	"errors"
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

type fakeText struct {
	reply   string
	err     error
	lastReq genai.TextRequest
	calls   int
}

func (f *fakeText) GenerateText(_ context.Context, req genai.TextRequest) (string, error) {
	f.lastReq = req
	f.calls++
	return f.reply, f.err
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Initialize())
	return store
}

const expansionPayload = `{
  "title": "Midnight Kitchen",
  "logline": "A chef discovers her recipes alter memories.",
  "genre": "Slice of Life",
  "tone": "menacing",
  "themes": ["memory", "sacrifice"],
  "target_audience": "young adults",
  "episode_count": 8,
  "synopsis": "Mina cooks. People forget.",
  "story_beats": [
    {"beat": "The discovery", "description": "A customer weeps over soup."},
    {"beat": "The cost", "description": "Each memory taken costs one of hers."}
  ],
  "characters": [
    {
      "name": "Mina Park",
      "role": "Protagonist",
      "age": "26",
      "physical_description": "short black bob",
      "personality": "driven, secretive",
      "background": "inherited the restaurant",
      "motivation": "keep the kitchen alive",
      "visual_tags": ["cream apron", "red scarf"]
    },
    {"name": "Old Joon", "role": "mentor-figure"}
  ],
  "locations": [
    {"name": "Night Kitchen", "type": "Interior", "description": "cramped", "visual_tags": ["steam"]},
    {"name": "Rooftop", "type": "open air"}
  ]
}`

func TestExpandRequiresPrompt(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	svc := NewService(&fakeText{}, gen, newTestStore(t), zerolog.Nop())

	_, err := svc.Expand(context.Background(), domain.NewProject("p"), "   ", Options{})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "prompt", verr.Field)
	assert.Zero(t, gen.calls)
}

func TestExpandPopulatesProject(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	store := newTestStore(t)
	svc := NewService(&fakeText{}, gen, store, zerolog.Nop())

	p := domain.NewProject("p")
	res, err := svc.Expand(context.Background(), p, "a chef whose food eats memories", Options{Genre: "drama", Episodes: 8})
	require.NoError(t, err)

	assert.Equal(t, "Midnight Kitchen", res.Title)
	assert.Equal(t, 2, res.CharacterCount)
	assert.Equal(t, 2, res.LocationCount)

	require.NotNil(t, p.Story)
	assert.Equal(t, "story_midnight_kitchen", p.Story.ID)
	assert.Equal(t, "slice_of_life", p.Story.Genre, "genre normalizes to the known set")
	assert.Equal(t, "dramatic", p.Story.Tone, "unknown tone falls back")
	assert.Len(t, p.Story.StoryBeats, 2)

	require.Len(t, p.Characters, 2)
	assert.Equal(t, "char_mina_park", p.Characters[0].ID)
	assert.Equal(t, domain.CharacterRoleProtagonist, p.Characters[0].Role)
	assert.Equal(t, domain.CharacterRoleSupporting, p.Characters[1].Role, "unknown role falls back")

	require.Len(t, p.Locations, 2)
	assert.Equal(t, "loc_night_kitchen", p.Locations[0].ID)
	assert.Equal(t, domain.LocationTypeInterior, p.Locations[0].Type)
	assert.Equal(t, domain.LocationTypeInterior, p.Locations[1].Type, "unknown type falls back")

	assert.Equal(t, "a chef whose food eats memories", p.OriginalPrompt)
	assert.Equal(t, domain.ProjectStatusInProgress, p.Status)

	// Persisted, not just mutated in memory.
	loaded, err := store.LoadProject()
	require.NoError(t, err)
	require.NotNil(t, loaded.Story)
	assert.Equal(t, "Midnight Kitchen", loaded.Story.Title)

	assert.Equal(t, "story", gen.lastReq.SchemaName)
	assert.Contains(t, gen.lastReq.Prompt, "SUGGESTED GENRE: drama")
	assert.Contains(t, gen.lastReq.Prompt, "TARGET EPISODES: 8")
}

func TestExpandRefinesPromptFirst(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	text := &fakeText{reply: "A driven young chef inherits a failing restaurant whose recipes consume diners' memories."}
	store := newTestStore(t)
	svc := NewService(text, gen, store, zerolog.Nop())

	p := domain.NewProject("p")
	_, err := svc.Expand(context.Background(), p, "memory food", Options{RefinePrompt: true})
	require.NoError(t, err)

	assert.Equal(t, 1, text.calls)
	assert.Contains(t, text.lastReq.Prompt, "memory food")
	assert.Contains(t, gen.lastReq.Prompt, "failing restaurant", "expansion consumes the refined brief")
	assert.Equal(t, text.reply, p.OriginalPrompt)
}

func TestExpandWithoutRefineSkipsTextPass(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	text := &fakeText{reply: "unused"}
	svc := NewService(text, gen, newTestStore(t), zerolog.Nop())

	_, err := svc.Expand(context.Background(), domain.NewProject("p"), "memory food", Options{})
	require.NoError(t, err)
	assert.Zero(t, text.calls)
}

func TestExpandRefineFailureAborts(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	text := &fakeText{err: errors.New("model overloaded")}
	svc := NewService(text, gen, newTestStore(t), zerolog.Nop())

	_, err := svc.Expand(context.Background(), domain.NewProject("p"), "memory food", Options{RefinePrompt: true})
	require.Error(t, err)
	assert.Zero(t, gen.calls)
}

func TestExpandReplacesExistingStory(t *testing.T) {
	gen := &fakeGen{payload: expansionPayload}
	store := newTestStore(t)
	svc := NewService(&fakeText{}, gen, store, zerolog.Nop())

	p := domain.NewProject("p")
	p.Story = &domain.Story{Title: "Old Title"}
	p.Characters = []domain.Character{{ID: "char_gone", Name: "Gone"}}

	_, err := svc.Expand(context.Background(), p, "a chef whose food eats memories", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Midnight Kitchen", p.Story.Title)
	for _, c := range p.Characters {
		assert.False(t, strings.EqualFold(c.Name, "Gone"), "re-expansion replaces the cast")
	}
}
