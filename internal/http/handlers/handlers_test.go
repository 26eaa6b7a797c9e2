package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/http/handlers"
	"dreamwright/internal/http/httpapi"
	"dreamwright/internal/jobs"
	"dreamwright/internal/pipeline"
	"dreamwright/internal/storage"
)

type stubStructured struct{ payloads map[string]string }

func (s *stubStructured) GenerateStructured(_ context.Context, req genai.StructuredRequest, out any) error {
	return json.Unmarshal([]byte(s.payloads[req.SchemaName]), out)
}

type stubText struct{}

func (stubText) GenerateText(_ context.Context, req genai.TextRequest) (string, error) {
	return "refined: " + req.Prompt, nil
}

type stubImages struct{}

func (stubImages) GenerateImage(_ context.Context, _ genai.ImageRequest) (genai.ImageResult, error) {
	return genai.ImageResult{Data: []byte("img"), Metadata: map[string]any{"model": "stub"}}, nil
}

type fixture struct {
	app    *handlers.App
	router http.Handler
	store  *storage.Store
}

// newFixture provisions a single ready-to-render project named "demo".
func newFixture(t *testing.T) *fixture {
	t.Helper()

	projectsDir := t.TempDir()
	store, err := storage.NewStore(filepath.Join(projectsDir, "demo"))
	require.NoError(t, err)
	require.NoError(t, store.Initialize())

	p := domain.NewProject("Demo")
	p.Story = &domain.Story{
		Title: "Demo",
		StoryBeats: []domain.StoryBeat{
			{Beat: "Opening", Description: "It begins."},
			{Beat: "Middle", Description: "It continues."},
		},
	}
	p.Characters = []domain.Character{{ID: "char_alice", Name: "Alice"}}
	p.Locations = []domain.Location{{ID: "loc_cafe", Name: "Cafe"}}

	ctx := context.Background()
	p.Characters[0].Assets.Portrait = mustSave(t, store, ctx, "characters/alice/portrait.png")
	p.Locations[0].Assets.Reference = mustSave(t, store, ctx, "locations/cafe/reference.png")

	p.Chapters = []domain.Chapter{{
		Number: 1,
		Title:  "One",
		Scenes: []domain.Scene{{
			Number:     1,
			LocationID: "loc_cafe",
			Panels: []domain.Panel{
				{Number: 1, Action: "Alice waits.", Characters: []domain.PanelCharacter{{CharacterID: "char_alice", Expression: "neutral", Position: "center"}}},
				{Number: 2, Action: "Alice stands."},
			},
		}},
	}}
	p.Chapters[0].EnsureIDs()
	require.NoError(t, store.SaveProject(p))

	logger := zerolog.Nop()
	app := handlers.NewApp(
		projectsDir,
		jobs.NewManager(logger),
		stubText{},
		&stubStructured{payloads: map[string]string{
			"chapter": `{"number":2,"title":"Two","summary":"s","scenes":[{"number":1,"location_name":"Cafe","time_of_day":"day","panels":[{"number":1,"shot_type":"wide","angle":"eye_level","action":"a"}]}]}`,
			"story":   `{"title":"Fresh","logline":"l","genre":"drama","tone":"dark","synopsis":"s","story_beats":[{"beat":"Hook","description":"d"}],"characters":[{"name":"Nova","role":"protagonist"}],"locations":[{"name":"Dock","type":"exterior"}]}`,
		}},
		stubImages{},
		logger,
	)

	return &fixture{app: app, router: httpapi.NewRouter(app), store: store}
}

func mustSave(t *testing.T, store *storage.Store, ctx context.Context, key string) string {
	t.Helper()
	saved, err := store.SaveAsset(ctx, key, []byte("img"), nil)
	require.NoError(t, err)
	return saved
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (f *fixture) waitForJob(t *testing.T, id string) domain.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job, ok := f.app.Jobs.Get(id)
		return ok && job.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
	job, _ := f.app.Jobs.Get(id)
	return job
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestUnknownProjectIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/projects/nope/chapters/1/images", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestChapterImagesAccepted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters/1/images", map[string]any{"style": "webtoon"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	jobID := body["job_id"].(string)
	assert.Equal(t, "chapter_image_generation", body["type"])
	assert.NotContains(t, body, "id", "creation envelope carries job_id, not the record shape")

	job := f.waitForJob(t, jobID)
	require.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.Progress)
	assert.Equal(t, 2, job.Total)

	// Artifacts landed and the project records them.
	loaded, err := f.store.LoadProject()
	require.NoError(t, err)
	for _, panel := range loaded.Chapters[0].Scenes[0].Panels {
		assert.NotEmpty(t, panel.ImagePath)
	}
}

func TestChapterImagesMissingChapterIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/projects/demo/chapters/9/images", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChapterImagesDependencyErrorBeforeJob(t *testing.T) {
	f := newFixture(t)

	// Break a dependency: drop Alice's portrait record.
	p, err := f.store.LoadProject()
	require.NoError(t, err)
	p.Characters[0].Assets.Portrait = ""
	require.NoError(t, f.store.SaveProject(p))

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters/1/images", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEPENDENCY_ERROR", errObj["code"])
	missing := body["missing_dependencies"].([]any)
	require.Len(t, missing, 1)
	assert.Equal(t, "character_asset", missing[0].(map[string]any)["type"])

	_, total := f.app.Jobs.List(jobs.Filter{})
	assert.Zero(t, total, "no job is created when validation fails")
}

func TestSceneImagesAccepted(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters/1/scenes/1/images", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	job := f.waitForJob(t, decodeBody(t, rec)["job_id"].(string))
	require.Equal(t, domain.JobStatusCompleted, job.Status)

	result, ok := job.Result.(*pipeline.RunResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.GeneratedCount)
}

func TestChapterScriptGeneration(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters", map[string]any{"beat_number": 2})
	require.Equal(t, http.StatusAccepted, rec.Code)

	job := f.waitForJob(t, decodeBody(t, rec)["job_id"].(string))
	require.Equal(t, domain.JobStatusCompleted, job.Status, "job error: %s", job.Error)

	loaded, err := f.store.LoadProject()
	require.NoError(t, err)
	require.NotNil(t, loaded.ChapterByNumber(2))
	assert.Equal(t, "Two", loaded.ChapterByNumber(2).Title)
}

func TestChapterScriptOutOfOrderIs409(t *testing.T) {
	f := newFixture(t)

	// Remove chapter 1 so beat 2 has no predecessor.
	p, err := f.store.LoadProject()
	require.NoError(t, err)
	p.Chapters = nil
	require.NoError(t, f.store.SaveProject(p))

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters", map[string]any{"beat_number": 2})
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	missing := body["missing_dependencies"].([]any)
	require.Len(t, missing, 1)
	assert.Equal(t, "previous_chapter", missing[0].(map[string]any)["type"])
}

func TestChapterScriptBadBeatIs400(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters", map[string]any{"beat_number": 99})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errObj := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Equal(t, "chapter_number", errObj["field"])
}

func TestCharacterAssetGuard(t *testing.T) {
	f := newFixture(t)

	// Portrait exists on disk, so the guard answers 409 synchronously.
	rec := f.do(t, http.MethodPost, "/projects/demo/characters/char_alice/assets", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "ASSET_EXISTS", body["error"].(map[string]any)["code"])
	assert.Equal(t, "character", body["asset_type"])

	// Overwrite bypasses the guard.
	rec = f.do(t, http.MethodPost, "/projects/demo/characters/char_alice/assets", map[string]any{"overwrite": true})
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := f.waitForJob(t, decodeBody(t, rec)["job_id"].(string))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
}

func TestLocationAssetUnknownIs404(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/projects/demo/locations/loc_nowhere/assets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/chapters/1/images", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decodeBody(t, rec)["job_id"].(string)
	f.waitForJob(t, jobID)

	rec = f.do(t, http.MethodGet, "/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/jobs/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listBody := decodeBody(t, rec)
	assert.EqualValues(t, 1, listBody["pagination"].(map[string]any)["total"])

	// Cancelling a finished job conflicts.
	rec = f.do(t, http.MethodDelete, "/jobs/"+jobID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/jobs/missing-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoryLifecycle(t *testing.T) {
	f := newFixture(t)

	// The fixture project already has a story, so creation conflicts.
	rec := f.do(t, http.MethodPost, "/projects/demo/story", map[string]any{"prompt": "a new idea"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "story_exists", decodeBody(t, rec)["error"].(map[string]any)["code"])

	rec = f.do(t, http.MethodPost, "/projects/demo/story", map[string]any{"prompt": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "prompt", decodeBody(t, rec)["error"].(map[string]any)["field"])

	// Overwrite re-expands and replaces the cast.
	rec = f.do(t, http.MethodPost, "/projects/demo/story", map[string]any{"prompt": "a new idea", "overwrite": true})
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := f.waitForJob(t, decodeBody(t, rec)["job_id"].(string))
	require.Equal(t, domain.JobStatusCompleted, job.Status, "job error: %s", job.Error)

	rec = f.do(t, http.MethodGet, "/projects/demo/story", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Fresh", decodeBody(t, rec)["title"])

	loaded, err := f.store.LoadProject()
	require.NoError(t, err)
	require.Len(t, loaded.Characters, 1)
	assert.Equal(t, "char_nova", loaded.Characters[0].ID)
	require.Len(t, loaded.Locations, 1)
	assert.Equal(t, domain.LocationTypeExterior, loaded.Locations[0].Type)
}

func TestStoryGetBeforeExpansion(t *testing.T) {
	f := newFixture(t)

	p, err := f.store.LoadProject()
	require.NoError(t, err)
	p.Story = nil
	require.NoError(t, f.store.SaveProject(p))

	rec := f.do(t, http.MethodGet, "/projects/demo/story", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCharacterCRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/characters", map[string]any{
		"name":        "Bob Lee",
		"role":        "antagonist",
		"visual_tags": []string{"gray coat"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	assert.Equal(t, "char_bob_lee", created["id"])
	assert.Equal(t, "antagonist", created["role"])

	// Duplicate name is rejected.
	rec = f.do(t, http.MethodPost, "/projects/demo/characters", map[string]any{"name": "Bob Lee"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/projects/demo/characters", map[string]any{"role": "minor"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decodeBody(t, rec)["error"].(map[string]any)["field"])

	rec = f.do(t, http.MethodGet, "/projects/demo/characters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["pagination"].(map[string]any)["total"])

	rec = f.do(t, http.MethodGet, "/projects/demo/characters/char_bob_lee", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPatch, "/projects/demo/characters/char_bob_lee", map[string]any{"age": "44", "role": "nonsense"})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decodeBody(t, rec)
	assert.Equal(t, "44", patched["age"])
	assert.Equal(t, "supporting", patched["role"], "unknown role falls back")

	rec = f.do(t, http.MethodDelete, "/projects/demo/characters/char_bob_lee", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/projects/demo/characters/char_bob_lee", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	loaded, err := f.store.LoadProject()
	require.NoError(t, err)
	assert.Len(t, loaded.Characters, 1)
}

func TestLocationCRUD(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/projects/demo/locations", map[string]any{"name": "Old Pier", "type": "exterior"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "loc_old_pier", decodeBody(t, rec)["id"])

	rec = f.do(t, http.MethodPatch, "/projects/demo/locations/loc_old_pier", map[string]any{"description": "fog-bound"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fog-bound", decodeBody(t, rec)["description"])

	rec = f.do(t, http.MethodGet, "/projects/demo/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["pagination"].(map[string]any)["total"])

	rec = f.do(t, http.MethodDelete, "/projects/demo/locations/loc_old_pier", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/projects/demo/locations/loc_old_pier", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChapterGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/projects/demo/chapters/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "One", decodeBody(t, rec)["title"])

	rec = f.do(t, http.MethodGet, "/projects/demo/chapters/1?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Chapter 1: One")
	assert.Contains(t, rec.Body.String(), "Panel 1:")

	rec = f.do(t, http.MethodGet, "/projects/demo/chapters/5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanelsListPagination(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/projects/demo/chapters/1/panels?limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	assert.EqualValues(t, 2, data[0].(map[string]any)["number"])

	pg := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pg["total"])
	assert.Equal(t, false, pg["has_more"])
}
