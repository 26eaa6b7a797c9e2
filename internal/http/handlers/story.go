package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/domain"
	"dreamwright/internal/story"
)

type createStoryRequest struct {
	Prompt       string `json:"prompt"`
	Genre        string `json:"genre"`
	Tone         string `json:"tone"`
	Episodes     int    `json:"episodes"`
	RefinePrompt bool   `json:"refine_prompt"`
	Overwrite    bool   `json:"overwrite"`
}

// StoryGet returns the expanded story.
func (a *App) StoryGet(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	if project.Story == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "story", ID: "current"})
		return
	}
	a.json(w, http.StatusOK, project.Story)
}

// StoryCreate expands the story from a prompt as a background job. An
// already-expanded story answers 409 unless overwrite is set; re-expansion
// replaces the story along with its extracted cast and locations.
func (a *App) StoryCreate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	_, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Prompt == "" {
		a.writeErr(w, &domain.ValidationError{Message: "story prompt is required", Field: "prompt"})
		return
	}
	if project.Story != nil && !req.Overwrite {
		a.error(w, http.StatusConflict, "story_exists", "story already exists; set overwrite to replace it")
		return
	}

	promptPreview := req.Prompt
	if len(promptPreview) > 100 {
		promptPreview = promptPreview[:100] + "..."
	}
	job := a.Jobs.Create(domain.JobKindStoryExpansion, map[string]any{
		"project_id": projectID,
		"prompt":     promptPreview,
	})

	opts := story.Options{
		Genre:        req.Genre,
		Tone:         req.Tone,
		Episodes:     req.Episodes,
		RefinePrompt: req.RefinePrompt,
		Refresh:      req.Overwrite,
	}
	if _, err := a.Jobs.Start(job.ID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		svc := story.NewService(a.Text, a.Structured, store, a.Logger)
		return svc.Expand(ctx, project, req.Prompt, opts)
	}); err != nil {
		a.writeErr(w, err)
		return
	}

	job, _ = a.Jobs.Get(job.ID)
	a.jobAccepted(w, job)
}
