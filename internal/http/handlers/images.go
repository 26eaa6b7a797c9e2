package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/domain"
	"dreamwright/internal/pipeline"
)

type generateImagesRequest struct {
	Style      string `json:"style"`
	Resolution string `json:"resolution"`
	Overwrite  bool   `json:"overwrite"`
}

func decodeImagesRequest(r *http.Request) generateImagesRequest {
	var req generateImagesRequest
	// An empty body means defaults; a malformed one too. The knobs are all
	// optional, so decoding is forgiving.
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req
}

// ChapterImagesGenerate renders every panel of a chapter as a background job.
// Dependencies are validated synchronously: a 409 with the full requirement
// list comes back before any job is created.
func (a *App) ChapterImagesGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	store, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	chapterNumber, ok := urlInt(r, "chapter_number")
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid chapter number")
		return
	}
	if project.ChapterByNumber(chapterNumber) == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "chapter", ID: strconv.Itoa(chapterNumber)})
		return
	}

	req := decodeImagesRequest(r)

	if missing := pipeline.NewValidator(project, store).Validate(pipeline.Scope{ChapterNumber: chapterNumber}); len(missing) > 0 {
		a.writeErr(w, &domain.DependencyError{
			Message: fmt.Sprintf("cannot generate images for chapter %d: dependencies not met", chapterNumber),
			Missing: missing,
		})
		return
	}

	job := a.Jobs.Create(domain.JobKindChapterImages, map[string]any{
		"project_id":     projectID,
		"chapter_number": chapterNumber,
		"style":          req.Style,
		"overwrite":      req.Overwrite,
	})

	jobID := job.ID
	if _, err := a.Jobs.Start(jobID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		orch := pipeline.NewOrchestrator(store, a.Images, a.Logger)
		return orch.RunChapter(ctx, project, chapterNumber, pipeline.RunOptions{
			Style:      req.Style,
			Resolution: req.Resolution,
			Overwrite:  req.Overwrite,
			Progress: func(done, total int) {
				a.Jobs.SetProgress(jobID, done, total)
			},
		})
	}); err != nil {
		a.writeErr(w, err)
		return
	}

	job, _ = a.Jobs.Get(jobID)
	a.jobAccepted(w, job)
}

// SceneImagesGenerate renders one scene's panels as a background job.
func (a *App) SceneImagesGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	store, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	chapterNumber, ok := urlInt(r, "chapter_number")
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid chapter number")
		return
	}
	sceneNumber, ok := urlInt(r, "scene_number")
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid scene number")
		return
	}
	if project.ChapterByNumber(chapterNumber) == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "chapter", ID: strconv.Itoa(chapterNumber)})
		return
	}

	req := decodeImagesRequest(r)

	if missing := pipeline.NewValidator(project, store).Validate(pipeline.Scope{ChapterNumber: chapterNumber, SceneNumber: sceneNumber}); len(missing) > 0 {
		a.writeErr(w, &domain.DependencyError{
			Message: fmt.Sprintf("cannot generate images for chapter %d: dependencies not met", chapterNumber),
			Missing: missing,
		})
		return
	}

	job := a.Jobs.Create(domain.JobKindSceneImages, map[string]any{
		"project_id":     projectID,
		"chapter_number": chapterNumber,
		"scene_number":   sceneNumber,
		"style":          req.Style,
		"overwrite":      req.Overwrite,
	})

	jobID := job.ID
	if _, err := a.Jobs.Start(jobID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		orch := pipeline.NewOrchestrator(store, a.Images, a.Logger)
		return orch.RunScene(ctx, project, chapterNumber, sceneNumber, pipeline.RunOptions{
			Style:      req.Style,
			Resolution: req.Resolution,
			Overwrite:  req.Overwrite,
			Progress: func(done, total int) {
				a.Jobs.SetProgress(jobID, done, total)
			},
		})
	}); err != nil {
		a.writeErr(w, err)
		return
	}

	job, _ = a.Jobs.Get(jobID)
	a.jobAccepted(w, job)
}

// PanelsList returns a chapter's panels with their recorded image paths.
func (a *App) PanelsList(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	chapterNumber, ok := urlInt(r, "chapter_number")
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid chapter number")
		return
	}
	chapter := project.ChapterByNumber(chapterNumber)
	if chapter == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "chapter", ID: strconv.Itoa(chapterNumber)})
		return
	}

	var sceneFilter int
	if raw := r.URL.Query().Get("scene_number"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			sceneFilter = n
		}
	}

	var panels []domain.Panel
	for i := range chapter.Scenes {
		if sceneFilter != 0 && chapter.Scenes[i].Number != sceneFilter {
			continue
		}
		panels = append(panels, chapter.Scenes[i].Panels...)
	}

	limit, offset := parsePagination(r)
	total := len(panels)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	a.paginated(w, panels[offset:end], total, limit, offset)
}
