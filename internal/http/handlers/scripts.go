package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/domain"
	"dreamwright/internal/script"
)

type generateChapterRequest struct {
	BeatNumber     int    `json:"beat_number"`
	PanelsPerScene int    `json:"panels_per_scene"`
	Feedback       string `json:"feedback"`
	Overwrite      bool   `json:"overwrite"`
}

// ChapterGenerate scripts a chapter from its story beat as a background job.
// Prerequisites are checked synchronously so a bad request fails with 400/409
// before any job exists.
func (a *App) ChapterGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	store, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req generateChapterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	svc := script.NewService(a.Structured, store, a.Logger)
	if err := svc.CheckPrerequisites(project, req.BeatNumber); err != nil {
		a.writeErr(w, err)
		return
	}

	job := a.Jobs.Create(domain.JobKindChapterScript, map[string]any{
		"project_id":     projectID,
		"chapter_number": req.BeatNumber,
	})

	beatNumber := req.BeatNumber
	opts := script.Options{
		PanelsPerScene: req.PanelsPerScene,
		Feedback:       req.Feedback,
		Refresh:        req.Overwrite,
	}
	if _, err := a.Jobs.Start(job.ID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		chapter, err := script.NewService(a.Structured, store, a.Logger).GenerateChapter(ctx, project, beatNumber, opts)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"chapter_number": chapter.Number,
			"title":          chapter.Title,
			"scene_count":    len(chapter.Scenes),
		}, nil
	}); err != nil {
		a.writeErr(w, err)
		return
	}

	job, _ = a.Jobs.Get(job.ID)
	a.jobAccepted(w, job)
}

// ChapterGet returns a chapter script. With ?format=text the script is
// rendered as plain text for review instead of JSON.
func (a *App) ChapterGet(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	_, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}

	chapterNumber, ok := urlInt(r, "chapter_number")
	if !ok {
		a.writeErr(w, &domain.NotFoundError{Resource: "chapter", ID: chi.URLParam(r, "chapter_number")})
		return
	}
	chapter := project.ChapterByNumber(chapterNumber)
	if chapter == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "chapter", ID: chi.URLParam(r, "chapter_number")})
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(script.FormatChapter(chapter)))
		return
	}
	a.json(w, http.StatusOK, chapter)
}
