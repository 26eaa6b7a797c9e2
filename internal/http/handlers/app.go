// Package handlers holds the HTTP handler set for the API server.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/domain"
	"dreamwright/internal/genai"
	"dreamwright/internal/infra"
	"dreamwright/internal/jobs"
	"dreamwright/internal/storage"
)

// App carries the shared dependencies every handler needs. Project stores
// and the services over them are built per request: projects are cheap
// file-backed directories and the API serves many of them.
type App struct {
	Logger      infra.Logger
	ProjectsDir string
	Jobs        *jobs.Manager
	Text        genai.TextGenerator
	Structured  genai.StructuredGenerator
	Images      genai.ImageGenerator
}

// NewApp wires the handler set.
func NewApp(projectsDir string, manager *jobs.Manager, text genai.TextGenerator, structured genai.StructuredGenerator, images genai.ImageGenerator, logger infra.Logger) *App {
	return &App{
		Logger:      logger,
		ProjectsDir: projectsDir,
		Jobs:        manager,
		Text:        text,
		Structured:  structured,
		Images:      images,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]any{"code": errCode, "message": msg},
	})
}

// writeErr maps the domain error taxonomy onto HTTP statuses and payload
// shapes. Dependency failures carry the full requirement list so a client
// can resolve everything in one pass.
func (a *App) writeErr(w http.ResponseWriter, err error) {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
		dependency *domain.DependencyError
		exists     *domain.AssetExistsError
	)
	switch {
	case errors.As(err, &notFound):
		a.error(w, http.StatusNotFound, domain.CodeNotFound, notFound.Error())
	case errors.As(err, &validation):
		a.json(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":    domain.CodeValidation,
				"message": validation.Message,
				"field":   validation.Field,
			},
		})
	case errors.As(err, &dependency):
		a.json(w, http.StatusConflict, map[string]any{
			"error": map[string]any{
				"code":    domain.CodeDependency,
				"message": dependency.Message,
			},
			"missing_dependencies": dependency.Missing,
		})
	case errors.As(err, &exists):
		a.json(w, http.StatusConflict, map[string]any{
			"error": map[string]any{
				"code":    domain.CodeAssetExists,
				"message": exists.Error(),
			},
			"asset_type":    exists.AssetType,
			"asset_id":      exists.AssetID,
			"existing_path": exists.Path,
		})
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// openProject resolves a project id to its store and loaded project.json.
func (a *App) openProject(projectID string) (*storage.Store, *domain.Project, error) {
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || strings.Contains(projectID, "..") {
		return nil, nil, &domain.NotFoundError{Resource: "project", ID: projectID}
	}
	store, err := storage.NewStore(filepath.Join(a.ProjectsDir, projectID))
	if err != nil {
		return nil, nil, err
	}
	if !store.ProjectExists() {
		return nil, nil, &domain.NotFoundError{Resource: "project", ID: projectID}
	}
	project, err := store.LoadProject()
	if err != nil {
		return nil, nil, err
	}
	return store, project, nil
}

// jobAccepted writes the 202 envelope for a freshly created job. Creation
// responses carry job_id; the full record with id stays on GET /jobs/{id}.
func (a *App) jobAccepted(w http.ResponseWriter, job domain.Job) {
	a.json(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"type":       job.Kind,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"metadata":   job.Metadata,
	})
}

// pagination is the shared list envelope metadata.
type pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (a *App) paginated(w http.ResponseWriter, data any, total, limit, offset int) {
	a.json(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+limit < total,
		},
	})
}

func urlInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	return n, err == nil && n >= 1
}
