package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/assets"
	"dreamwright/internal/domain"
)

type locationRequest struct {
	Name        *string   `json:"name"`
	Type        *string   `json:"type"`
	Description *string   `json:"description"`
	VisualTags  *[]string `json:"visual_tags"`
}

// LocationsList returns the project's locations, paginated.
func (a *App) LocationsList(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}

	limit, offset := parsePagination(r)
	total := len(project.Locations)
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	a.paginated(w, project.Locations[offset:end], total, limit, offset)
}

// LocationCreate adds a location record.
func (a *App) LocationCreate(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == nil || *req.Name == "" {
		a.writeErr(w, &domain.ValidationError{Message: "location name is required", Field: "name"})
		return
	}

	loc := domain.Location{Name: *req.Name, Type: domain.LocationTypeInterior}
	if req.Type != nil {
		loc.Type = domain.ParseLocationType(*req.Type)
	}
	if req.Description != nil {
		loc.Description = *req.Description
	}
	if req.VisualTags != nil {
		loc.VisualTags = *req.VisualTags
	}
	loc.EnsureID()

	if project.LocationByID(loc.ID) != nil {
		a.writeErr(w, &domain.ValidationError{Message: fmt.Sprintf("location %q already exists", loc.Name), Field: "name"})
		return
	}

	project.Locations = append(project.Locations, loc)
	if err := store.SaveProject(project); err != nil {
		a.writeErr(w, err)
		return
	}
	a.json(w, http.StatusCreated, loc)
}

// LocationGet returns one location.
func (a *App) LocationGet(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "location_id")
	loc := project.LocationByID(id)
	if loc == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "location", ID: id})
		return
	}
	a.json(w, http.StatusOK, loc)
}

// LocationUpdate patches the fields present in the request body.
func (a *App) LocationUpdate(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "location_id")
	loc := project.LocationByID(id)
	if loc == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "location", ID: id})
		return
	}

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name != nil && *req.Name != "" {
		loc.Name = *req.Name
	}
	if req.Type != nil {
		loc.Type = domain.ParseLocationType(*req.Type)
	}
	if req.Description != nil {
		loc.Description = *req.Description
	}
	if req.VisualTags != nil {
		loc.VisualTags = *req.VisualTags
	}

	if err := store.SaveProject(project); err != nil {
		a.writeErr(w, err)
		return
	}
	a.json(w, http.StatusOK, loc)
}

// LocationDelete removes a location record. Generated assets stay on disk.
func (a *App) LocationDelete(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "location_id")

	for i := range project.Locations {
		if project.Locations[i].ID == id {
			project.Locations = append(project.Locations[:i], project.Locations[i+1:]...)
			if err := store.SaveProject(project); err != nil {
				a.writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	a.writeErr(w, &domain.NotFoundError{Resource: "location", ID: id})
}

// LocationAssetGenerate renders a location's background reference as a
// background job, with the same synchronous idempotency guard as characters.
func (a *App) LocationAssetGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	store, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	locationID := chi.URLParam(r, "location_id")

	loc := project.LocationByID(locationID)
	if loc == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "location", ID: locationID})
		return
	}

	req := decodeAssetRequest(r)
	if !req.Overwrite && loc.Assets.Reference != "" && store.AssetExists(loc.Assets.Reference) {
		a.writeErr(w, &domain.AssetExistsError{AssetType: "location", AssetID: loc.Name, Path: loc.Assets.Reference})
		return
	}

	job := a.Jobs.Create(domain.JobKindLocationAsset, map[string]any{
		"project_id":  projectID,
		"location_id": locationID,
		"style":       req.Style,
	})

	if _, err := a.Jobs.Start(job.ID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		svc := assets.NewService(a.Images, store, a.Logger)
		return svc.GenerateLocationAsset(ctx, project, locationID, assets.GenerateOptions{
			Style:      req.Style,
			Resolution: req.Resolution,
			Overwrite:  req.Overwrite,
		})
	}); err != nil {
		a.writeErr(w, err)
		return
	}

	job, _ = a.Jobs.Get(job.ID)
	a.jobAccepted(w, job)
}
