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

type characterRequest struct {
	Name        *string                      `json:"name"`
	Role        *string                      `json:"role"`
	Age         *string                      `json:"age"`
	Description *domain.CharacterDescription `json:"description"`
	VisualTags  *[]string                    `json:"visual_tags"`
}

// CharactersList returns the project's characters, paginated.
func (a *App) CharactersList(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}

	limit, offset := parsePagination(r)
	total := len(project.Characters)
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	a.paginated(w, project.Characters[offset:end], total, limit, offset)
}

// CharacterCreate adds a character record. Reference assets are generated
// separately through the assets endpoint.
func (a *App) CharacterCreate(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}

	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name == nil || *req.Name == "" {
		a.writeErr(w, &domain.ValidationError{Message: "character name is required", Field: "name"})
		return
	}

	char := domain.Character{Name: *req.Name, Role: domain.CharacterRoleSupporting}
	if req.Role != nil {
		char.Role = domain.ParseCharacterRole(*req.Role)
	}
	if req.Age != nil {
		char.Age = *req.Age
	}
	if req.Description != nil {
		char.Description = *req.Description
	}
	if req.VisualTags != nil {
		char.VisualTags = *req.VisualTags
	}
	char.EnsureID()

	if project.CharacterByID(char.ID) != nil {
		a.writeErr(w, &domain.ValidationError{Message: fmt.Sprintf("character %q already exists", char.Name), Field: "name"})
		return
	}

	project.Characters = append(project.Characters, char)
	if err := store.SaveProject(project); err != nil {
		a.writeErr(w, err)
		return
	}
	a.json(w, http.StatusCreated, char)
}

// CharacterGet returns one character.
func (a *App) CharacterGet(w http.ResponseWriter, r *http.Request) {
	_, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "character_id")
	char := project.CharacterByID(id)
	if char == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "character", ID: id})
		return
	}
	a.json(w, http.StatusOK, char)
}

// CharacterUpdate patches the fields present in the request body.
func (a *App) CharacterUpdate(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "character_id")
	char := project.CharacterByID(id)
	if char == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "character", ID: id})
		return
	}

	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Name != nil && *req.Name != "" {
		char.Name = *req.Name
	}
	if req.Role != nil {
		char.Role = domain.ParseCharacterRole(*req.Role)
	}
	if req.Age != nil {
		char.Age = *req.Age
	}
	if req.Description != nil {
		char.Description = *req.Description
	}
	if req.VisualTags != nil {
		char.VisualTags = *req.VisualTags
	}

	if err := store.SaveProject(project); err != nil {
		a.writeErr(w, err)
		return
	}
	a.json(w, http.StatusOK, char)
}

// CharacterDelete removes a character record. Generated assets stay on disk.
func (a *App) CharacterDelete(w http.ResponseWriter, r *http.Request) {
	store, project, err := a.openProject(chi.URLParam(r, "project_id"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "character_id")

	for i := range project.Characters {
		if project.Characters[i].ID == id {
			project.Characters = append(project.Characters[:i], project.Characters[i+1:]...)
			if err := store.SaveProject(project); err != nil {
				a.writeErr(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	a.writeErr(w, &domain.NotFoundError{Resource: "character", ID: id})
}

type generateAssetRequest struct {
	Style      string `json:"style"`
	Resolution string `json:"resolution"`
	Overwrite  bool   `json:"overwrite"`
}

func decodeAssetRequest(r *http.Request) generateAssetRequest {
	var req generateAssetRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	return req
}

// CharacterAssetGenerate renders a character's sheet and portrait as a
// background job. The idempotency guard runs synchronously: an existing
// portrait answers 409 before a job is created, unless overwrite is set.
func (a *App) CharacterAssetGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	store, project, err := a.openProject(projectID)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	characterID := chi.URLParam(r, "character_id")

	char := project.CharacterByID(characterID)
	if char == nil {
		a.writeErr(w, &domain.NotFoundError{Resource: "character", ID: characterID})
		return
	}

	req := decodeAssetRequest(r)
	if !req.Overwrite && char.Assets.Portrait != "" && store.AssetExists(char.Assets.Portrait) {
		a.writeErr(w, &domain.AssetExistsError{AssetType: "character", AssetID: char.Name, Path: char.Assets.Portrait})
		return
	}

	job := a.Jobs.Create(domain.JobKindCharacterAsset, map[string]any{
		"project_id":   projectID,
		"character_id": characterID,
		"style":        req.Style,
	})

	if _, err := a.Jobs.Start(job.ID, func(ctx context.Context) (any, error) {
		store, project, err := a.openProject(projectID)
		if err != nil {
			return nil, err
		}
		svc := assets.NewService(a.Images, store, a.Logger)
		return svc.GenerateCharacterAsset(ctx, project, characterID, assets.GenerateOptions{
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
