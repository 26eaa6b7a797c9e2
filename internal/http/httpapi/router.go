// Package httpapi assembles the chi router for the API server.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dreamwright/internal/http/handlers"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", app.JobsList)
		r.Get("/{job_id}", app.JobGet)
		r.Delete("/{job_id}", app.JobCancel)
	})

	r.Route("/projects/{project_id}", func(r chi.Router) {
		r.Get("/story", app.StoryGet)
		r.Post("/story", app.StoryCreate)

		r.Get("/characters", app.CharactersList)
		r.Post("/characters", app.CharacterCreate)
		r.Get("/characters/{character_id}", app.CharacterGet)
		r.Patch("/characters/{character_id}", app.CharacterUpdate)
		r.Delete("/characters/{character_id}", app.CharacterDelete)
		r.Post("/characters/{character_id}/assets", app.CharacterAssetGenerate)

		r.Get("/locations", app.LocationsList)
		r.Post("/locations", app.LocationCreate)
		r.Get("/locations/{location_id}", app.LocationGet)
		r.Patch("/locations/{location_id}", app.LocationUpdate)
		r.Delete("/locations/{location_id}", app.LocationDelete)
		r.Post("/locations/{location_id}/assets", app.LocationAssetGenerate)

		r.Post("/chapters", app.ChapterGenerate)
		r.Get("/chapters/{chapter_number}", app.ChapterGet)
		r.Get("/chapters/{chapter_number}/panels", app.PanelsList)
		r.Post("/chapters/{chapter_number}/images", app.ChapterImagesGenerate)
		r.Post("/chapters/{chapter_number}/scenes/{scene_number}/images", app.SceneImagesGenerate)
	})

	return r
}
