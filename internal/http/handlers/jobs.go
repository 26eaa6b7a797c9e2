package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dreamwright/internal/domain"
	"dreamwright/internal/jobs"
)

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	list, total := a.Jobs.List(jobs.Filter{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Kind:   domain.JobKind(r.URL.Query().Get("type")),
		Limit:  limit,
		Offset: offset,
	})

	a.paginated(w, list, total, limit, offset)
}

func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, ok := a.Jobs.Get(id)
	if !ok {
		a.writeErr(w, &domain.NotFoundError{Resource: "job", ID: id})
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, ok := a.Jobs.Get(id)
	if !ok {
		a.writeErr(w, &domain.NotFoundError{Resource: "job", ID: id})
		return
	}
	if job.Status.Terminal() {
		a.error(w, http.StatusConflict, "job_not_cancellable",
			fmt.Sprintf("job cannot be cancelled (status: %s)", job.Status))
		return
	}

	a.Jobs.Cancel(id)

	job, _ = a.Jobs.Get(id)
	a.json(w, http.StatusOK, job)
}
