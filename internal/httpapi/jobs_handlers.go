package httpapi

import (
	"net/http"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/store"
)

type JobsHandler struct {
	Jobs store.Lister
}

type jobsPage struct {
	Count int                `json:"count"`
	Jobs  []domain.JobRecord `json:"jobs"`
}

// List serves GET /jobs?source=&state=&sort=&order=&limit=.
func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(r, "limit", 0)
	if !ok {
		WriteError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}

	jobs, err := h.Jobs.List(r.Context(), store.ListOptions{
		Source: q.Get("source"),
		State:  q.Get("state"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Limit:  limit,
	})
	if err != nil {
		writeFailure(w, r, "list_failed", err)
		return
	}
	if jobs == nil {
		jobs = []domain.JobRecord{}
	}
	WriteJSON(w, http.StatusOK, jobsPage{Count: len(jobs), Jobs: jobs})
}
