package httpapi

import "net/http"

type DBHandler struct {
	DB Checkpointer
}

// Checkpoint flushes the SQLite WAL. Loopback only.
func (h DBHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r) {
		WriteError(w, r, http.StatusForbidden, "forbidden", "forbidden")
		return
	}
	if err := h.DB.Checkpoint(r.Context()); err != nil {
		writeFailure(w, r, "checkpoint_failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
