package httpapi

import (
	"net/http"

	"jobsync-engine/internal/events"
)

type HealthHandler struct {
	Hub *events.Hub
}

// Health reports liveness and how the event stream is doing.
func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if h.Hub != nil {
		body["subscribers"] = h.Hub.Subscribers()
		body["events_dropped"] = h.Hub.Dropped()
	}
	WriteJSON(w, http.StatusOK, body)
}
