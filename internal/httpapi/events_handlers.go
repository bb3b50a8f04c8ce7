package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"jobsync-engine/internal/events"
)

// sseKeepAlive keeps idle proxies from closing a stream between syncs, which
// can be hours apart.
const sseKeepAlive = 25 * time.Second

type EventsHandler struct {
	Hub *events.Hub
}

// ServeSSE streams hub events. The first frame is a ping carrying the request
// id; comment frames fill the gaps while no sync is running.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "response does not support streaming")
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	var seq int
	send := func(data string) {
		seq++
		fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", seq, data)
		flusher.Flush()
	}

	send(events.MakeEvent(events.TypePing, "", map[string]string{"request_id": RequestIDFrom(r.Context())}))

	tick := time.NewTicker(sseKeepAlive)
	defer tick.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			send(msg)
		}
	}
}
