package httpapi

import "net/http"

// NewMux returns the raw mux so serve can wrap it with middleware.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: HealthHandler{Hub: d.Hub}.Health,
	}))

	// Sync
	sh := SyncHandler{Runner: d.Runner, RunContext: d.RunContext}
	mux.HandleFunc("/sync/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))
	mux.HandleFunc("/sync/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Run,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	if d.Jobs != nil {
		jh := JobsHandler{Jobs: d.Jobs}
		mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
			http.MethodGet: jh.List,
		}))
	}

	// Config (read only; secrets never leave the process)
	ch := ConfigHandler{Config: d.Config, LoadSources: d.LoadSources}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
	}))
	mux.HandleFunc("/sources", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Sources,
	}))

	if d.SetToken != nil {
		sec := SecretsHandler{SetToken: d.SetToken}
		mux.HandleFunc("/secrets/token", methodMux(map[string]http.HandlerFunc{
			http.MethodPost: sec.SetSourceToken,
		}))
	}

	if d.DB != nil {
		dh := DBHandler{DB: d.DB}
		mux.HandleFunc("/db/checkpoint", methodMux(map[string]http.HandlerFunc{
			http.MethodPost: dh.Checkpoint,
		}))
	}

	return mux
}
