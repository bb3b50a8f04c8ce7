package httpapi

import (
	"context"
	"net/http"

	"jobsync-engine/internal/config"
)

type ConfigHandler struct {
	Config      *config.Config
	LoadSources func(ctx context.Context) (*config.SourceSet, error)
}

type configView struct {
	Config     *config.Config    `json:"config"`
	Validation config.Validation `json:"validation"`
}

// Get returns the effective settings. DatabaseURL is never serialised.
func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Config == nil {
		WriteError(w, r, http.StatusNotFound, "no_config", "no configuration loaded")
		return
	}
	_, vr := config.NormalizeAndValidate(*h.Config)
	WriteJSON(w, http.StatusOK, configView{Config: h.Config, Validation: vr})
}

// Sources re-reads the source list so edits show up without a restart.
func (h ConfigHandler) Sources(w http.ResponseWriter, r *http.Request) {
	if h.LoadSources == nil {
		WriteError(w, r, http.StatusNotFound, "no_sources", "source loading not configured")
		return
	}
	set, err := h.LoadSources(r.Context())
	if err != nil {
		// Same failure a sync run would hit; report it as bad configuration.
		WriteError(w, r, http.StatusUnprocessableEntity, "invalid_sources", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, set)
}
