package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/scheduler"
)

type SyncHandler struct {
	Runner     SyncRunner
	RunContext context.Context
}

type runAccepted struct {
	OK     bool   `json:"ok"`
	DryRun bool   `json:"dry_run"`
	Source string `json:"source,omitempty"`
}

func (h SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.Runner.Status())
}

// Run starts a sync in the background: POST /sync/run?dry_run=1&source=NAME.
func (h SyncHandler) Run(w http.ResponseWriter, r *http.Request) {
	opts := reconcile.Options{
		DryRun:     queryBool(r, "dry_run"),
		SourceName: strings.TrimSpace(r.URL.Query().Get("source")),
	}

	ctx := h.RunContext
	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.Runner.Start(ctx, opts); err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			WriteError(w, r, http.StatusConflict, "sync_running", "a sync is already running")
			return
		}
		writeFailure(w, r, "sync_failed", err)
		return
	}
	WriteJSON(w, http.StatusAccepted, runAccepted{OK: true, DryRun: opts.DryRun, Source: opts.SourceName})
}
