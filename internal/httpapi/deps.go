package httpapi

import (
	"context"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/scheduler"
	"jobsync-engine/internal/store"
)

// SyncRunner starts sync runs and reports their state.
type SyncRunner interface {
	Start(ctx context.Context, opts reconcile.Options) error
	Status() scheduler.Status
}

// Checkpointer is implemented by catalogs with a write-ahead log.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

type Deps struct {
	Runner SyncRunner
	Hub    *events.Hub

	// Jobs backs GET /jobs; nil disables the route.
	Jobs store.Lister
	// DB backs POST /db/checkpoint; nil disables the route.
	DB Checkpointer

	Config      *config.Config
	LoadSources func(ctx context.Context) (*config.SourceSet, error)
	SetToken    func(account, token string) error

	// RunContext parents background sync runs so they outlive the request.
	RunContext context.Context
}
