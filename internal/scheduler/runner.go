package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"jobsync-engine/internal/events"
	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/runlock"
)

// ErrBusy is returned when a sync is already running.
var ErrBusy = errors.New("sync already running")

// SyncFunc runs one orchestrated sync.
type SyncFunc func(ctx context.Context, opts reconcile.Options) (*reconcile.SyncSummary, error)

// Status is the last known state of the Runner.
type Status struct {
	Running   bool                   `json:"running"`
	DryRun    bool                   `json:"dry_run"`
	LastRunAt string                 `json:"last_run_at"`
	LastOkAt  string                 `json:"last_ok_at"`
	LastError string                 `json:"last_error"`
	Last      *reconcile.SyncSummary `json:"last_summary,omitempty"`
}

// Runner lets one sync run at a time, in this process through a flag and
// across processes through the run lock, and publishes progress to a hub.
type Runner struct {
	sync     SyncFunc
	hub      *events.Hub
	lockPath string
	now      func() time.Time
	log      *zap.SugaredLogger

	mu     sync.Mutex
	status Status
	wg     sync.WaitGroup
}

// NewRunner builds a Runner. lockPath may be empty to skip the file lock;
// hub may be nil.
func NewRunner(fn SyncFunc, hub *events.Hub, lockPath string) *Runner {
	return &Runner{
		sync:     fn,
		hub:      hub,
		lockPath: lockPath,
		now:      time.Now,
		log:      logger.ComponentLogger("runner"),
	}
}

// Run syncs in the calling goroutine.
func (r *Runner) Run(ctx context.Context, opts reconcile.Options) (*reconcile.SyncSummary, error) {
	if !r.begin(opts) {
		return nil, ErrBusy
	}
	return r.run(ctx, opts)
}

// Start syncs in the background and returns once the run is claimed.
func (r *Runner) Start(ctx context.Context, opts reconcile.Options) error {
	if !r.begin(opts) {
		return ErrBusy
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.run(ctx, opts)
	}()
	return nil
}

// Wait blocks until background runs started with Start have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) begin(opts reconcile.Options) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Running {
		return false
	}
	r.status.Running = true
	r.status.DryRun = opts.DryRun
	r.status.LastRunAt = r.now().UTC().Format(time.RFC3339)
	return true
}

func (r *Runner) run(ctx context.Context, opts reconcile.Options) (sum *reconcile.SyncSummary, err error) {
	defer func() { r.finish(sum, err) }()

	if r.lockPath != "" {
		lock, lerr := runlock.Acquire(r.lockPath)
		if lerr != nil {
			if errors.Is(lerr, runlock.ErrLocked) {
				return nil, errors.Mark(lerr, ErrBusy)
			}
			return nil, lerr
		}
		defer func() {
			if uerr := lock.Release(); uerr != nil {
				r.log.Warnw("release run lock", logger.FieldError, uerr)
			}
		}()
	}

	r.hub.Publish(events.MakeEvent(events.TypeSyncStarted, "", map[string]any{
		"dry_run": opts.DryRun,
		"source":  opts.SourceName,
	}))
	return r.sync(ctx, opts)
}

func (r *Runner) finish(sum *reconcile.SyncSummary, err error) {
	r.mu.Lock()
	r.status.Running = false
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
		r.status.LastOkAt = r.now().UTC().Format(time.RFC3339)
		r.status.Last = sum
	}
	r.mu.Unlock()

	switch {
	case errors.Is(err, ErrBusy):
		r.log.Infow("sync skipped", logger.FieldError, err)
	case err != nil:
		r.log.Errorw("sync failed", logger.FieldError, err)
		r.hub.Publish(events.MakeEvent(events.TypeSyncFailed, "", map[string]any{"error": err.Error()}))
	default:
		r.hub.Publish(events.MakeEvent(events.TypeSyncFinished, sum.RunID, sum.Totals))
	}
}

// SourceHook publishes a per-source event; pass it to
// reconcile.WithSourceHook.
func (r *Runner) SourceHook(runID string, s reconcile.SourceRunSummary) {
	r.hub.Publish(events.MakeEvent(events.TypeSourceFinished, runID, s))
}
