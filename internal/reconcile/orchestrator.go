package reconcile

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/logger"
	"jobsync-engine/internal/store"
)

// MaxSourceConcurrency caps how many sources are reconciled at once.
const MaxSourceConcurrency = 4

// SourceLoader returns the configured sources. Its errors are configuration
// errors and abort the run.
type SourceLoader func(ctx context.Context) ([]domain.SourceDescriptor, error)

// Options selects what one Sync call does.
type Options struct {
	DryRun     bool
	SourceName string
}

// Orchestrator runs the Reconciler over every configured source.
type Orchestrator struct {
	reconciler  *Reconciler
	store       store.JobStore
	loadSources SourceLoader
	concurrency int
	now         func() time.Time
	onSource    func(runID string, s SourceRunSummary)
	log         *zap.SugaredLogger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSourceConcurrency runs up to n sources at once (capped at
// MaxSourceConcurrency). The default of 1 processes sources in order.
func WithSourceConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = min(n, MaxSourceConcurrency)
		}
	}
}

// WithOrchestratorClock sets the clock used for run timestamps.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithSourceHook is called after each source finishes.
func WithSourceHook(fn func(runID string, s SourceRunSummary)) OrchestratorOption {
	return func(o *Orchestrator) { o.onSource = fn }
}

// NewOrchestrator wires a Reconciler to a catalog and a source loader.
func NewOrchestrator(r *Reconciler, st store.JobStore, load SourceLoader, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		reconciler:  r,
		store:       st,
		loadSources: load,
		concurrency: 1,
		now:         time.Now,
		log:         logger.ComponentLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync reconciles every configured source, or only opts.SourceName when set.
// An unknown source name yields an empty run. With DryRun the catalog is
// read but never written; the summary is what a live run would report.
//
// Only loading sources can fail the call. Everything that goes wrong inside
// a source is recorded in that source's summary.
func (o *Orchestrator) Sync(ctx context.Context, opts Options) (*SyncSummary, error) {
	sum := &SyncSummary{
		DryRun:    opts.DryRun,
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
		BySource:  []SourceRunSummary{},
	}
	log := o.log.With(logger.FieldRunID, sum.RunID, logger.FieldDryRun, opts.DryRun)

	sources, err := o.loadSources(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load sources")
	}
	sources = filterSources(sources, opts.SourceName)
	if opts.SourceName != "" && len(sources) == 0 {
		log.Warnw("no configured source matches", logger.FieldSource, opts.SourceName)
	}

	st := o.store
	if opts.DryRun {
		st = store.NewOverlay(st)
	}
	run := NewRun(st)

	log.Infow("sync started", logger.FieldCount, len(sources))

	results := make([]SourceRunSummary, len(sources))
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = o.runSource(ctx, run, src, log)
			if o.onSource != nil {
				o.onSource(sum.RunID, results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		sum.fold(r)
	}
	sum.FinishedAt = o.now().UTC()

	log.Infow("sync finished",
		"sources", sum.SourcesProcessed,
		"inserted", sum.Totals.Inserted,
		"updated", sum.Totals.Updated,
		"terminated", sum.Totals.Terminated,
		"errors", sum.Totals.Errors,
		"duration", sum.FinishedAt.Sub(sum.StartedAt))
	return sum, nil
}

// runSource isolates one source: a panic becomes a summary error.
func (o *Orchestrator) runSource(ctx context.Context, run *Run, src domain.SourceDescriptor, log *zap.SugaredLogger) (out SourceRunSummary) {
	log = log.With(logger.FieldSource, src.Name)
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("source reconciliation panicked", "panic", rec, "stack", string(debug.Stack()))
			out = newSourceSummary(src.Name)
			out.errorf("unexpected failure: %v", rec)
		}
	}()

	started := o.now()
	out = o.reconciler.Reconcile(ctx, run, src)
	log.Infow("source reconciled",
		"discovered", out.Discovered,
		"inserted", out.Inserted,
		"updated", out.Updated,
		"reactivated", out.Reactivated,
		"checked", out.Checked,
		"terminated", out.Terminated,
		"errors", len(out.Errors),
		"duration", o.now().Sub(started))
	for _, e := range out.Errors {
		log.Warnw("source error", logger.FieldError, e)
	}
	return out
}

func filterSources(sources []domain.SourceDescriptor, name string) []domain.SourceDescriptor {
	if name == "" {
		return sources
	}
	for _, s := range sources {
		if s.Name == name {
			return []domain.SourceDescriptor{s}
		}
	}
	return nil
}

// String renders a one-line digest of the summary.
func (s *SyncSummary) String() string {
	mode := "live"
	if s.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("%s run %s: %d sources, %d discovered, %d inserted, %d updated, %d reactivated, %d checked, %d terminated, %d errors",
		mode, s.RunID, s.SourcesProcessed, s.Totals.Discovered, s.Totals.Inserted, s.Totals.Updated,
		s.Totals.Reactivated, s.Totals.Checked, s.Totals.Terminated, s.Totals.Errors)
}
