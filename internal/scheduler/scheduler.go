// Package scheduler runs sync on a cron schedule and guards against
// overlapping runs.
package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobsync-engine/internal/logger"
)

type Task func(ctx context.Context) error

// Scheduler wraps robfig/cron with a single task.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	name    string
	task    Task
	running atomic.Bool
	skipped atomic.Int64
	log     *zap.SugaredLogger
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 6h") and returns a stopped Scheduler.
func New(spec, name string, task Task) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", spec)
	}
	log := logger.ComponentLogger("scheduler").With("task", name)
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cronLogger{log})),
		spec: spec,
		name: name,
		task: task,
		log:  log,
	}, nil
}

// Start registers the task and starts the cron loop. With runNow the task
// also fires immediately in the background. The loop stops when ctx ends.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Tick(ctx) }); err != nil {
		return errors.Wrap(err, "cron.AddFunc")
	}
	s.cron.Start()
	s.log.Infow("scheduler started", "spec", s.spec)

	if runNow {
		go s.Tick(ctx)
	}
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the cron loop and waits for a running task to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Infow("scheduler stopped")
}

// Tick runs the task unless the previous tick is still running. It reports
// whether the task ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Infow("previous run still active, skipping tick")
		return false
	}
	defer s.running.Store(false)

	if err := s.task(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			s.skipped.Add(1)
			s.log.Infow("sync already running elsewhere, skipping tick")
			return false
		}
		s.log.Errorw("scheduled run failed", logger.FieldError, err)
	}
	return true
}

// Skipped counts ticks dropped because a run was active.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// cronLogger routes robfig/cron's logging into zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, logger.FieldError, err)...)
}
