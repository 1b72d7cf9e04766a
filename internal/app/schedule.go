package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"fsv-go/internal/fsv"
	"fsv-go/internal/runlock"
)

// cronLogger adapts fsv.Logger to cron.Logger.
type cronLogger struct {
	l fsv.Logger
}

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug(msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error(msg, append(kv, "error", err)...)
}

// loggingWrapper tags every execution with an id and logs its start and end.
func loggingWrapper(logger fsv.Logger, name string) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			log := fsv.WithFields(logger, "job", name, "execution_id", uuid.NewString())
			log.Info("job started")
			j.Run()
			log.Info("job finished")
		})
	}
}

// jobChain recovers panics, logs each execution and drops a tick while the
// previous one is still running.
func jobChain(logger fsv.Logger, name string) cron.Chain {
	cl := cronLogger{l: logger}
	return cron.NewChain(
		cron.Recover(cl),
		loggingWrapper(logger, name),
		cron.SkipIfStillRunning(cl),
	)
}

// Scheduler runs jobs on cron specs until its context ends.
type Scheduler struct {
	cron   *cron.Cron
	logger fsv.Logger
}

// NewScheduler creates a scheduler accepting standard five-field specs and
// descriptors such as "@every 15m".
func NewScheduler(logger fsv.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{l: logger})),
		logger: logger,
	}
}

// Add registers fn under spec.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	job := jobChain(s.logger, name).Then(cron.FuncJob(fn))
	if _, err := s.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	s.logger.Info("job registered", "job", name, "schedule", spec)
	return nil
}

// Run starts the scheduler and blocks until ctx is done and any running job
// has returned.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Schedule runs Sync on spec until ctx is cancelled.
func (a *FSVApp) Schedule(ctx context.Context, spec string) error {
	if spec == "" {
		spec = a.cfg.Schedule.Cron
	}
	s := NewScheduler(a.logger)
	if err := s.Add("sync", spec, func() { a.syncAndLog(ctx) }); err != nil {
		return err
	}
	s.Run(ctx)
	return nil
}

// syncAndLog runs Sync for an unattended driver, which has nobody to
// return the error to.
func (a *FSVApp) syncAndLog(ctx context.Context) {
	res, err := a.Sync(ctx)
	switch {
	case errors.Is(err, runlock.ErrLocked):
		a.logger.Warn("run skipped: another run holds the lock")
	case err != nil:
		a.logger.Error("sync failed", "error", err)
	default:
		a.logger.Info("sync finished", "op", res.Operation,
			"added", res.Added, "modified", res.Modified, "deleted", res.Deleted)
	}
}
