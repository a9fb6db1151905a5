// Package schedule runs periodic race syncs and snapshot pruning on cron
// schedules with a seconds field.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kalambet/racenotes/internal/domain"
)

var parser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether spec is a valid six-field cron expression or a
// descriptor such as "@hourly".
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// NextRun returns the first activation of spec after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

// Runner wraps a cron scheduler. A job still running when its next tick
// arrives is skipped for that tick.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New creates a stopped Runner whose jobs receive baseCtx.
func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("adding job %q: %w", spec, err)
	}
	return id, nil
}

// Next returns the next activation time of entry id.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

// Start begins running jobs in the background.
func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// Syncer is implemented by store.RaceStore.
type Syncer interface {
	SyncRaceData(ctx context.Context, date string, force bool) (*domain.SyncResult, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SyncJob returns a job that syncs the clock's current UTC date. A nil
// clock uses the wall clock.
func SyncJob(s Syncer, clock Clock, force bool, logger *zap.Logger) func(context.Context) {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) {
		date := clock.Now().UTC().Format("2006-01-02")
		res, err := s.SyncRaceData(ctx, date, force)
		if err != nil {
			logger.Warn("scheduled sync failed", zap.String("date", date), zap.Error(err))
			return
		}
		logger.Info("scheduled sync finished",
			zap.String("date", date), zap.String("status", string(res.Status)),
			zap.String("message", res.Message))
	}
}

// Pruner is implemented by storage.Store.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneJob returns a job that deletes snapshots older than keep.
func PruneJob(p Pruner, clock Clock, keep time.Duration, logger *zap.Logger) func(context.Context) {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) {
		n, err := p.Prune(ctx, clock.Now().Add(-keep))
		if err != nil {
			logger.Warn("snapshot prune failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("pruned snapshots", zap.Int64("rows", n))
		}
	}
}
