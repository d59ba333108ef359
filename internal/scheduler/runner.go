// Package scheduler runs periodic jobs on cron specs with seconds precision.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules jobs on a robfig/cron instance.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New returns a Runner whose jobs receive baseCtx and stop firing once it is cancelled.
func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add schedules job on spec. A run still in progress when the next tick
// fires causes that tick to be skipped.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r.baseCtx.Err() != nil {
			return
		}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("cron job panicked", zap.String("spec", spec), zap.Any("panic", p))
				return
			}
			r.logger.Debug("cron job finished", zap.String("spec", spec), zap.Duration("duration", time.Since(start)))
		}()
		job(r.baseCtx)
	})
}

// Start begins firing scheduled jobs.
func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop halts the schedule and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
