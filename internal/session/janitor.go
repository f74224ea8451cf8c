package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is implemented by stores that can expire idle sessions.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// HealthFunc reports the current health of a networked backend. It is used
// for monitoring only.
type HealthFunc func(ctx context.Context) error

// JanitorConfig configures the scheduled maintenance jobs.
type JanitorConfig struct {
	// Retention removes sessions idle for longer than this. Zero disables it.
	Retention time.Duration

	// SweepSchedule is a cron spec for the retention sweep.
	SweepSchedule string

	// HealthSchedule is a cron spec for the backend health check.
	HealthSchedule string

	// HealthTimeout bounds each health check.
	HealthTimeout time.Duration
}

// Janitor runs periodic store maintenance on a cron scheduler.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor schedules the retention sweep (when store implements Sweeper and
// Retention is positive) and the health check (when health is non-nil).
// onHealth receives each result.
func NewJanitor(cfg JanitorConfig, store Store, health HealthFunc, onHealth func(error), logger *slog.Logger) (*Janitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "@every 1h"
	}
	if cfg.HealthSchedule == "" {
		cfg.HealthSchedule = "@every 30s"
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}

	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	j := &Janitor{cron: c, logger: logger}

	if sw, ok := store.(Sweeper); ok && cfg.Retention > 0 {
		if _, err := c.AddFunc(cfg.SweepSchedule, func() { j.sweep(sw, cfg.Retention) }); err != nil {
			return nil, fmt.Errorf("schedule retention sweep: %w", err)
		}
	}
	if health != nil {
		_, err := c.AddFunc(cfg.HealthSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthTimeout)
			defer cancel()
			err := health(ctx)
			if err != nil {
				logger.Debug("backend health check failed", "error", err)
			}
			if onHealth != nil {
				onHealth(err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule health check: %w", err)
		}
	}
	return j, nil
}

// Jobs returns the number of scheduled jobs.
func (j *Janitor) Jobs() int {
	return len(j.cron.Entries())
}

// Start runs the scheduler in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the scheduler and waits for running jobs.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep(sw Sweeper, retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := sw.Sweep(ctx, retention)
	if err != nil {
		j.logger.Warn("session retention sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("expired idle sessions", "count", n, "retention", retention.String())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
