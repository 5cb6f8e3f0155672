// Package scheduler runs periodic run-all cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/intellifactory/internal/logging"
	"github.com/zulandar/intellifactory/internal/orchestration"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunAller runs one full agent cycle.
type RunAller interface {
	RunAll(ctx context.Context) (*orchestration.RunAllResult, error)
}

// Scheduler fires RunAll on every tick of a cron schedule. A tick that
// arrives while the previous cycle is still running is skipped.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	runner   RunAller
	log      logging.Logger
}

// Validate reports whether expr is a valid 5-field cron expression.
func Validate(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("scheduler: parse %q: %w", expr, err)
	}
	return nil
}

// New parses expr and returns a Scheduler for runner.
func New(expr string, runner RunAller, logger logging.Logger) (*Scheduler, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", expr, err)
	}
	if runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Scheduler{
		expr:     expr,
		schedule: sched,
		runner:   runner,
		log:      logger.With("component", "scheduler"),
	}, nil
}

// Next returns the first fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs the schedule until ctx is done, then waits for any in-flight
// cycle to finish.
func (s *Scheduler) Start(ctx context.Context) {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.Tick(ctx) }))

	s.log.Info("schedule started", "cron", s.expr, "next", s.Next(time.Now()))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("schedule stopped")
}

// Tick runs one cycle now.
func (s *Scheduler) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	res, err := s.runner.RunAll(ctx)
	if err != nil {
		s.log.Error("scheduled run-all failed", "err", err)
		return
	}
	s.log.Info("scheduled run-all", "agents", len(res.Agents), "updates", len(res.Updates), "took", time.Since(start).Round(time.Millisecond))
}
