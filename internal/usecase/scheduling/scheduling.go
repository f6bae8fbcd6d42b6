// Package scheduling drives the pool's periodic maintenance: auto-scale
// evaluation, the stale-agent sweep, and audit log pruning.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Action identifies a type of scheduled pool maintenance.
type Action string

const (
	ActionAutoScale  Action = "autoscale_evaluate"
	ActionStaleSweep Action = "stale_agent_sweep"
	ActionAuditPrune Action = "audit_prune"
)

// Task defines one recurring maintenance task.
type Task struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" or duration "30s"
	Action   Action
}

// taskTimeout bounds a single maintenance run.
const taskTimeout = time.Minute

// Scheduler runs registered actions on cron or fixed-interval schedules.
type Scheduler struct {
	cron    *cron.Cron
	actions map[Action]func(ctx context.Context) error
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		actions: make(map[Action]func(ctx context.Context) error),
		logger:  logger,
	}
}

// RegisterAction registers the handler invoked for an action type.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask schedules a maintenance task. The schedule can be a cron
// expression or a duration string.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}
	schedule, err := ParseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	name := task.Name
	logger := s.logger
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			logger.Debug("scheduler stopped, skipping task", "task", name)
			return
		}

		runCtx, cancel := context.WithTimeout(ctx, taskTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(runCtx); err != nil {
			logger.Warn("scheduled task failed",
				"task", name,
				"error", err,
				"duration", time.Since(start))
			return
		}
		logger.Debug("scheduled task completed",
			"task", name,
			"duration", time.Since(start))
	}))

	logger.Info("task scheduled", "name", task.Name, "schedule", task.Schedule, "action", string(task.Action))
	return nil
}

// Start begins running scheduled tasks. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
}

// Stop cancels pending runs and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.started = false
}

// ParseSchedule parses a cron expression, falling back to a duration string
// interpreted as a fixed interval.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval. Unlike
// cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
