// Package scheduling runs the daemon's periodic work on cron schedules.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Action identifies a type of scheduled action.
type Action string

const (
	ActionIdleCheck     Action = "idle_check"
	ActionRegistryPrune Action = "registry_prune"
	ActionRescan        Action = "rescan"
)

// Task defines a recurring task. Schedule accepts a cron expression
// ("*/5 * * * *", "@daily") or a duration string ("1s", "30m").
type Task struct {
	Name     string
	Schedule string
	Action   Action
}

// Scheduler runs registered actions on recurring schedules.
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

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action Action, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask adds a scheduled task for a previously registered action.
func (s *Scheduler) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}

	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	taskName := task.Name
	logger := s.logger

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()

		if ctx == nil {
			logger.Debug("scheduler stopped, skipping task", "task", taskName)
			return
		}

		taskCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if err := fn(taskCtx); err != nil {
			logger.Warn("scheduled task failed", "task", taskName, "error", err)
		}
	}))

	logger.Debug("task added to scheduler", "name", task.Name, "schedule", task.Schedule)
	return nil
}

// Start begins running the scheduler. Idempotent.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx = nil
	s.started = false
	stopCtx := s.cron.Stop()
	s.mu.Unlock()

	// Wait with the lock released: a job that fired just before Stop still
	// needs s.mu to read s.ctx before it can finish.
	<-stopCtx.Done()
	return nil
}

// constantDelay fires at a fixed interval, for duration-style schedules that
// are finer grained than cron's one-minute floor (the idle check runs every
// second).
type constantDelay struct {
	delay time.Duration
}

func (c *constantDelay) Next(t time.Time) time.Time {
	return t.Add(c.delay)
}

// parseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
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
	return &constantDelay{delay: dur}, nil
}
