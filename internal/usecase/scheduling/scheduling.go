package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"switchd/internal/infra/config"
)

// ScheduledAction identifies a type of scheduled action.
type ScheduledAction string

const (
	ActionToggle       ScheduledAction = "toggle"
	ActionRefresh      ScheduledAction = "refresh"
	ActionRefreshAll   ScheduledAction = "refresh_all"
	ActionHistoryPrune ScheduledAction = "history_prune"
)

// ScheduledTask defines a recurring task.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression "0 22 * * *" OR duration "30m"
	Action   ScheduledAction
	SwitchID string // for toggle and refresh
	OneShot  bool
}

// ActionFunc runs one firing of a task.
type ActionFunc func(ctx context.Context, task ScheduledTask) error

// TaskStatus describes a scheduled task for display.
type TaskStatus struct {
	Name     string          `json:"name"`
	Action   ScheduledAction `json:"action"`
	SwitchID string          `json:"switch,omitempty"`
	Next     time.Time       `json:"next"`
}

type entry struct {
	task ScheduledTask
	id   cron.EntryID
}

// Scheduler runs tasks on a recurring schedule using cron expressions or durations.
type Scheduler struct {
	cron        *cron.Cron
	actions     map[ScheduledAction]ActionFunc
	entries     map[string]entry
	taskTimeout time.Duration
	logger      *slog.Logger
	mu          sync.Mutex
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTaskTimeout bounds every task run. The default is two minutes.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:        cron.New(),
		actions:     make(map[ScheduledAction]ActionFunc),
		entries:     make(map[string]entry),
		taskTimeout: 2 * time.Minute,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAction registers a handler for a scheduled action type.
func (s *Scheduler) RegisterAction(action ScheduledAction, fn ActionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[action] = fn
}

// AddTask adds a scheduled task. Task names are unique.
func (s *Scheduler) AddTask(task ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn, ok := s.actions[task.Action]
	if !ok {
		return fmt.Errorf("scheduler: unknown action %q for task %q", task.Action, task.Name)
	}
	if _, dup := s.entries[task.Name]; dup {
		return fmt.Errorf("scheduler: task %q already exists", task.Name)
	}
	if (task.Action == ActionToggle || task.Action == ActionRefresh) && task.SwitchID == "" {
		return fmt.Errorf("scheduler: task %q: action %s needs a switch", task.Name, task.Action)
	}

	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for task %q: %w", task.Schedule, task.Name, err)
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.run(task, fn)
		if task.OneShot {
			s.remove(task.Name, entryID)
		}
	}))
	s.entries[task.Name] = entry{task: task, id: entryID}

	s.logger.Info("task added to scheduler", "name", task.Name, "schedule", task.Schedule,
		"action", string(task.Action), "switch", task.SwitchID)
	return nil
}

// AddConfigured adds every task from the scheduler config section.
func (s *Scheduler) AddConfigured(tasks []config.ScheduledTaskConfig) error {
	for _, tc := range tasks {
		err := s.AddTask(ScheduledTask{
			Name:     tc.Name,
			Schedule: tc.Schedule,
			Action:   ScheduledAction(tc.Action),
			SwitchID: tc.Switch,
			OneShot:  tc.OneShot,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) run(task ScheduledTask, fn ActionFunc) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(taskCtx, task); err != nil {
		s.logger.Warn("scheduled task failed",
			"task", task.Name,
			"switch", task.SwitchID,
			"error", err,
			"duration", time.Since(start))
		return
	}
	s.logger.Info("scheduled task completed",
		"task", task.Name,
		"switch", task.SwitchID,
		"duration", time.Since(start))
}

func (s *Scheduler) remove(name string, id cron.EntryID) {
	s.cron.Remove(id)
	s.mu.Lock()
	if e, ok := s.entries[name]; ok && e.id == id {
		delete(s.entries, name)
	}
	s.mu.Unlock()
}

// RemoveTask removes a task by name.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: task %q not found", name)
	}
	s.remove(name, e.id)
	s.logger.Info("task removed", "name", name)
	return nil
}

// Tasks lists the scheduled tasks, soonest first. Next is zero until the
// scheduler has started.
func (s *Scheduler) Tasks() []TaskStatus {
	s.mu.Lock()
	entries := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, TaskStatus{
			Name:     e.task.Name,
			Action:   e.task.Action,
			SwitchID: e.task.SwitchID,
			Next:     s.cron.Entry(e.id).Next,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Start begins running the scheduler.
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
	s.started = false
	s.mu.Unlock()

	// Running jobs take s.mu, so wait without holding it.
	<-s.cron.Stop().Done()
	return nil
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

// ParseSchedule exposes schedule parsing for external callers.
func ParseSchedule(schedule string) (cron.Schedule, error) {
	return parseSchedule(schedule)
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d *constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
