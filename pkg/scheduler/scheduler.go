// Package scheduler registers named periodic tasks and wakes them from an agent process.
//
// Registrations live in a file so that a short-lived process (a CLI command) can
// register or unregister a task that a long-running agent executes. Task bodies
// are bound per process with Define, the way a task manager binds a task name to
// code at startup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benmeehan/locator/pkg/file"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// Result is what a task body reports back after a wake-up.
type Result string

const (
	ResultNoData  Result = "no_data"
	ResultNewData Result = "new_data"
	ResultFailed  Result = "failed"
)

// Availability tells whether background execution can happen at all.
type Availability string

const (
	AvailabilityAvailable Availability = "available"
	// AvailabilityDenied means background execution is switched off in configuration.
	AvailabilityDenied Availability = "denied"
	// AvailabilityRestricted means registrations cannot currently be read or persisted.
	AvailabilityRestricted Availability = "restricted"
)

var (
	// ErrUnknownTask is returned when registering a task that has no body defined.
	ErrUnknownTask = errors.New("task is not defined")
	// ErrBackgroundDenied is returned by Register when background execution is off.
	ErrBackgroundDenied = errors.New("background execution is denied")
)

// TaskFunc is a task body. ctx carries the per-run deadline.
type TaskFunc func(ctx context.Context) Result

// Options control a registration.
type Options struct {
	MinimumInterval time.Duration // floor between runs, not a guarantee
	StopOnTerminate bool          // drop the registration when the agent stops
	StartOnBoot     bool          // keep the registration across a reboot
}

// RegistrationStatus mirrors the persisted state for one task.
type RegistrationStatus struct {
	Available    Availability
	IsRegistered bool
}

const (
	DefaultPollInterval = 30 * time.Second
	DefaultTaskTimeout  = 25 * time.Second
)

// Config configures a Scheduler.
type Config struct {
	RegistrationFile  string
	PollInterval      time.Duration
	TaskTimeout       time.Duration
	Workers           int
	BackgroundAllowed bool
}

// Scheduler runs defined tasks according to the persisted registrations.
type Scheduler struct {
	cfg      Config
	table    *registrationTable
	tasks    cmap.ConcurrentMap[string, TaskFunc]
	inFlight cmap.ConcurrentMap[string, struct{}]
	logger   zerolog.Logger

	now      func() time.Time
	bootTime func() (uint64, error)

	persistFailed atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	pool   *workerPool
}

// New creates a Scheduler. It does not run anything until Start.
func New(cfg Config, fileClient file.FileOperations, logger zerolog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	return &Scheduler{
		cfg:      cfg,
		table:    newRegistrationTable(cfg.RegistrationFile, fileClient),
		tasks:    cmap.New[TaskFunc](),
		inFlight: cmap.New[struct{}](),
		logger:   logger,
		now:      time.Now,
		bootTime: host.BootTime,
	}
}

// Define binds fn as the body of taskID in this process.
func (s *Scheduler) Define(taskID string, fn TaskFunc) {
	s.tasks.Set(taskID, fn)
	s.logger.Debug().Str("task", taskID).Msg("Task defined")
}

// Register asks for taskID to be woken at least opts.MinimumInterval apart.
// Registering an already registered task replaces its options and keeps its schedule.
func (s *Scheduler) Register(taskID string, opts Options) error {
	if !s.tasks.Has(taskID) {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if !s.cfg.BackgroundAllowed {
		return ErrBackgroundDenied
	}
	if opts.MinimumInterval <= 0 {
		return fmt.Errorf("invalid minimum interval %s for task %s", opts.MinimumInterval, taskID)
	}

	boot := s.currentBootTime()
	err := s.table.update(func(regs map[string]Registration) bool {
		reg := Registration{
			TaskID:          taskID,
			MinimumInterval: opts.MinimumInterval,
			StopOnTerminate: opts.StopOnTerminate,
			StartOnBoot:     opts.StartOnBoot,
			RegisteredAt:    s.now(),
			BootTime:        boot,
		}
		if existing, ok := regs[taskID]; ok {
			reg.RegisteredAt = existing.RegisteredAt
			reg.LastRun = existing.LastRun
			reg.LastResult = existing.LastResult
		}
		regs[taskID] = reg
		return true
	})
	s.recordPersist(err)
	if err != nil {
		s.logger.Error().Err(err).Str("task", taskID).Msg("Failed to register task")
		return err
	}

	s.logger.Info().
		Str("task", taskID).
		Dur("minimum_interval", opts.MinimumInterval).
		Bool("stop_on_terminate", opts.StopOnTerminate).
		Bool("start_on_boot", opts.StartOnBoot).
		Msg("Task registered")
	return nil
}

// Unregister removes the registration of taskID. Unknown tasks are ignored.
func (s *Scheduler) Unregister(taskID string) error {
	removed := false
	err := s.table.update(func(regs map[string]Registration) bool {
		if _, ok := regs[taskID]; !ok {
			return false
		}
		delete(regs, taskID)
		removed = true
		return true
	})
	s.recordPersist(err)
	if err != nil {
		s.logger.Error().Err(err).Str("task", taskID).Msg("Failed to unregister task")
		return err
	}

	if removed {
		s.logger.Info().Str("task", taskID).Msg("Task unregistered")
	}
	return nil
}

// Status reads the registration table and reports availability and registration of taskID.
func (s *Scheduler) Status(taskID string) RegistrationStatus {
	status := RegistrationStatus{Available: AvailabilityAvailable}
	if !s.cfg.BackgroundAllowed {
		status.Available = AvailabilityDenied
	} else if s.persistFailed.Load() {
		status.Available = AvailabilityRestricted
	}

	regs, err := s.table.read()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read task registrations")
		if status.Available == AvailabilityAvailable {
			status.Available = AvailabilityRestricted
		}
		return status
	}
	_, status.IsRegistered = regs[taskID]
	return status
}

// Registrations returns the persisted registrations sorted by task id.
func (s *Scheduler) Registrations() ([]Registration, error) {
	regs, err := s.table.read()
	if err != nil {
		return nil, err
	}
	out := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

// Start reconciles registrations with the current boot and begins waking due tasks.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		s.logger.Warn().Msg("Scheduler is already running")
		return errors.New("scheduler is already running")
	}
	if !s.cfg.BackgroundAllowed {
		s.logger.Warn().Msg("Background execution is denied, registered tasks will not run")
	}

	s.reconcileBoot()

	ctx, cancel := context.WithCancel(context.Background())
	s.ctx, s.cancel = ctx, cancel
	s.pool = newWorkerPool(s.cfg.Workers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop(ctx)
	}()

	s.logger.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Dur("task_timeout", s.cfg.TaskTimeout).
		Msg("Scheduler started")
	return nil
}

// Stop cancels running tasks, waits for them, and drops StopOnTerminate registrations.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		s.logger.Warn().Msg("Scheduler is not running")
		return errors.New("scheduler is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.pool.shutdown()

	s.ctx = nil
	s.cancel = nil
	s.pool = nil

	err := s.table.update(func(regs map[string]Registration) bool {
		changed := false
		for id, reg := range regs {
			if reg.StopOnTerminate {
				delete(regs, id)
				changed = true
				s.logger.Info().Str("task", id).Msg("Dropping registration on terminate")
			}
		}
		return changed
	})
	s.recordPersist(err)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to drop stop-on-terminate registrations")
		return err
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.dispatchDue(ctx)
		case <-ctx.Done():
			s.logger.Debug().Msg("Scheduler loop stopping")
			return
		}
	}
}

// dispatchDue hands every due, defined and idle task to the worker pool.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	if !s.cfg.BackgroundAllowed {
		return
	}

	regs, err := s.table.read()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read task registrations")
		return
	}

	now := s.now()
	for id, reg := range regs {
		fn, ok := s.tasks.Get(id)
		if !ok {
			s.logger.Debug().Str("task", id).Msg("Registered task has no body in this process")
			continue
		}
		if !reg.due(now) {
			continue
		}
		if !s.inFlight.SetIfAbsent(id, struct{}{}) {
			s.logger.Debug().Str("task", id).Msg("Task still running, skipping wake-up")
			continue
		}

		taskID := id
		if err := s.pool.submit(ctx, func() { s.runTask(ctx, taskID, fn) }); err != nil {
			s.inFlight.Remove(taskID)
			return
		}
	}
}

func (s *Scheduler) runTask(parent context.Context, taskID string, fn TaskFunc) {
	defer s.inFlight.Remove(taskID)

	ctx, cancel := context.WithTimeout(parent, s.cfg.TaskTimeout)
	defer cancel()

	started := s.now()
	result := s.invoke(ctx, taskID, fn)

	err := s.table.update(func(regs map[string]Registration) bool {
		reg, ok := regs[taskID]
		if !ok {
			// Unregistered while running
			return false
		}
		reg.LastRun = started
		reg.LastResult = result
		regs[taskID] = reg
		return true
	})
	s.recordPersist(err)
	if err != nil {
		s.logger.Error().Err(err).Str("task", taskID).Msg("Failed to record task run")
	}

	s.logger.Info().
		Str("task", taskID).
		Str("result", string(result)).
		Dur("duration", s.now().Sub(started)).
		Msg("Background task finished")
}

// invoke runs fn, converting a panic into ResultFailed.
func (s *Scheduler) invoke(ctx context.Context, taskID string, fn TaskFunc) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("task", taskID).Msg("Background task panicked")
			result = ResultFailed
		}
	}()
	return fn(ctx)
}

// reconcileBoot drops registrations from a previous boot that did not ask to survive it.
func (s *Scheduler) reconcileBoot() {
	boot := s.currentBootTime()
	if boot == 0 {
		return
	}

	err := s.table.update(func(regs map[string]Registration) bool {
		changed := false
		for id, reg := range regs {
			if reg.BootTime == boot {
				continue
			}
			if reg.BootTime != 0 && !reg.StartOnBoot {
				delete(regs, id)
				changed = true
				s.logger.Info().Str("task", id).Msg("Dropping registration from previous boot")
				continue
			}
			reg.BootTime = boot
			regs[id] = reg
			changed = true
		}
		return changed
	})
	s.recordPersist(err)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to reconcile registrations after boot")
	}
}

func (s *Scheduler) currentBootTime() uint64 {
	boot, err := s.bootTime()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Boot time unavailable")
		return 0
	}
	return boot
}

func (s *Scheduler) recordPersist(err error) {
	s.persistFailed.Store(err != nil)
}
