// Package workflow decides whether to report the device location and carries a run
// from settings through permission and fix acquisition to delivery.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/locator/internal/constants"
	"github.com/benmeehan/locator/internal/models"
	"github.com/benmeehan/locator/pkg/location"
	"github.com/benmeehan/locator/pkg/scheduler"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// SettingsStore is the subset of the settings store the workflow needs.
type SettingsStore interface {
	Get(ctx context.Context) models.Settings
	Set(ctx context.Context, update models.SettingsUpdate) (models.Settings, error)
}

// Sender delivers a sample to a URL.
type Sender interface {
	Send(ctx context.Context, sample location.Sample, url string) (models.Delivery, error)
}

// TaskScheduler registers the background task.
type TaskScheduler interface {
	Define(taskID string, fn scheduler.TaskFunc)
	Register(taskID string, opts scheduler.Options) error
	Unregister(taskID string) error
	Status(taskID string) scheduler.RegistrationStatus
}

// OutcomeObserver is told about every finished run.
type OutcomeObserver interface {
	Observe(outcome models.Outcome)
}

// Config tunes the workflow.
type Config struct {
	FixTimeout  time.Duration     // bound on a single fix attempt; zero means no bound beyond ctx
	Task        scheduler.Options // registration options of the background task
	RunLockFile string            // lock shared by every process that runs the workflow; empty disables it
}

// DefaultTaskOptions registers the task at the minimum interval, surviving termination and reboot.
func DefaultTaskOptions() scheduler.Options {
	return scheduler.Options{
		MinimumInterval: constants.ShareLocationMinimumInterval,
		StopOnTerminate: false,
		StartOnBoot:     true,
	}
}

// Stats counts runs in this process.
type Stats struct {
	Runs         uint64
	Reports      uint64
	SendFailures uint64
	Skipped      uint64
	LastOutcome  *models.Outcome
}

// Workflow orchestrates settings, permission, fix acquisition and reporting.
// At most one run is active at a time across processes sharing RunLockFile; a run that
// finds another in flight returns StateBusy.
type Workflow struct {
	cfg       Config
	settings  SettingsStore
	provider  location.Provider
	sender    Sender
	scheduler TaskScheduler
	logger    zerolog.Logger
	now       func() time.Time

	guard   *semaphore.Weighted
	runLock *flock.Flock

	mu        sync.Mutex
	state     State
	status    string
	stats     Stats
	observers []OutcomeObserver
}

// New wires a workflow and defines its background task on sched.
func New(cfg Config, settings SettingsStore, provider location.Provider, sender Sender,
	sched TaskScheduler, logger zerolog.Logger) *Workflow {
	w := &Workflow{
		cfg:       cfg,
		settings:  settings,
		provider:  provider,
		sender:    sender,
		scheduler: sched,
		logger:    logger,
		now:       time.Now,
		guard:     semaphore.NewWeighted(1),
		state:     StateIdle,
		status:    constants.StatusLocating,
	}
	if cfg.RunLockFile != "" {
		w.runLock = flock.New(cfg.RunLockFile)
	}
	sched.Define(constants.ShareLocationTaskID, w.BackgroundTask)
	return w
}

// AddObserver registers o to receive every finished Outcome.
func (w *Workflow) AddObserver(o OutcomeObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, o)
}

// Run performs one invocation. It never returns an error: every failure ends in a terminal
// state recorded on the Outcome.
func (w *Workflow) Run(ctx context.Context, trigger models.Trigger) models.Outcome {
	outcome := models.Outcome{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: w.now(),
	}
	logger := w.logger.With().Str("run_id", outcome.RunID).Str("trigger", string(trigger)).Logger()

	if !w.guard.TryAcquire(1) {
		logger.Warn().Msg("Location report already in progress, skipping")
		return w.finish(logger, outcome, StateBusy, constants.StatusBusy)
	}
	defer w.guard.Release(1)

	if w.runLock != nil {
		locked, err := w.runLock.TryLock()
		if err != nil {
			logger.Error().Err(err).Str("lock", w.cfg.RunLockFile).Msg("Failed to take run lock")
			outcome.Error = err.Error()
			return w.finish(logger, outcome, StateBusy, constants.StatusBusy)
		}
		if !locked {
			logger.Warn().Msg("Location report already in progress in another process, skipping")
			return w.finish(logger, outcome, StateBusy, constants.StatusBusy)
		}
		defer func() {
			if err := w.runLock.Unlock(); err != nil {
				logger.Error().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	settings := w.settings.Get(ctx)
	if !settings.Enabled {
		return w.finish(logger, outcome, StateDisabled, constants.StatusDisabled)
	}

	w.transition(logger, StateAwaitingPermission)
	permission, err := w.permission(ctx, trigger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to check location permission")
		outcome.Error = err.Error()
		return w.finish(logger, outcome, StateFixUnavailable, constants.StatusFixUnavailable)
	}
	if permission != location.PermissionGranted {
		return w.finish(logger, outcome, StatePermissionDenied, constants.StatusPermissionDenied)
	}

	w.transition(logger, StateAwaitingFix)
	sample, err := w.acquireFix(ctx)
	if err != nil {
		outcome.Error = err.Error()
		if errors.Is(err, location.ErrPermissionDenied) {
			return w.finish(logger, outcome, StatePermissionDenied, constants.StatusPermissionDenied)
		}
		logger.Error().Err(err).Msg("Failed to get location from provider")
		return w.finish(logger, outcome, StateFixUnavailable, constants.StatusFixUnavailable)
	}

	w.transition(logger, StateReporting)
	outcome.Sample = &sample
	coordinates := fmt.Sprintf(constants.StatusCoordinatesFmt, sample.Coords.Latitude, sample.Coords.Longitude)
	if trigger != models.TriggerBackground {
		w.setStatus(coordinates)
	}

	delivery, err := w.sender.Send(ctx, sample, settings.URL)
	outcome.Delivery = &delivery
	if err != nil {
		outcome.Error = err.Error()
	}
	return w.finish(logger, outcome, StateIdle, coordinates)
}

// SetEnabled persists the flag, runs the workflow, and registers or unregisters the
// background task to match. Registration follows the scheduler's current state, so
// repeated enables leave a single registration.
func (w *Workflow) SetEnabled(ctx context.Context, enabled bool) (models.Outcome, error) {
	if _, err := w.settings.Set(ctx, models.SetEnabled(enabled)); err != nil {
		return models.Outcome{}, fmt.Errorf("failed to save settings: %w", err)
	}

	outcome := w.Run(ctx, models.TriggerToggle)

	if err := w.syncRegistration(enabled); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// SetURL persists the destination URL without triggering a run.
func (w *Workflow) SetURL(ctx context.Context, url string) (models.Settings, error) {
	settings, err := w.settings.Set(ctx, models.SetURL(strings.TrimSpace(url)))
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

// BackgroundTask is the body of the share-location task.
func (w *Workflow) BackgroundTask(ctx context.Context) scheduler.Result {
	outcome := w.Run(ctx, models.TriggerBackground)

	switch State(outcome.State) {
	case StateIdle:
		return scheduler.ResultNewData
	case StateFixUnavailable:
		return scheduler.ResultFailed
	default:
		return scheduler.ResultNoData
	}
}

// Settings returns the persisted settings.
func (w *Workflow) Settings(ctx context.Context) models.Settings {
	return w.settings.Get(ctx)
}

// RegistrationStatus mirrors the scheduler state of the background task.
func (w *Workflow) RegistrationStatus() scheduler.RegistrationStatus {
	return w.scheduler.Status(constants.ShareLocationTaskID)
}

// Status returns the last user-facing status line.
func (w *Workflow) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// State returns the step the current (or last) run is in.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a snapshot of the run counters.
func (w *Workflow) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	if w.stats.LastOutcome != nil {
		last := *w.stats.LastOutcome
		stats.LastOutcome = &last
	}
	return stats
}

func (w *Workflow) permission(ctx context.Context, trigger models.Trigger) (location.Permission, error) {
	// A background wake-up cannot prompt; it relies on permission granted earlier.
	if trigger == models.TriggerBackground {
		return w.provider.PermissionStatus(ctx)
	}
	return w.provider.RequestPermission(ctx)
}

func (w *Workflow) acquireFix(ctx context.Context) (location.Sample, error) {
	if w.cfg.FixTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.FixTimeout)
		defer cancel()
	}
	return w.provider.GetCurrentFix(ctx)
}

func (w *Workflow) syncRegistration(enabled bool) error {
	status := w.scheduler.Status(constants.ShareLocationTaskID)

	switch {
	case enabled && !status.IsRegistered:
		if err := w.scheduler.Register(constants.ShareLocationTaskID, w.cfg.Task); err != nil {
			return fmt.Errorf("failed to register background task: %w", err)
		}
	case !enabled && status.IsRegistered:
		if err := w.scheduler.Unregister(constants.ShareLocationTaskID); err != nil {
			return fmt.Errorf("failed to unregister background task: %w", err)
		}
	}
	return nil
}

func (w *Workflow) transition(logger zerolog.Logger, state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
	logger.Debug().Str("state", state.String()).Msg("Workflow transition")
}

func (w *Workflow) setStatus(status string) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

// finish stamps the terminal state, updates counters and status, and notifies observers.
func (w *Workflow) finish(logger zerolog.Logger, outcome models.Outcome, state State, status string) models.Outcome {
	outcome.State = state.String()
	outcome.Status = status
	outcome.FinishedAt = w.now()

	w.mu.Lock()
	if state != StateBusy {
		// A skipped run does not own the state machine
		w.state = state
		if outcome.Trigger != models.TriggerBackground {
			w.status = status
		}
	}
	w.stats.Runs++
	switch {
	case state == StateBusy:
		w.stats.Skipped++
	case outcome.Delivery != nil:
		w.stats.Reports++
		if outcome.Error != "" {
			w.stats.SendFailures++
		}
	}
	last := outcome
	w.stats.LastOutcome = &last
	observers := append([]OutcomeObserver(nil), w.observers...)
	w.mu.Unlock()

	event := logger.Info()
	if outcome.Error != "" {
		event = logger.Warn().Str("error", outcome.Error)
	}
	event.
		Str("state", outcome.State).
		Bool("reported", outcome.Reported()).
		Dur("duration", outcome.FinishedAt.Sub(outcome.StartedAt)).
		Msg("Location workflow finished")

	for _, o := range observers {
		o.Observe(outcome)
	}
	return outcome
}
