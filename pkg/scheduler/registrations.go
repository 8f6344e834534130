package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benmeehan/locator/pkg/file"
	"github.com/gofrs/flock"
)

// Registration is a persisted periodic task registration.
type Registration struct {
	TaskID          string        `json:"task_id"`
	MinimumInterval time.Duration `json:"minimum_interval"`
	StopOnTerminate bool          `json:"stop_on_terminate"`
	StartOnBoot     bool          `json:"start_on_boot"`
	RegisteredAt    time.Time     `json:"registered_at"`
	LastRun         time.Time     `json:"last_run,omitempty"`
	LastResult      Result        `json:"last_result,omitempty"`
	BootTime        uint64        `json:"boot_time,omitempty"`
}

// due reports whether the registration should run at now.
func (r Registration) due(now time.Time) bool {
	last := r.LastRun
	if last.IsZero() {
		last = r.RegisteredAt
	}
	return !now.Before(last.Add(r.MinimumInterval))
}

// registrationTable is the on-disk table of registrations, shared between processes.
// Every operation reloads the file; nothing is cached between calls.
// mu serializes callers in this process, fileLock serializes processes.
type registrationTable struct {
	path       string
	fileClient file.FileOperations
	mu         sync.Mutex
	fileLock   *flock.Flock
}

func newRegistrationTable(path string, fileClient file.FileOperations) *registrationTable {
	return &registrationTable{
		path:       path,
		fileClient: fileClient,
		fileLock:   flock.New(lockPathFor(path)),
	}
}

// lockPathFor maps tasks.json to tasks.lock in the same directory.
func lockPathFor(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".lock"
}

func (t *registrationTable) load() (map[string]Registration, error) {
	regs := make(map[string]Registration)

	data, err := t.fileClient.ReadFileRaw(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return regs, nil
		}
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}
	if len(data) == 0 {
		return regs, nil
	}
	if err := json.Unmarshal(data, &regs); err != nil {
		return nil, fmt.Errorf("failed to parse registrations: %w", err)
	}
	return regs, nil
}

func (t *registrationTable) save(regs map[string]Registration) error {
	data, err := json.MarshalIndent(regs, "", "  ")
	if err != nil {
		return err
	}
	if err := t.fileClient.WriteFileRaw(t.path, data); err != nil {
		return fmt.Errorf("failed to write registrations: %w", err)
	}
	return nil
}

// read returns a snapshot of the table.
func (t *registrationTable) read() (map[string]Registration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.fileLock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock registrations: %w", err)
	}
	defer t.fileLock.Unlock()

	return t.load()
}

// update applies fn to the table and saves it when fn reports a change.
func (t *registrationTable) update(fn func(regs map[string]Registration) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Held across load and save so another process cannot write in between
	if err := t.fileLock.Lock(); err != nil {
		return fmt.Errorf("failed to lock registrations: %w", err)
	}
	defer t.fileLock.Unlock()

	regs, err := t.load()
	if err != nil {
		return err
	}
	if !fn(regs) {
		return nil
	}
	return t.save(regs)
}
