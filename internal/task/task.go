// ABOUTME: Background task lifecycle: submit, snapshot status, cancel, collect a result
// ABOUTME: Single-owner-goroutine-per-task state machine, progress via a mutex-guarded update callback (no channel)

// Package task implements the TaskManager: the owner of every background
// job's lifecycle. Each task is driven by exactly one goroutine; callers
// only ever see snapshots copied under the task's mutex, never the live
// mutable state. Progress reaches that state through the update callback
// passed to the Runner, which takes the same mutex; no channel is involved.
package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"crateforge/internal/apperror"
	"crateforge/internal/xlog"
)

// Kind is the closed set of background job types.
type Kind string

const (
	KindAnalysis           Kind = "analysis"
	KindPlaylistGeneration Kind = "playlist_generation"
)

// State is the closed set of task lifecycle states. Allowed transitions:
// pending -> running -> (completed|failed|cancelled), and pending -> cancelled.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// ErrorEntry is one entry in a task's bounded error list.
type ErrorEntry struct {
	Path    string        `json:"path"`
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

// MaxErrorEntries bounds the per-task error list, per the error handling
// design's "most recent 50" contract.
const MaxErrorEntries = 50

// View is an immutable snapshot of a task's state, safe to hand to a
// caller without further synchronization.
type View struct {
	ID        string
	Kind      Kind
	State     State
	Progress  float64
	StartedAt time.Time
	UpdatedAt time.Time
	EndedAt   time.Time

	TotalFiles     int
	ProcessedFiles int
	CurrentFile    string
	ErrorCount     int
	Errors         []ErrorEntry

	Result any
}

// Runner is the function a caller submits: it does the actual work,
// reporting progress through update and observing ctx for cancellation.
// A non-nil return is treated as this task's terminal error.
type Runner func(ctx context.Context, update func(Progress)) (any, error)

// Progress is what a Runner reports on each step; the manager folds it
// into the task's live view.
type Progress struct {
	Progress       float64
	TotalFiles     int
	ProcessedFiles int
	CurrentFile    string
	NewErrors      []ErrorEntry
}

type entry struct {
	mu     sync.Mutex
	view   View
	cancel context.CancelFunc
}

func (e *entry) snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.view
	v.Errors = append([]ErrorEntry(nil), e.view.Errors...)
	return v
}

// Manager owns the map of active and recently-terminal tasks.
type Manager struct {
	mu    sync.RWMutex
	tasks map[string]*entry

	maxConcurrent  int32
	running        atomic.Int32
	completedTTL   time.Duration
	terminalTTL    time.Duration
	logger         *xlog.Logger
	stopSweeper    chan struct{}
	sweeperStopped chan struct{}
}

// DefaultMaxConcurrent caps simultaneously running tasks before Submit
// starts failing with Busy.
const DefaultMaxConcurrent = 16

// DefaultCompletedRetention and DefaultTerminalRetention are the sweeper's
// retention windows for completed vs. failed/cancelled tasks.
const (
	DefaultCompletedRetention = 24 * time.Hour
	DefaultTerminalRetention  = 1 * time.Hour
)

// NewManager builds a Manager and starts its retention sweeper.
func NewManager(maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	m := &Manager{
		tasks:          make(map[string]*entry),
		maxConcurrent:  int32(maxConcurrent),
		completedTTL:   DefaultCompletedRetention,
		terminalTTL:    DefaultTerminalRetention,
		logger:         xlog.Default().With("task"),
		stopSweeper:    make(chan struct{}),
		sweeperStopped: make(chan struct{}),
	}

	go m.sweepLoop()

	return m
}

// Close stops the retention sweeper.
func (m *Manager) Close() {
	close(m.stopSweeper)
	<-m.sweeperStopped
}

// Submit registers and starts a new task of the given kind. It never
// blocks; it fails with Busy if the concurrent-task ceiling is reached.
func (m *Manager) Submit(kind Kind, run Runner) (string, error) {
	if m.running.Load() >= m.maxConcurrent {
		return "", apperror.Busyf("concurrent task ceiling of %d reached", m.maxConcurrent)
	}

	id := uuid.Must(uuid.NewV7()).String()
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	e := &entry{
		view: View{
			ID:        id,
			Kind:      kind,
			State:     StatePending,
			StartedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.tasks[id] = e
	m.mu.Unlock()

	m.running.Add(1)

	go m.drive(ctx, e, run)

	return id, nil
}

func (m *Manager) drive(ctx context.Context, e *entry, run Runner) {
	defer m.running.Add(-1)

	e.mu.Lock()
	e.view.State = StateRunning
	e.view.UpdatedAt = time.Now()
	e.mu.Unlock()

	result, err := m.runSafely(ctx, run, e)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	e.view.UpdatedAt = now
	e.view.EndedAt = now

	switch {
	case ctx.Err() != nil && err != nil:
		e.view.State = StateCancelled
	case err != nil:
		e.view.State = StateFailed
		e.view.Errors = appendBounded(e.view.Errors, ErrorEntry{Code: apperror.CodeOf(err), Message: err.Error()})
		e.view.ErrorCount++
	default:
		e.view.State = StateCompleted
		e.view.Progress = 100.0
		e.view.Result = result
	}
}

// runSafely invokes run, converting a panic into an internal-class error
// so it fails only this task and never takes down the manager.
func (m *Manager) runSafely(ctx context.Context, run Runner, e *entry) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("task %s panicked: %v", e.view.ID, r)
			err = apperror.Wrap(apperror.Internal, nil, "worker panic: %v", r)
		}
	}()

	return run(ctx, func(p Progress) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if p.Progress > e.view.Progress {
			e.view.Progress = p.Progress
		}

		if p.TotalFiles > 0 {
			e.view.TotalFiles = p.TotalFiles
		}

		if p.ProcessedFiles > e.view.ProcessedFiles {
			e.view.ProcessedFiles = p.ProcessedFiles
		}

		if p.CurrentFile != "" {
			e.view.CurrentFile = p.CurrentFile
		}

		for _, ne := range p.NewErrors {
			e.view.Errors = appendBounded(e.view.Errors, ne)
			e.view.ErrorCount++
		}

		e.view.UpdatedAt = time.Now()
	})
}

func appendBounded(errs []ErrorEntry, ne ErrorEntry) []ErrorEntry {
	errs = append(errs, ne)
	if len(errs) > MaxErrorEntries {
		errs = errs[len(errs)-MaxErrorEntries:]
	}

	return errs
}

// Status returns a snapshot of task id, or NotFound if unknown or expired.
func (m *Manager) Status(id string) (View, error) {
	m.mu.RLock()
	e, ok := m.tasks[id]
	m.mu.RUnlock()

	if !ok {
		return View{}, apperror.NotFoundf("unknown task: %s", id)
	}

	return e.snapshot(), nil
}

// Cancel requests cooperative cancellation of task id. Idempotent.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.tasks[id]
	m.mu.RUnlock()

	if !ok {
		return apperror.NotFoundf("unknown task: %s", id)
	}

	e.cancel()
	return nil
}

// ResultStatus is the discriminated outcome Result reports when the task
// hasn't produced a result yet.
type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultReady   ResultStatus = "ready"
	ResultFailed  ResultStatus = "failed"
)

// Result returns the task's terminal payload, or a discriminated pending
// or failed status instead of blocking.
func (m *Manager) Result(id string) (any, ResultStatus, error) {
	v, err := m.Status(id)
	if err != nil {
		return nil, "", err
	}

	switch v.State {
	case StateCompleted:
		return v.Result, ResultReady, nil
	case StateFailed, StateCancelled:
		return nil, ResultFailed, nil
	default:
		return nil, ResultPending, nil
	}
}

func (m *Manager) sweepLoop() {
	defer close(m.sweeperStopped)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweeper:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.tasks {
		v := e.snapshot()

		var ttl time.Duration
		switch v.State {
		case StateCompleted:
			ttl = m.completedTTL
		case StateFailed, StateCancelled:
			ttl = m.terminalTTL
		default:
			continue
		}

		if v.EndedAt.IsZero() || now.Sub(v.EndedAt) < ttl {
			continue
		}

		delete(m.tasks, id)
	}
}
