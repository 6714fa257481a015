package rules

import (
	"sync"
	"sync/atomic"
	"time"
)

// ExecutionStatus represents the state of one engine run.
// Transitions are running -> completed | failed | cancelled only;
// terminal states are final.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Scope identifies whether a run targets one device or all devices.
type Scope string

const (
	ScopeSingleDevice Scope = "single_device"
	ScopeAllDevices   Scope = "all_devices"
)

// Execution tracks one run of "apply rules" against one device or all
// devices. It lives in the ExecutionStore for the retention window and
// is never persisted across process restarts.
//
// Only the owning run goroutine mutates an Execution; readers take a
// Snapshot. The cancel flag is the one cross-goroutine write and is
// atomic for that reason.
type Execution struct {
	id        string
	scope     Scope
	deviceID  string
	startedAt time.Time

	cancelRequested atomic.Bool

	mu               sync.Mutex
	status           ExecutionStatus
	completedAt      *time.Time
	devicesProcessed int
	rulesApplied     int
	totalDevices     int
	results          []RuleResult
	errMsg           string
}

// newExecution creates a running execution record.
func newExecution(id string, scope Scope, deviceID string) *Execution {
	return &Execution{
		id:        id,
		scope:     scope,
		deviceID:  deviceID,
		startedAt: time.Now().UTC(),
		status:    StatusRunning,
	}
}

// ID returns the execution's unique identifier.
func (e *Execution) ID() string { return e.id }

// StartedAt returns when the run began.
func (e *Execution) StartedAt() time.Time { return e.startedAt }

// RequestCancel sets the cooperative cancellation flag. The run
// observes it at the next checkpoint (top of a rule or device loop);
// an in-flight action batch is never interrupted.
func (e *Execution) RequestCancel() {
	e.cancelRequested.Store(true)
}

// CancelRequested reports whether cancellation has been requested.
func (e *Execution) CancelRequested() bool {
	return e.cancelRequested.Load()
}

// appendResult records one rule's outcome.
func (e *Execution) appendResult(r RuleResult) {
	e.mu.Lock()
	e.results = append(e.results, r)
	e.mu.Unlock()
}

// incrementRulesApplied bumps the fired-rule counter and returns the
// new value.
func (e *Execution) incrementRulesApplied() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rulesApplied++
	return e.rulesApplied
}

// incrementDevicesProcessed bumps the device counter and returns the
// new value.
func (e *Execution) incrementDevicesProcessed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.devicesProcessed++
	return e.devicesProcessed
}

// setTotalDevices records the sweep size for all-devices runs.
func (e *Execution) setTotalDevices(n int) {
	e.mu.Lock()
	e.totalDevices = n
	e.mu.Unlock()
}

// finish moves the execution to a terminal state. Returns false if the
// execution was already terminal (terminal states are final).
func (e *Execution) finish(status ExecutionStatus, errMsg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning {
		return false
	}
	now := time.Now().UTC()
	e.status = status
	e.completedAt = &now
	e.errMsg = errMsg
	return true
}

// ExecutionSnapshot is an immutable copy of an Execution's state, safe
// to hand to other goroutines and to serialise.
type ExecutionSnapshot struct {
	ID               string          `json:"execution_id"`
	Scope            Scope           `json:"scope"`
	DeviceID         string          `json:"device_id,omitempty"`
	Status           ExecutionStatus `json:"status"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	DevicesProcessed int             `json:"devices_processed"`
	RulesApplied     int             `json:"rules_applied"`
	TotalDevices     int             `json:"total_devices,omitempty"`
	Results          []RuleResult    `json:"results,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Snapshot returns a consistent copy of the execution's current state.
func (e *Execution) Snapshot() ExecutionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := ExecutionSnapshot{
		ID:               e.id,
		Scope:            e.scope,
		DeviceID:         e.deviceID,
		Status:           e.status,
		StartedAt:        e.startedAt,
		CompletedAt:      cloneTimePtr(e.completedAt),
		DevicesProcessed: e.devicesProcessed,
		RulesApplied:     e.rulesApplied,
		TotalDevices:     e.totalDevices,
		Error:            e.errMsg,
	}
	if e.results != nil {
		snap.Results = make([]RuleResult, len(e.results))
		copy(snap.Results, e.results)
	}
	return snap
}

// ExecutionStore holds the active-execution set. The in-process
// implementation below suffices for a single instance; a multi-instance
// deployment can substitute a shared store behind the same interface.
type ExecutionStore interface {
	// Insert adds a new execution to the active set.
	Insert(exec *Execution)

	// Get returns the execution with the given ID, or nil.
	Get(id string) *Execution

	// List returns all executions in the store.
	List() []*Execution

	// Prune removes executions started more than maxAge ago, regardless
	// of status, and returns how many were removed.
	Prune(maxAge time.Duration) int
}

// MemoryExecutionStore is the in-process ExecutionStore: a map guarded
// by a lock used only for insert, prune, and list. Per-field execution
// mutation happens without this lock; each Execution guards itself.
type MemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*Execution
}

// NewMemoryExecutionStore creates an empty in-memory store.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]*Execution),
	}
}

// Insert adds a new execution to the active set.
func (s *MemoryExecutionStore) Insert(exec *Execution) {
	s.mu.Lock()
	s.executions[exec.ID()] = exec
	s.mu.Unlock()
}

// Get returns the execution with the given ID, or nil.
func (s *MemoryExecutionStore) Get(id string) *Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executions[id]
}

// List returns all executions in the store.
func (s *MemoryExecutionStore) List() []*Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execs := make([]*Execution, 0, len(s.executions))
	for _, e := range s.executions {
		execs = append(execs, e)
	}
	return execs
}

// Prune removes executions started more than maxAge ago.
func (s *MemoryExecutionStore) Prune(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.executions {
		if e.StartedAt().Before(cutoff) {
			delete(s.executions, id)
			removed++
		}
	}
	return removed
}
