package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultRetention is how long executions stay in the active set
	// after starting, regardless of status.
	DefaultRetention = 10 * time.Minute

	// progressEvery is the cadence of in-progress events: every Nth
	// fired rule and every Nth processed device.
	progressEvery = 5
)

// errCancelled signals cooperative cancellation up the run call chain.
var errCancelled = errors.New("rules: execution cancelled")

// Coordinator is the top-level orchestrator: it owns execution records,
// iterates rules and devices in priority order, observes cancellation
// at safe checkpoints, and reports completion through the Publisher.
//
// Each run is one goroutine owned exclusively by the Coordinator; rule
// evaluation is deliberately not fanned out across devices, so two
// rules can never race to control the same device within a run.
//
// Nothing escapes the Coordinator boundary: every failure lands in the
// execution record and is observed via ActiveExecutions or the event
// feed.
type Coordinator struct {
	rules     RuleStore
	devices   DeviceRegistry
	evaluator *Evaluator
	executor  *Executor
	publisher *Publisher
	store     ExecutionStore
	logger    Logger
	retention time.Duration

	// baseCtx bounds background runs to the process lifecycle. Run
	// goroutines outlive the caller's request context by design.
	baseCtx context.Context
}

// NewCoordinator creates the execution coordinator and its evaluator,
// executor, and publisher. The context bounds all background runs and
// should span the process lifetime.
func NewCoordinator(ctx context.Context, ruleStore RuleStore, devices DeviceRegistry, sensors SensorStore, notifier NotificationDispatcher, bus EventBus) *Coordinator {
	return &Coordinator{
		rules:     ruleStore,
		devices:   devices,
		evaluator: NewEvaluator(sensors),
		executor:  NewExecutor(devices, notifier),
		publisher: NewPublisher(bus),
		store:     NewMemoryExecutionStore(),
		logger:    noopLogger{},
		retention: DefaultRetention,
		baseCtx:   ctx,
	}
}

// SetLogger sets the logger for the coordinator and its components.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
	c.executor.SetLogger(logger)
	c.publisher.SetLogger(logger)
}

// SetRetention overrides the active-set retention window.
func (c *Coordinator) SetRetention(d time.Duration) {
	if d > 0 {
		c.retention = d
	}
}

// SetExecutionStore substitutes the execution store. Useful for a
// shared store in multi-instance deployments.
func (c *Coordinator) SetExecutionStore(store ExecutionStore) {
	c.store = store
}

// StartDeviceRun applies all enabled rules to a single device in the
// background and returns the execution ID immediately. The device is
// resolved up front so callers get ErrDeviceNotFound synchronously;
// progress after that is observed via the event feed or
// ActiveExecutions, not the return value.
func (c *Coordinator) StartDeviceRun(deviceID string) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: empty device id", ErrDeviceNotFound)
	}

	device, err := c.devices.Get(c.baseCtx, deviceID)
	if err != nil {
		return "", fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	exec := newExecution(GenerateID(), ScopeSingleDevice, deviceID)
	c.store.Insert(exec)

	c.logger.Info("device run started", "execution_id", exec.ID(), "device_id", deviceID)
	go c.runDevice(exec, device)

	return exec.ID(), nil
}

// StartAllRun applies all enabled rules to every device in the
// background and returns the execution ID immediately.
func (c *Coordinator) StartAllRun() string {
	exec := newExecution(GenerateID(), ScopeAllDevices, "")
	c.store.Insert(exec)

	c.logger.Info("all-devices run started", "execution_id", exec.ID())
	go c.runAll(exec)

	return exec.ID()
}

// Cancel requests cooperative cancellation of the named execution, or
// of every running execution when executionID is empty. The request
// takes effect at the next checkpoint (top of a rule or device loop);
// an in-flight action batch always completes.
func (c *Coordinator) Cancel(executionID string) error {
	if executionID == "" {
		for _, exec := range c.store.List() {
			exec.RequestCancel()
		}
		return nil
	}

	exec := c.store.Get(executionID)
	if exec == nil {
		return ErrExecutionNotFound
	}
	exec.RequestCancel()
	return nil
}

// ActiveSummary groups the active-execution set by status.
type ActiveSummary struct {
	Total      int                     `json:"total"`
	ByStatus   map[ExecutionStatus]int `json:"by_status"`
	Executions []ExecutionSnapshot     `json:"executions"`
}

// ActiveExecutions prunes stale entries, then returns the remaining
// executions grouped by status. An entry started more than the
// retention window ago is never returned, whatever its status.
func (c *Coordinator) ActiveExecutions() ActiveSummary {
	c.store.Prune(c.retention)

	execs := c.store.List()
	summary := ActiveSummary{
		Total:      len(execs),
		ByStatus:   make(map[ExecutionStatus]int),
		Executions: make([]ExecutionSnapshot, 0, len(execs)),
	}
	for _, exec := range execs {
		snap := exec.Snapshot()
		summary.ByStatus[snap.Status]++
		summary.Executions = append(summary.Executions, snap)
	}

	// Newest first for stable, useful listings.
	sort.Slice(summary.Executions, func(i, j int) bool {
		return summary.Executions[i].StartedAt.After(summary.Executions[j].StartedAt)
	})

	return summary
}

// PruneExpired removes stale executions from the active set and returns
// how many were removed. Called periodically by the scheduler.
func (c *Coordinator) PruneExpired() int {
	return c.store.Prune(c.retention)
}

// runDevice is the background task for a single-device run. The device
// was already resolved by StartDeviceRun.
func (c *Coordinator) runDevice(exec *Execution, device *Device) {
	ctx := c.baseCtx
	c.publisher.Started(exec)

	snapshot, err := c.snapshotRules(ctx)
	if err != nil {
		c.finish(exec, StatusFailed, fmt.Sprintf("listing rules: %v", err))
		return
	}

	exec.setTotalDevices(1)

	if err := c.applyRules(ctx, exec, snapshot, device); err != nil {
		if errors.Is(err, errCancelled) {
			c.finish(exec, StatusCancelled, "")
			return
		}
		c.finish(exec, StatusFailed, err.Error())
		return
	}

	exec.incrementDevicesProcessed()
	c.finish(exec, StatusCompleted, "")
}

// runAll is the background task for an all-devices sweep.
func (c *Coordinator) runAll(exec *Execution) {
	ctx := c.baseCtx
	c.publisher.Started(exec)

	devices, err := c.devices.ListAll(ctx)
	if err != nil {
		c.finish(exec, StatusFailed, fmt.Sprintf("listing devices: %v", err))
		return
	}
	exec.setTotalDevices(len(devices))

	snapshot, err := c.snapshotRules(ctx)
	if err != nil {
		c.finish(exec, StatusFailed, fmt.Sprintf("listing rules: %v", err))
		return
	}

	for i := range devices {
		// Checkpoint: cancellation takes effect between devices.
		if exec.CancelRequested() {
			c.finish(exec, StatusCancelled, "")
			return
		}

		if err := c.applyRules(ctx, exec, snapshot, &devices[i]); err != nil {
			if errors.Is(err, errCancelled) {
				c.finish(exec, StatusCancelled, "")
				return
			}
			// Infrastructure failures abort the whole sweep; anything
			// per-device was already absorbed into rule results.
			c.finish(exec, StatusFailed, err.Error())
			return
		}

		processed := exec.incrementDevicesProcessed()
		if processed%progressEvery == 0 || processed == len(devices) {
			c.publisher.Progress(exec)
		}
	}

	c.finish(exec, StatusCompleted, "")
}

// applyRules applies the rule snapshot to one device, in order.
//
// The snapshot is shared across devices within one run: after a
// schedule rule fires, its in-memory LastTriggered is advanced so the
// same run cannot fire it again on a later device.
func (c *Coordinator) applyRules(ctx context.Context, exec *Execution, snapshot []Rule, device *Device) error {
	for i := range snapshot {
		// Checkpoint: cancellation takes effect between rules.
		if exec.CancelRequested() {
			return errCancelled
		}

		rule := &snapshot[i]

		applies, reason := c.evaluator.Applies(ctx, rule, device)
		if !applies {
			exec.appendResult(RuleResult{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				DeviceID: device.ID,
				Applied:  false,
				Reason:   reason,
			})
			continue
		}

		batch, err := c.executor.Execute(ctx, rule, device)
		if err != nil {
			// Configuration error: skip the rule, keep the run going.
			c.logger.Warn("rule skipped",
				"rule_id", rule.ID,
				"device_id", device.ID,
				"reason", err,
			)
			exec.appendResult(RuleResult{
				RuleID:   rule.ID,
				RuleName: rule.Name,
				DeviceID: device.ID,
				Applied:  false,
				Reason:   err.Error(),
			})
			continue
		}

		exec.appendResult(RuleResult{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			DeviceID: device.ID,
			Applied:  true,
			Reason:   reason,
			Actions:  batch.Actions,
		})
		fired := exec.incrementRulesApplied()

		if rule.Type == RuleTypeSchedule && rule.Schedule != nil {
			// Persist the fire-once marker before moving on. Losing it
			// risks double firing, so a store failure is fatal to the
			// execution.
			if err := c.rules.SetLastTriggered(ctx, rule.ID, *rule.Schedule); err != nil {
				return fmt.Errorf("persisting last_triggered for rule %s: %w", rule.ID, err)
			}
			ts := *rule.Schedule
			rule.LastTriggered = &ts
		}

		if fired%progressEvery == 0 {
			c.publisher.Progress(exec)
		}
	}

	return nil
}

// snapshotRules captures the enabled rule list at run start, ordered by
// priority descending with ties broken by rule ID ascending. Rule Store
// updates submitted mid-run are not reflected (snapshot isolation).
func (c *Coordinator) snapshotRules(ctx context.Context) ([]Rule, error) {
	enabled, err := c.rules.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority > enabled[j].Priority
		}
		return enabled[i].ID < enabled[j].ID
	})
	return enabled, nil
}

// finish moves the execution to a terminal state, emits the terminal
// event, and logs the outcome. Safe to call more than once; only the
// first transition wins.
func (c *Coordinator) finish(exec *Execution, status ExecutionStatus, errMsg string) {
	if !exec.finish(status, errMsg) {
		return
	}

	c.publisher.Finished(exec)

	snap := exec.Snapshot()
	switch status {
	case StatusFailed:
		c.logger.Error("execution failed",
			"execution_id", snap.ID,
			"scope", snap.Scope,
			"error", errMsg,
		)
	case StatusCancelled:
		c.logger.Info("execution cancelled",
			"execution_id", snap.ID,
			"devices_processed", snap.DevicesProcessed,
			"rules_applied", snap.RulesApplied,
		)
	default:
		c.logger.Info("execution complete",
			"execution_id", snap.ID,
			"scope", snap.Scope,
			"devices_processed", snap.DevicesProcessed,
			"rules_applied", snap.RulesApplied,
		)
	}
}
