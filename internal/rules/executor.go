package rules

import (
	"context"
	"fmt"
	"time"
)

// Executor runs a rule's ordered action list against a single device.
//
// Actions execute strictly in list order, synchronously. One action's
// failure is recorded but does not stop subsequent actions in the same
// batch (partial-failure semantics).
type Executor struct {
	devices  DeviceRegistry
	notifier NotificationDispatcher
	logger   Logger
}

// NewExecutor creates an action executor.
func NewExecutor(devices DeviceRegistry, notifier NotificationDispatcher) *Executor {
	return &Executor{
		devices:  devices,
		notifier: notifier,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the executor.
func (ex *Executor) SetLogger(logger Logger) {
	ex.logger = logger
}

// Execute fires every action of the rule against the device and
// returns the per-action outcomes.
//
// Returns ErrNoActions when the rule's action list is empty: an empty
// list is a configuration error surfaced to the caller, not silent
// success.
func (ex *Executor) Execute(ctx context.Context, rule *Rule, device *Device) (BatchResult, error) {
	if len(rule.Actions) == 0 {
		return BatchResult{}, ErrNoActions
	}

	batch := BatchResult{
		Success: true,
		Actions: make([]ActionResult, 0, len(rule.Actions)),
	}

	for i := range rule.Actions {
		result := ex.executeAction(ctx, rule, device, &rule.Actions[i])
		if !result.Success {
			batch.Success = false
		}
		batch.Actions = append(batch.Actions, result)
	}

	return batch, nil
}

// executeAction runs one action and returns its outcome.
// Failures land in the result; nothing is raised.
func (ex *Executor) executeAction(ctx context.Context, rule *Rule, device *Device, action *Action) ActionResult {
	switch action.Type {
	case ActionControlDevice:
		return ex.controlDevice(ctx, rule, device, action)
	case ActionSetStatus:
		return ex.setStatus(ctx, rule, device, action)
	case ActionNotification:
		return ex.notify(ctx, rule, device, action)
	default:
		return ActionResult{
			Type:    action.Type,
			Success: false,
			Detail:  fmt.Sprintf("unknown action type %q", action.Type),
		}
	}
}

// controlDevice dispatches a device command and records the outcome
// verbatim.
func (ex *Executor) controlDevice(ctx context.Context, rule *Rule, device *Device, action *Action) ActionResult {
	outcome := ex.devices.Control(ctx, device.ID, action.Action, action.Parameters)

	result := ActionResult{
		Type:    ActionControlDevice,
		Success: outcome.Success,
	}
	if outcome.Err != nil {
		result.Detail = outcome.Err.Error()
		ex.logger.Warn("control action failed",
			"rule_id", rule.ID,
			"device_id", device.ID,
			"action", action.Action,
			"error", outcome.Err,
		)
		return result
	}
	result.Detail = fmt.Sprintf("command %q dispatched", action.Action)
	return result
}

// setStatus flips a device's online flag.
func (ex *Executor) setStatus(ctx context.Context, rule *Rule, device *Device, action *Action) ActionResult {
	if action.IsOnline == nil {
		return ActionResult{
			Type:    ActionSetStatus,
			Success: false,
			Detail:  "set_status action missing is_online",
		}
	}

	ok := ex.devices.SetStatus(ctx, device.ID, *action.IsOnline)
	result := ActionResult{
		Type:    ActionSetStatus,
		Success: ok,
		Detail:  fmt.Sprintf("online=%t", *action.IsOnline),
	}
	if !ok {
		result.Detail = "status update rejected"
		ex.logger.Warn("set_status action failed",
			"rule_id", rule.ID,
			"device_id", device.ID,
		)
	}
	return result
}

// notify fans a notification out across the requested channels.
// Each channel's outcome is recorded independently; a channel failure
// never aborts the others.
func (ex *Executor) notify(ctx context.Context, rule *Rule, device *Device, action *Action) ActionResult {
	n := Notification{
		Title:      action.Title,
		Content:    action.Content,
		Recipients: action.Recipients,
		Channels:   action.Channels,
		Priority:   action.Priority,
		Type:       action.NotificationType,
		Metadata: map[string]any{
			"rule_id":      rule.ID,
			"rule_name":    rule.Name,
			"device_id":    device.ID,
			"device_name":  device.Name,
			"triggered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}

	channels := ex.notifier.Send(ctx, n)

	result := ActionResult{
		Type:     ActionNotification,
		Success:  true,
		Channels: channels,
	}
	failed := 0
	for _, outcome := range channels {
		if !outcome.Success {
			failed++
		}
	}
	switch {
	case len(channels) == 0:
		// Zero deliveries means no channel took the notification,
		// which is a dispatcher misconfiguration, not a success.
		result.Success = false
		result.Detail = "no channels delivered"
	case failed > 0:
		result.Success = false
		result.Detail = fmt.Sprintf("%d of %d channels failed", failed, len(channels))
	default:
		result.Detail = fmt.Sprintf("delivered on %d channels", len(channels))
	}
	return result
}
