package rules

import (
	"context"
	"time"
)

// Device is the engine's view of a device: a single opaque identifier
// plus the property snapshot conditions are evaluated against.
type Device struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	Online     bool           `json:"online"`
}

// ControlOutcome is the result of a device control call.
type ControlOutcome struct {
	Success bool           `json:"success"`
	State   map[string]any `json:"state,omitempty"`
	Err     error          `json:"-"`
}

// DeviceRegistry is the interface the engine needs from the device layer.
type DeviceRegistry interface {
	// Get retrieves a device by its identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	Get(ctx context.Context, id string) (*Device, error)

	// ListAll retrieves every known device, in a stable order.
	ListAll(ctx context.Context) ([]Device, error)

	// Control dispatches a command to a device. Failures are reported
	// in the outcome, not raised.
	Control(ctx context.Context, deviceID, action string, parameters map[string]any) ControlOutcome

	// SetStatus marks a device online or offline.
	// Returns true when the status change was applied.
	SetStatus(ctx context.Context, deviceID string, online bool) bool
}

// Reading is the most recent stored value for one sensor type on one device.
type Reading struct {
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Timestamp  time.Time `json:"timestamp"`
}

// SensorStore provides latest-reading lookups for sensor conditions.
type SensorStore interface {
	// LatestReading returns the most recent reading of sensorType for
	// the device, no older than window when window > 0. A nil reading
	// or any error means no usable reading exists; the evaluator
	// treats both as "condition not met", never as a failure.
	LatestReading(ctx context.Context, deviceID, sensorType string, window time.Duration) (*Reading, error)
}

// Notification is a message fanned out across delivery channels when a
// notification action fires.
type Notification struct {
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Recipients []string       `json:"recipients,omitempty"`
	Channels   []string       `json:"channels"`
	Priority   string         `json:"priority,omitempty"`
	Type       string         `json:"notification_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DeliveryResult is one channel's outcome for one notification.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// NotificationDispatcher delivers a notification once per requested
// channel. Each channel's outcome is independent; one channel failing
// never aborts the others.
type NotificationDispatcher interface {
	Send(ctx context.Context, n Notification) map[string]DeliveryResult
}

// EventBus broadcasts execution progress to subscribers, best effort.
// Publish errors are logged by the Publisher, never raised.
type EventBus interface {
	Publish(event Event) error
}

// RuleStore is the engine's read path over rule persistence, plus the
// single mutation the engine performs (schedule idempotence).
type RuleStore interface {
	// ListEnabled returns all enabled rules, in arbitrary order.
	// The Coordinator sorts the snapshot itself.
	ListEnabled(ctx context.Context) ([]Rule, error)

	// SetLastTriggered persists the fire-once marker for a schedule
	// rule, immediately after it fires.
	SetLastTriggered(ctx context.Context, ruleID string, ts time.Time) error
}

// Logger defines the logging interface used by the engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
