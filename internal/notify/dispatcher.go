package notify

import (
	"context"
	"fmt"

	"github.com/ewhitter/haven-core/internal/rules"
)

// Channel is one delivery mechanism for notifications.
type Channel interface {
	// Name is the identifier rules reference in their action channel
	// lists ("mqtt", "webhook", "console").
	Name() string

	// Deliver sends one notification. A returned error marks the
	// channel's result failed; it never affects other channels.
	Deliver(ctx context.Context, n rules.Notification) error
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Dispatcher fans a notification out across its requested channels,
// invoking each channel exactly once and collecting independent
// per-channel results. It implements the engine's
// NotificationDispatcher interface.
type Dispatcher struct {
	channels map[string]Channel
	order    []string
	logger   Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel, len(channels)),
		logger:   noopLogger{},
	}
	for _, ch := range channels {
		if _, exists := d.channels[ch.Name()]; exists {
			continue
		}
		d.channels[ch.Name()] = ch
		d.order = append(d.order, ch.Name())
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// Send delivers the notification on every requested channel. A rule
// that names no channels broadcasts on all registered ones. Unknown
// channel names come back as failed results rather than being dropped
// silently.
func (d *Dispatcher) Send(ctx context.Context, n rules.Notification) map[string]rules.DeliveryResult {
	targets := n.Channels
	if len(targets) == 0 {
		targets = d.order
	}

	results := make(map[string]rules.DeliveryResult, len(targets))
	for _, name := range targets {
		if _, done := results[name]; done {
			continue
		}

		ch, ok := d.channels[name]
		if !ok {
			results[name] = rules.DeliveryResult{
				Success: false,
				Detail:  fmt.Sprintf("unknown channel %q", name),
			}
			continue
		}

		if err := ch.Deliver(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", name,
				"title", n.Title,
				"error", err,
			)
			results[name] = rules.DeliveryResult{Success: false, Detail: err.Error()}
			continue
		}
		results[name] = rules.DeliveryResult{Success: true, Detail: "delivered"}
	}

	return results
}
