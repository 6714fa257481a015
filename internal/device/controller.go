package device

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MQTTClient is the transport interface used by the Controller.
// The concrete implementation lives in internal/infrastructure/mqtt.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// TopicBuilder maps a device to its protocol command topic.
type TopicBuilder func(protocol, deviceID string) string

// ControlResult is the outcome of a single device command.
type ControlResult struct {
	Success bool       `json:"success"`
	State   Properties `json:"state,omitempty"`
	Err     error      `json:"-"`
}

// commandMessage is the wire format published to the command topic.
type commandMessage struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Controller dispatches commands to devices over MQTT and applies the
// expected state to the registry.
//
// Commands are fire-and-forget at the transport level; the protocol
// bridge acknowledges completion on the ack topic. The registry is
// updated optimistically so rule conditions see the commanded state,
// and corrected by the state topic if the bridge reports otherwise.
type Controller struct {
	registry *Registry
	mqtt     MQTTClient
	topic    TopicBuilder
	qos      byte
	logger   Logger
}

// NewController creates a device controller.
func NewController(registry *Registry, client MQTTClient, topic TopicBuilder, qos byte) *Controller {
	return &Controller{
		registry: registry,
		mqtt:     client,
		topic:    topic,
		qos:      qos,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Control sends a command to a device and returns the outcome.
//
// The returned result carries the device's property snapshot after the
// optimistic update. Delivery failures are reported in the result, not
// raised, so callers can record them alongside other action outcomes.
func (c *Controller) Control(ctx context.Context, deviceID, action string, parameters map[string]any) ControlResult {
	dev, err := c.registry.GetDevice(ctx, deviceID)
	if err != nil {
		return ControlResult{Success: false, Err: err}
	}

	msg := commandMessage{
		Action:     action,
		Parameters: parameters,
		Timestamp:  time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return ControlResult{Success: false, Err: fmt.Errorf("marshalling command: %w", err)}
	}

	topic := c.topic(string(dev.Protocol), dev.ID)
	if err := c.mqtt.Publish(topic, payload, c.qos, false); err != nil {
		c.logger.Warn("command publish failed", "device_id", deviceID, "action", action, "error", err)
		return ControlResult{Success: false, Err: fmt.Errorf("%w: %v", ErrControlFailed, err)}
	}

	// Optimistic state update: apply command parameters so conditions
	// evaluated later in the same run see the commanded values.
	if len(parameters) > 0 {
		if err := c.registry.SetDeviceProperties(ctx, deviceID, parameters); err != nil {
			c.logger.Warn("optimistic property update failed", "device_id", deviceID, "error", err)
		}
	}

	updated, err := c.registry.GetDevice(ctx, deviceID)
	if err != nil {
		// The command was delivered; report success with no snapshot.
		return ControlResult{Success: true}
	}

	c.logger.Debug("command dispatched", "device_id", deviceID, "action", action)
	return ControlResult{Success: true, State: updated.Properties}
}

// SetStatus marks a device online or offline.
// Returns true when the status was persisted.
func (c *Controller) SetStatus(ctx context.Context, deviceID string, online bool) bool {
	if err := c.registry.SetDeviceOnline(ctx, deviceID, online); err != nil {
		c.logger.Warn("status update failed", "device_id", deviceID, "online", online, "error", err)
		return false
	}
	return true
}
