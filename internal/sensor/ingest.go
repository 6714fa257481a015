package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ewhitter/haven-core/internal/device"
	"github.com/ewhitter/haven-core/internal/infrastructure/mqtt"
)

// DeviceState is what the ingest pipeline needs from the device layer.
type DeviceState interface {
	SetDeviceProperties(ctx context.Context, id string, props device.Properties) error
	SetDeviceOnline(ctx context.Context, id string, online bool) error
}

// TelemetryWriter receives numeric readings extracted from state
// reports. Writes are asynchronous and never block message handling.
type TelemetryWriter interface {
	WriteSensorReading(deviceID, sensorType string, value float64)
}

// Subscriber is the MQTT surface the ingest pipeline subscribes through.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Broadcaster relays device state changes to connected UI clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// StateChannel is the broadcast channel for device state relays.
const StateChannel = "device.state"

// Logger defines the logging interface used by the ingest pipeline.
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

// stateMessage is the wire format bridges publish on state topics.
// Bare property maps (no envelope) are accepted too.
type stateMessage struct {
	Properties map[string]any `json:"properties"`
	Online     *bool          `json:"online,omitempty"`
}

// Ingest consumes device state reports from MQTT, folds them into the
// device registry's property snapshots, and mirrors numeric values into
// the telemetry store so sensor conditions have data to read.
type Ingest struct {
	devices     DeviceState
	telemetry   TelemetryWriter
	broadcaster Broadcaster
	qos         byte
	logger      Logger
}

// NewIngest creates the telemetry ingest pipeline. telemetry may be nil
// when no time-series store is configured.
func NewIngest(devices DeviceState, telemetry TelemetryWriter, qos byte) *Ingest {
	return &Ingest{
		devices:   devices,
		telemetry: telemetry,
		qos:       qos,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the ingest pipeline.
func (in *Ingest) SetLogger(logger Logger) {
	if logger != nil {
		in.logger = logger
	}
}

// SetBroadcaster enables live state relay to UI clients on StateChannel.
func (in *Ingest) SetBroadcaster(b Broadcaster) {
	in.broadcaster = b
}

// Start subscribes to all device state topics.
func (in *Ingest) Start(sub Subscriber) error {
	topic := mqtt.Topics{}.AllStates()
	if err := sub.Subscribe(topic, in.qos, in.HandleState); err != nil {
		return fmt.Errorf("subscribing to state topics: %w", err)
	}
	in.logger.Info("telemetry ingest started", "topic", topic)
	return nil
}

// HandleState processes one state report. The topic carries the device
// identity (haven/state/{protocol}/{device_id}); the payload carries
// the property values.
func (in *Ingest) HandleState(topic string, payload []byte) error {
	deviceID, err := deviceIDFromTopic(topic)
	if err != nil {
		return err
	}

	msg, err := parseStateMessage(payload)
	if err != nil {
		return fmt.Errorf("parsing state for %s: %w", deviceID, err)
	}

	ctx := context.Background()

	if len(msg.Properties) > 0 {
		if err := in.devices.SetDeviceProperties(ctx, deviceID, msg.Properties); err != nil {
			// Chatter from devices not yet registered is routine.
			in.logger.Debug("state update for unknown device", "device_id", deviceID)
			return nil
		}
	}

	// A state report implies liveness unless it says otherwise.
	online := true
	if msg.Online != nil {
		online = *msg.Online
	}
	if err := in.devices.SetDeviceOnline(ctx, deviceID, online); err != nil {
		in.logger.Warn("presence update failed", "device_id", deviceID, "error", err)
	}

	if in.telemetry != nil {
		for key, value := range msg.Properties {
			if f, ok := numericValue(value); ok {
				in.telemetry.WriteSensorReading(deviceID, key, f)
			}
		}
	}

	if in.broadcaster != nil {
		in.broadcaster.Broadcast(StateChannel, map[string]any{
			"device_id":  deviceID,
			"properties": msg.Properties,
			"online":     online,
		})
	}

	return nil
}

// deviceIDFromTopic extracts the device ID from a state topic.
func deviceIDFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[3] == "" {
		return "", fmt.Errorf("malformed state topic %q", topic)
	}
	return parts[3], nil
}

// parseStateMessage decodes an enveloped or bare property payload.
func parseStateMessage(payload []byte) (*stateMessage, error) {
	var msg stateMessage
	if err := json.Unmarshal(payload, &msg); err == nil && (msg.Properties != nil || msg.Online != nil) {
		return &msg, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, err
	}
	return &stateMessage{Properties: flat}, nil
}

// numericValue extracts a telemetry value. Booleans are recorded as 0/1
// so presence-style sensors are queryable alongside analog ones.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
