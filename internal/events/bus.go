package events

import (
	"encoding/json"
	"fmt"

	"github.com/ewhitter/haven-core/internal/infrastructure/mqtt"
	"github.com/ewhitter/haven-core/internal/rules"
)

// WSChannel is the WebSocket subscription channel execution events are
// broadcast on.
const WSChannel = "executions"

// Publisher is the MQTT surface the bus publishes through.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Broadcaster pushes events to WebSocket subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Bus fans rule engine progress events out to the MQTT executions topic
// and the WebSocket hub. Either sink may be nil; delivery to the
// remaining one still happens.
//
// Bus implements the engine's EventBus interface. Errors are returned
// for the Publisher to log; they never affect a run.
type Bus struct {
	mqtt Publisher
	ws   Broadcaster
	qos  byte
}

// NewBus creates the execution event bus.
func NewBus(mqttClient Publisher, ws Broadcaster, qos byte) *Bus {
	return &Bus{
		mqtt: mqttClient,
		ws:   ws,
		qos:  qos,
	}
}

// Publish delivers one event to every configured sink. The WebSocket
// broadcast always runs, even when the MQTT publish fails.
func (b *Bus) Publish(event rules.Event) error {
	var mqttErr error
	if b.mqtt != nil && b.mqtt.IsConnected() {
		payload, err := json.Marshal(event)
		if err != nil {
			mqttErr = fmt.Errorf("encoding event: %w", err)
		} else if err := b.mqtt.Publish(mqtt.Topics{}.ExecutionEvents(), payload, b.qos, false); err != nil {
			mqttErr = fmt.Errorf("publishing event: %w", err)
		}
	}

	if b.ws != nil {
		b.ws.Broadcast(WSChannel, event)
	}

	return mqttErr
}
