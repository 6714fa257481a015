package device

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// mockMQTT records published messages for assertions.
type mockMQTT struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
	connected  bool
}

type publishedMsg struct {
	topic   string
	payload []byte
	qos     byte
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMsg{topic: topic, payload: payload, qos: qos})
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func testTopic(protocol, deviceID string) string {
	return "haven/command/" + protocol + "/" + deviceID
}

func setupController(t *testing.T, devices ...*Device) (*Controller, *mockMQTT) {
	t.Helper()

	registry, _ := setupRegistry(t, devices...)
	client := &mockMQTT{connected: true}
	return NewController(registry, client, testTopic, 1), client
}

func TestController_Control_PublishesCommand(t *testing.T) {
	ctrl, client := setupController(t, testDevice("d1"))

	result := ctrl.Control(context.Background(), "d1", "turn_on", map[string]any{"on": true, "level": 80})
	if !result.Success {
		t.Fatalf("Control() failed: %v", result.Err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.published))
	}
	msg := client.published[0]
	if msg.topic != "haven/command/mqtt/d1" {
		t.Errorf("topic = %q, want haven/command/mqtt/d1", msg.topic)
	}

	var decoded commandMessage
	if err := json.Unmarshal(msg.payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Action != "turn_on" {
		t.Errorf("action = %q, want turn_on", decoded.Action)
	}
}

func TestController_Control_OptimisticState(t *testing.T) {
	ctrl, _ := setupController(t, testDevice("d1"))

	result := ctrl.Control(context.Background(), "d1", "turn_on", map[string]any{"on": true})
	if !result.Success {
		t.Fatalf("Control() failed: %v", result.Err)
	}
	if result.State["on"] != true {
		t.Errorf("State[on] = %v, want true (optimistic update)", result.State["on"])
	}
}

func TestController_Control_DeviceNotFound(t *testing.T) {
	ctrl, client := setupController(t)

	result := ctrl.Control(context.Background(), "missing", "turn_on", nil)
	if result.Success {
		t.Error("Control() succeeded for missing device")
	}
	if !errors.Is(result.Err, ErrDeviceNotFound) {
		t.Errorf("Err = %v, want ErrDeviceNotFound", result.Err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.published) != 0 {
		t.Error("Control() published despite missing device")
	}
}

func TestController_Control_PublishFailure(t *testing.T) {
	ctrl, client := setupController(t, testDevice("d1"))
	client.publishErr = errors.New("broker gone")

	result := ctrl.Control(context.Background(), "d1", "turn_on", map[string]any{"on": true})
	if result.Success {
		t.Error("Control() succeeded despite publish failure")
	}
	if !errors.Is(result.Err, ErrControlFailed) {
		t.Errorf("Err = %v, want ErrControlFailed", result.Err)
	}
}

func TestController_SetStatus(t *testing.T) {
	ctrl, _ := setupController(t, testDevice("d1"))

	if ok := ctrl.SetStatus(context.Background(), "d1", false); !ok {
		t.Error("SetStatus() = false, want true")
	}
	if ok := ctrl.SetStatus(context.Background(), "missing", false); ok {
		t.Error("SetStatus(missing) = true, want false")
	}
}
