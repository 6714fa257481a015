package sensor

import (
	"context"
	"sync"
	"testing"

	"github.com/ewhitter/haven-core/internal/device"
)

// mockDeviceState records property and presence updates.
type mockDeviceState struct {
	mu       sync.Mutex
	props    map[string]device.Properties
	online   map[string]bool
	propsErr error
}

func newMockDeviceState() *mockDeviceState {
	return &mockDeviceState{
		props:  make(map[string]device.Properties),
		online: make(map[string]bool),
	}
}

func (m *mockDeviceState) SetDeviceProperties(_ context.Context, id string, props device.Properties) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.propsErr != nil {
		return m.propsErr
	}
	m.props[id] = props
	return nil
}

func (m *mockDeviceState) SetDeviceOnline(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[id] = online
	return nil
}

// mockTelemetry records sensor writes.
type mockTelemetry struct {
	mu     sync.Mutex
	writes map[string]float64 // deviceID/sensorType -> value
}

func newMockTelemetry() *mockTelemetry {
	return &mockTelemetry{writes: make(map[string]float64)}
}

func (m *mockTelemetry) WriteSensorReading(deviceID, sensorType string, value float64) {
	m.mu.Lock()
	m.writes[deviceID+"/"+sensorType] = value
	m.mu.Unlock()
}

func TestIngest_HandleState(t *testing.T) {
	devices := newMockDeviceState()
	telemetry := newMockTelemetry()
	in := NewIngest(devices, telemetry, 1)

	payload := []byte(`{"properties":{"temperature":21.5,"motion":true,"mode":"auto"}}`)
	if err := in.HandleState("haven/state/zigbee/sensor-hall", payload); err != nil {
		t.Fatalf("HandleState() error = %v", err)
	}

	if devices.props["sensor-hall"]["temperature"] != 21.5 {
		t.Errorf("properties = %v", devices.props["sensor-hall"])
	}
	if !devices.online["sensor-hall"] {
		t.Error("expected device marked online")
	}

	// Numbers and booleans mirror to telemetry; strings do not.
	if telemetry.writes["sensor-hall/temperature"] != 21.5 {
		t.Errorf("telemetry = %v", telemetry.writes)
	}
	if telemetry.writes["sensor-hall/motion"] != 1 {
		t.Errorf("motion write = %v, want 1", telemetry.writes["sensor-hall/motion"])
	}
	if _, ok := telemetry.writes["sensor-hall/mode"]; ok {
		t.Error("string property must not reach telemetry")
	}
}

func TestIngest_BarePropertyPayload(t *testing.T) {
	devices := newMockDeviceState()
	in := NewIngest(devices, nil, 1)

	if err := in.HandleState("haven/state/mqtt/plug-tv", []byte(`{"on":true,"power":12.4}`)); err != nil {
		t.Fatalf("HandleState() error = %v", err)
	}
	if devices.props["plug-tv"]["power"] != 12.4 {
		t.Errorf("properties = %v", devices.props["plug-tv"])
	}
}

func TestIngest_ExplicitOffline(t *testing.T) {
	devices := newMockDeviceState()
	in := NewIngest(devices, nil, 1)

	if err := in.HandleState("haven/state/zwave/lock-front", []byte(`{"online":false}`)); err != nil {
		t.Fatalf("HandleState() error = %v", err)
	}
	if online, ok := devices.online["lock-front"]; !ok || online {
		t.Errorf("online = %v/%v, want explicit false", online, ok)
	}
}

func TestIngest_UnknownDeviceIsNotAnError(t *testing.T) {
	devices := newMockDeviceState()
	devices.propsErr = device.ErrDeviceNotFound
	in := NewIngest(devices, newMockTelemetry(), 1)

	if err := in.HandleState("haven/state/zigbee/ghost", []byte(`{"on":true}`)); err != nil {
		t.Errorf("HandleState() error = %v, want nil for unregistered device", err)
	}
}

func TestIngest_MalformedInput(t *testing.T) {
	in := NewIngest(newMockDeviceState(), nil, 1)

	if err := in.HandleState("haven/state/zigbee", []byte(`{}`)); err == nil {
		t.Error("expected error for malformed topic")
	}
	if err := in.HandleState("haven/state/zigbee/d1", []byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

// mockBroadcaster records relayed state events.
type mockBroadcaster struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (m *mockBroadcaster) Broadcast(channel string, payload any) {
	m.mu.Lock()
	m.channels = append(m.channels, channel)
	m.payloads = append(m.payloads, payload)
	m.mu.Unlock()
}

func TestIngest_RelaysStateToBroadcaster(t *testing.T) {
	devices := newMockDeviceState()
	in := NewIngest(devices, nil, 1)
	bc := &mockBroadcaster{}
	in.SetBroadcaster(bc)

	payload := []byte(`{"properties":{"on":true},"online":true}`)
	if err := in.HandleState("haven/state/wifi/plug-1", payload); err != nil {
		t.Fatalf("HandleState() error = %v", err)
	}

	if len(bc.channels) != 1 || bc.channels[0] != StateChannel {
		t.Fatalf("channels = %v, want [%s]", bc.channels, StateChannel)
	}
	event, ok := bc.payloads[0].(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T", bc.payloads[0])
	}
	if event["device_id"] != "plug-1" {
		t.Errorf("device_id = %v", event["device_id"])
	}
	if event["online"] != true {
		t.Errorf("online = %v", event["online"])
	}
}
