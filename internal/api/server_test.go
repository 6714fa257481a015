package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ewhitter/haven-core/internal/device"
	"github.com/ewhitter/haven-core/internal/infrastructure/config"
	"github.com/ewhitter/haven-core/internal/infrastructure/database"
	"github.com/ewhitter/haven-core/internal/infrastructure/logging"
	"github.com/ewhitter/haven-core/internal/infrastructure/mqtt"
	"github.com/ewhitter/haven-core/internal/rules"
	_ "github.com/ewhitter/haven-core/migrations"
)

// stubMQTT records published command messages.
type stubMQTT struct {
	mu        sync.Mutex
	published []string // topics
}

func (m *stubMQTT) Publish(topic string, _ []byte, _ byte, _ bool) error {
	m.mu.Lock()
	m.published = append(m.published, topic)
	m.mu.Unlock()
	return nil
}

func (m *stubMQTT) IsConnected() bool { return true }

func (m *stubMQTT) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

// stubSensors never has readings; sensor conditions evaluate to not-met.
type stubSensors struct{}

func (stubSensors) LatestReading(context.Context, string, string, time.Duration) (*rules.Reading, error) {
	return nil, nil
}

// stubNotifier records sent notifications.
type stubNotifier struct {
	mu   sync.Mutex
	sent []rules.Notification
}

func (n *stubNotifier) Send(_ context.Context, notification rules.Notification) map[string]rules.DeliveryResult {
	n.mu.Lock()
	n.sent = append(n.sent, notification)
	n.mu.Unlock()
	return map[string]rules.DeliveryResult{"console": {Success: true, Detail: "delivered"}}
}

// stubBus records execution events.
type stubBus struct {
	mu     sync.Mutex
	events []rules.Event
}

func (b *stubBus) Publish(event rules.Event) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
	return nil
}

// testEnv bundles the server, its router, and the backing stores.
type testEnv struct {
	server  *Server
	router  http.Handler
	devices *device.Registry
	rules   *rules.Registry
	engine  *rules.Coordinator
	mqtt    *stubMQTT
}

// setupServer builds a server over a migrated temp database with stub
// transport and engine collaborators.
func setupServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating database: %v", err)
	}

	deviceReg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	ruleReg := rules.NewRegistry(rules.NewSQLiteRepository(db.DB))

	broker := &stubMQTT{}
	controller := device.NewController(deviceReg, broker, mqtt.Topics{}.Command, 1)
	adapter := device.NewEngineAdapter(deviceReg, controller)

	engine := rules.NewCoordinator(context.Background(), ruleReg, adapter, stubSensors{}, &stubNotifier{}, &stubBus{})

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	server, err := New(Deps{
		WS:         config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:     logger,
		Devices:    deviceReg,
		Controller: controller,
		Rules:      ruleReg,
		Engine:     engine,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	server.hub = NewHub(server.wsCfg, logger)

	return &testEnv{
		server:  server,
		router:  server.buildRouter(),
		devices: deviceReg,
		rules:   ruleReg,
		engine:  engine,
		mqtt:    broker,
	}
}

// seedDevice registers a device directly through the registry.
func (env *testEnv) seedDevice(t *testing.T, id string) {
	t.Helper()
	dev := &device.Device{
		ID:       id,
		Name:     "Device " + id,
		Slug:     "device-" + id,
		Type:     device.DeviceTypeSmartPlug,
		Protocol: device.ProtocolZigbee,
		Properties: device.Properties{
			"on": false,
		},
		Online: true,
	}
	if err := env.devices.CreateDevice(context.Background(), dev); err != nil {
		t.Fatalf("seeding device %s: %v", id, err)
	}
}

// do issues a request against the router and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

// decode unmarshals a recorded JSON response.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

// waitForNoRunning polls the active-executions endpoint until nothing is
// running or the deadline passes.
func (env *testEnv) waitForNoRunning(t *testing.T) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := env.do(t, http.MethodGet, "/api/v1/executions/active", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("active executions status = %d", rec.Code)
		}
		var summary map[string]any
		decode(t, rec, &summary)
		byStatus, _ := summary["by_status"].(map[string]any)
		if byStatus["running"] == nil {
			return summary
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for executions to settle")
	return nil
}

func testRuleBody(name string) map[string]any {
	return map[string]any{
		"name":      name,
		"rule_type": "condition",
		"enabled":   true,
		"priority":  60,
		"conditions": []map[string]any{
			{"type": "device_property", "property": "on", "operator": "equals", "value": false},
		},
		"actions": []map[string]any{
			{"type": "control_device", "action": "turn_on", "parameters": map[string]any{"on": true}},
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	decode(t, rec, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRuleLifecycle(t *testing.T) {
	env := setupServer(t)

	// Create
	rec := env.do(t, http.MethodPost, "/api/v1/rules", testRuleBody("Night mode"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created rules.Rule
	decode(t, rec, &created)
	if created.ID == "" {
		t.Fatal("expected generated rule ID")
	}

	// Get
	rec = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// List
	rec = env.do(t, http.MethodGet, "/api/v1/rules", nil)
	var list map[string]any
	decode(t, rec, &list)
	if list["count"] != float64(1) {
		t.Errorf("count = %v, want 1", list["count"])
	}

	// Patch
	rec = env.do(t, http.MethodPatch, "/api/v1/rules/"+created.ID, map[string]any{"priority": 80})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	var updated rules.Rule
	decode(t, rec, &updated)
	if updated.Priority != 80 {
		t.Errorf("priority = %d, want 80", updated.Priority)
	}

	// Disable, then the enabled filter excludes it
	rec = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/disable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/rules?enabled=true", nil)
	decode(t, rec, &list)
	if list["count"] != float64(0) {
		t.Errorf("enabled count = %v, want 0", list["count"])
	}

	// Enable again
	rec = env.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/enable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable status = %d", rec.Code)
	}

	// Delete
	rec = env.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	env := setupServer(t)

	body := testRuleBody("No actions")
	body["actions"] = []map[string]any{}

	rec := env.do(t, http.MethodPost, "/api/v1/rules", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}

	var apiErr Error
	decode(t, rec, &apiErr)
	if apiErr.Code != ErrCodeBadRequest {
		t.Errorf("code = %s", apiErr.Code)
	}
}

func TestCreateRuleInvalidJSON(t *testing.T) {
	env := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRunDevice(t *testing.T) {
	env := setupServer(t)
	env.seedDevice(t, "plug-1")

	rec := env.do(t, http.MethodPost, "/api/v1/rules", testRuleBody("Turn things on"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/devices/plug-1/run", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decode(t, rec, &resp)
	if resp["execution_id"] == "" {
		t.Fatal("expected execution_id in response")
	}

	summary := env.waitForNoRunning(t)
	byStatus, _ := summary["by_status"].(map[string]any)
	if byStatus["completed"] != float64(1) {
		t.Fatalf("by_status = %v, want one completed", byStatus)
	}

	// The condition matched (on=false), so the rule fired a command.
	topics := env.mqtt.topics()
	if len(topics) != 1 || topics[0] != "haven/command/zigbee/plug-1" {
		t.Errorf("published topics = %v", topics)
	}
}

func TestRunDeviceUnknown(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/devices/ghost/run", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestRunAll(t *testing.T) {
	env := setupServer(t)
	env.seedDevice(t, "plug-1")
	env.seedDevice(t, "plug-2")

	rec := env.do(t, http.MethodPost, "/api/v1/rules", testRuleBody("Fleet sweep"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/rules/run", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("run status = %d", rec.Code)
	}

	summary := env.waitForNoRunning(t)
	execs, _ := summary["executions"].([]any)
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	exec, _ := execs[0].(map[string]any)
	if exec["devices_processed"] != float64(2) {
		t.Errorf("devices_processed = %v, want 2", exec["devices_processed"])
	}
}

func TestCancelUnknownExecution(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/executions/cancel", CancelRequest{ExecutionID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelAllWithEmptyBody(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/executions/cancel", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestControlDevice(t *testing.T) {
	env := setupServer(t)
	env.seedDevice(t, "plug-1")

	rec := env.do(t, http.MethodPost, "/api/v1/devices/plug-1/control", DeviceCommand{
		Action:     "turn_on",
		Parameters: map[string]any{"on": true},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	decode(t, rec, &resp)
	state, _ := resp["state"].(map[string]any)
	if state["on"] != true {
		t.Errorf("optimistic state = %v", state)
	}

	topics := env.mqtt.topics()
	if len(topics) != 1 || topics[0] != "haven/command/zigbee/plug-1" {
		t.Errorf("published topics = %v", topics)
	}
}

func TestControlDeviceErrors(t *testing.T) {
	env := setupServer(t)
	env.seedDevice(t, "plug-1")

	rec := env.do(t, http.MethodPost, "/api/v1/devices/ghost/control", DeviceCommand{Action: "turn_on"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/devices/plug-1/control", DeviceCommand{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing action status = %d, want 400", rec.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	env := setupServer(t)

	body := map[string]any{
		"id":       "th-1",
		"name":     "Hall Thermostat",
		"slug":     "hall-thermostat",
		"type":     "thermostat",
		"protocol": "zigbee",
	}

	rec := env.do(t, http.MethodPost, "/api/v1/devices", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicate IDs conflict
	rec = env.do(t, http.MethodPost, "/api/v1/devices", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/devices/th-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/devices?protocol=zigbee", nil)
	var list map[string]any
	decode(t, rec, &list)
	if list["count"] != float64(1) {
		t.Errorf("filtered count = %v, want 1", list["count"])
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/devices/th-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/devices/th-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestServerRequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	cases := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{}},
		{"missing devices", Deps{Logger: logger}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.deps); err == nil {
				t.Error("expected error for incomplete dependencies")
			}
		})
	}
}
