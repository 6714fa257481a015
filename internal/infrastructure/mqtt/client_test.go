package mqtt

import (
	"errors"
	"testing"

	"github.com/ewhitter/haven-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "havencore-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{
			name:     "command topic",
			got:      topics.Command("zigbee", "light-hall"),
			expected: "haven/command/zigbee/light-hall",
		},
		{
			name:     "state topic",
			got:      topics.State("zigbee", "light-hall"),
			expected: "haven/state/zigbee/light-hall",
		},
		{
			name:     "all states wildcard",
			got:      topics.AllStates(),
			expected: "haven/state/+/+",
		},
		{
			name:     "ack topic",
			got:      topics.Ack("modbus", "pump-01"),
			expected: "haven/ack/modbus/pump-01",
		},
		{
			name:     "execution events",
			got:      topics.ExecutionEvents(),
			expected: "haven/core/executions",
		},
		{
			name:     "notification topic",
			got:      topics.Notification("operators"),
			expected: "haven/core/notify/operators",
		},
		{
			name:     "system status",
			got:      topics.SystemStatus(),
			expected: "haven/system/status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("broker URL = %q, want tcp://localhost:1883", opts.Servers[0].String())
	}
	if opts.ClientID != "havencore-test" {
		t.Errorf("client ID = %q, want havencore-test", opts.ClientID)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil {
		t.Error("expected TLS config to be set")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig()}

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("haven/test", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: got %v, want ErrInvalidQoS", err)
	}
	big := make([]byte, maxPayloadSize+1)
	if err := c.Publish("haven/test", big, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload: got %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if err := c.Subscribe("", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("haven/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	if c.SubscriptionCount() != 0 {
		t.Errorf("initial count = %d, want 0", c.SubscriptionCount())
	}
	c.subscriptions["haven/test"] = subscription{topic: "haven/test", qos: 1}
	if !c.HasSubscription("haven/test") {
		t.Error("HasSubscription returned false for tracked topic")
	}
	if c.HasSubscription("haven/other") {
		t.Error("HasSubscription returned true for untracked topic")
	}
}
