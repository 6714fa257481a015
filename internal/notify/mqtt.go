package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ewhitter/haven-core/internal/infrastructure/mqtt"
	"github.com/ewhitter/haven-core/internal/rules"
)

// defaultRecipient is the topic segment used when a notification names
// no recipients.
const defaultRecipient = "all"

// Publisher is the MQTT surface the channel publishes through.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTChannel delivers notifications as JSON messages on per-recipient
// notify topics. Messages are not retained.
type MQTTChannel struct {
	client Publisher
	qos    byte
}

// NewMQTTChannel creates the MQTT notification channel.
func NewMQTTChannel(client Publisher, qos byte) *MQTTChannel {
	return &MQTTChannel{client: client, qos: qos}
}

// Name identifies this channel in rule action channel lists.
func (c *MQTTChannel) Name() string { return "mqtt" }

// Deliver publishes the notification once per recipient group.
func (c *MQTTChannel) Deliver(_ context.Context, n rules.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	recipients := n.Recipients
	if len(recipients) == 0 {
		recipients = []string{defaultRecipient}
	}

	for _, recipient := range recipients {
		topic := mqtt.Topics{}.Notification(recipient)
		if err := c.client.Publish(topic, payload, c.qos, false); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
	}
	return nil
}
