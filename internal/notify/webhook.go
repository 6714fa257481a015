package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ewhitter/haven-core/internal/rules"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookChannel POSTs notifications as JSON to a configured endpoint.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates the webhook notification channel. A zero
// timeout uses the default.
func NewWebhookChannel(url string, headers map[string]string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookChannel{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name identifies this channel in rule action channel lists.
func (c *WebhookChannel) Name() string { return "webhook" }

// Deliver POSTs the notification. Any non-2xx response is a failure.
func (c *WebhookChannel) Deliver(ctx context.Context, n rules.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
