package notify

import (
	"context"

	"github.com/ewhitter/haven-core/internal/rules"
)

// ConsoleChannel writes notifications to the structured log. It is the
// zero-infrastructure channel for development and as a last-resort
// delivery target.
type ConsoleChannel struct {
	logger Logger
}

// NewConsoleChannel creates the console notification channel.
func NewConsoleChannel(logger Logger) *ConsoleChannel {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ConsoleChannel{logger: logger}
}

// Name identifies this channel in rule action channel lists.
func (c *ConsoleChannel) Name() string { return "console" }

// Deliver logs the notification.
func (c *ConsoleChannel) Deliver(_ context.Context, n rules.Notification) error {
	c.logger.Info("notification",
		"title", n.Title,
		"content", n.Content,
		"priority", n.Priority,
		"type", n.Type,
		"recipients", n.Recipients,
	)
	return nil
}
