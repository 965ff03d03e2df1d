// ABOUTME: Notification types and the Notifier interface for visitor message alerts
// ABOUTME: LogNotifier records notifications in the log when no mail server is configured

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Notification describes one visitor message worth telling an operator about.
type Notification struct {
	ConversationKey string
	Name            string
	Text            string
	SentAt          time.Time
}

// Subject is the mail subject line for every notification.
const Subject = "New Chat Message"

// Body renders the plain-text notification body.
func (n Notification) Body() string {
	return fmt.Sprintf("New message from: %s\n\nMessage:\n%s", n.Name, n.Text)
}

// Notifier delivers a single notification. Implementations should honour ctx.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. Pass nil logger for default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Send logs the notification and never fails.
func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	l.logger.Info("visitor message notification",
		"conversation_key", n.ConversationKey,
		"name", n.Name,
		"message_len", len(n.Text))
	return nil
}
