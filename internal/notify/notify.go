// Package notify delivers notification records over their channel: SMS goes
// through Twilio, email is logged until an email provider is wired in. The
// flows treat delivery as best effort; senders here report errors but never
// retry.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// Sender delivers one notification record.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// Dispatcher routes a notification to the sender for its channel.
type Dispatcher struct {
	senders map[models.NotificationChannel]Sender
}

// NewDispatcher builds a dispatcher over per-channel senders. A nil sender
// for a channel means that channel is logged and dropped.
func NewDispatcher(senders map[models.NotificationChannel]Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// Send routes the notification by channel.
func (d *Dispatcher) Send(ctx context.Context, n models.Notification) error {
	sender, ok := d.senders[n.Channel]
	if !ok || sender == nil {
		slog.Warn("Dispatcher.Send: no sender for channel, dropping", "channel", n.Channel, "type", n.Type)
		return nil
	}
	if n.Recipient == "" {
		return fmt.Errorf("notification %s has no recipient", n.ID)
	}
	return sender.Send(ctx, n)
}

// LogSender writes the notification to the log instead of delivering it.
// Used for the email channel until a provider is integrated, and in local
// development for every channel.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n models.Notification) error {
	slog.Info("LogSender.Send: notification recorded",
		"id", n.ID, "type", n.Type, "channel", n.Channel, "recipient", n.Recipient, "body", n.Body)
	return nil
}
