package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes deliveries to the log instead of sending them. Used in
// dev when no SMTP or SMS gateway is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) SendEmail(_ context.Context, to, subject, body string) error {
	n.Logger.Info("email (log only)", "to", to, "subject", subject, "body", body)
	return nil
}

func (n *LogNotifier) SendSMS(_ context.Context, to, body string) error {
	n.Logger.Info("sms (log only)", "to", to, "body", body)
	return nil
}
