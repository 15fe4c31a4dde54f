package notify

import (
	"context"
	"log/slog"
)

// Delivery channels.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
	ChannelSMS   = "sms"
)

// ChannelSender delivers one notification over one channel. The shipped
// implementations are logging stubs marking the integration point for real
// email/push/SMS providers.
type ChannelSender interface {
	Name() string
	Send(ctx context.Context, userID, title, message string) error
}

type logSender struct {
	channel string
	logger  *slog.Logger
}

func (s *logSender) Name() string { return s.channel }

func (s *logSender) Send(_ context.Context, userID, title, message string) error {
	s.logger.Info("notification delivered",
		"channel", s.channel, "user_id", userID, "title", title, "length", len(message))
	return nil
}

// NewEmailSender returns the email delivery stub.
func NewEmailSender(logger *slog.Logger) ChannelSender {
	return &logSender{channel: ChannelEmail, logger: logger.With("component", "notify_email")}
}

// NewPushSender returns the push delivery stub.
func NewPushSender(logger *slog.Logger) ChannelSender {
	return &logSender{channel: ChannelPush, logger: logger.With("component", "notify_push")}
}

// NewSMSSender returns the SMS delivery stub.
func NewSMSSender(logger *slog.Logger) ChannelSender {
	return &logSender{channel: ChannelSMS, logger: logger.With("component", "notify_sms")}
}
