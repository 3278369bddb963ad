package email

import (
	"context"

	"go.uber.org/zap"
)

// LogSender logs emails instead of delivering them.
// Used when email.to is set but no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender backed by the given logger.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the email and returns nil.
func (n *LogSender) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("email not sent (no smtp.host)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
