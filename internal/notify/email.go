package notify

import (
	"context"
	"log/slog"
)

// EmailChannel is a stub SMTP sender: it logs what would have been sent.
// Wiring a real mail relay is a deployment concern; the channel exists so
// alert routing can be configured end to end.
type EmailChannel struct {
	name   string
	from   string
	to     string
	logger *slog.Logger
}

// NewEmailChannel creates the stub email channel.
func NewEmailChannel(name, from, to string, logger *slog.Logger) *EmailChannel {
	return &EmailChannel{
		name:   name,
		from:   from,
		to:     to,
		logger: logger.With(slog.String("component", "email_channel")),
	}
}

// Send logs the message instead of delivering mail.
func (c *EmailChannel) Send(ctx context.Context, message string) error {
	c.logger.InfoContext(ctx, "email alert (stub)",
		slog.String("from", c.from),
		slog.String("to", c.to),
		slog.String("message", message),
	)
	return nil
}

// Name returns the channel identifier.
func (c *EmailChannel) Name() string { return c.name }

// Compile-time interface check.
var _ Channel = (*EmailChannel)(nil)
