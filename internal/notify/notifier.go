// Package notify provides the alert notification channels and a dispatcher
// that fans one message out to every enabled channel concurrently, with a
// bound on parallel sends. Individual channel failures are logged and do
// not prevent delivery on the remaining channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/marketd/internal/config"
	"github.com/quantpulse/marketd/internal/domain"
)

// Channel is the interface every notification channel implements.
type Channel interface {
	// Name returns a human-readable identifier for the channel.
	Name() string
	// Send delivers one message.
	Send(ctx context.Context, message string) error
}

// Notifier dispatches messages to all enabled channels.
type Notifier struct {
	channels []Channel
	maxConc  int
	logger   *slog.Logger
}

// NewNotifier creates a Notifier over the given channels. maxConcurrent
// bounds parallel sends; values below 1 default to 10.
func NewNotifier(channels []Channel, maxConcurrent int, logger *slog.Logger) *Notifier {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &Notifier{
		channels: channels,
		maxConc:  maxConcurrent,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// BuildChannels constructs channels from configuration, skipping disabled
// entries. An unknown channel type is a configuration error and fatal at
// construction.
func BuildChannels(cfgs []config.ChannelConfig, logger *slog.Logger) ([]Channel, error) {
	var channels []Channel
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		switch strings.ToLower(c.Type) {
		case "console":
			channels = append(channels, NewConsoleChannel(c.Name))
		case "file":
			ch, err := NewFileChannel(c.Name, c.Settings["path"])
			if err != nil {
				return nil, fmt.Errorf("notify: channel %s: %w", c.Name, err)
			}
			channels = append(channels, ch)
		case "email":
			channels = append(channels, NewEmailChannel(c.Name, c.Settings["from"], c.Settings["to"], logger))
		default:
			return nil, fmt.Errorf("notify: channel %s: %w: %q", c.Name, domain.ErrUnknownChannelType, c.Type)
		}
	}
	return channels, nil
}

// Dispatch sends the message to every channel concurrently. Ordering across
// channels is not guaranteed. Errors are logged per channel; Dispatch only
// returns an error when every channel failed.
func (n *Notifier) Dispatch(ctx context.Context, message string) error {
	if len(n.channels) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n.maxConc)

	failed := make(chan string, len(n.channels))
	for _, ch := range n.channels {
		g.Go(func() error {
			if err := ch.Send(ctx, message); err != nil {
				n.logger.ErrorContext(ctx, "channel send failed",
					slog.String("channel", ch.Name()),
					slog.String("error", err.Error()),
				)
				failed <- ch.Name()
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failed)

	var names []string
	for name := range failed {
		names = append(names, name)
	}
	if len(names) == len(n.channels) {
		return fmt.Errorf("notify: all channels failed: %s", strings.Join(names, ", "))
	}
	return nil
}

// ChannelCount reports how many channels are enabled.
func (n *Notifier) ChannelCount() int {
	return len(n.channels)
}
