package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleChannel writes alert messages to a writer, stdout by default.
type ConsoleChannel struct {
	name string
	mu   sync.Mutex
	out  io.Writer
}

// NewConsoleChannel creates a ConsoleChannel writing to stdout.
func NewConsoleChannel(name string) *ConsoleChannel {
	return &ConsoleChannel{name: name, out: os.Stdout}
}

// NewConsoleChannelTo creates a ConsoleChannel writing to w.
func NewConsoleChannelTo(name string, w io.Writer) *ConsoleChannel {
	return &ConsoleChannel{name: name, out: w}
}

// Send writes one timestamped line.
func (c *ConsoleChannel) Send(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[ALERT %s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	if err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

// Name returns the channel identifier.
func (c *ConsoleChannel) Name() string { return c.name }

// Compile-time interface check.
var _ Channel = (*ConsoleChannel)(nil)
