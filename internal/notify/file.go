package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileChannel appends alert messages to a log file. Writes are serialized
// by an internal mutex; the parent directory is created on construction.
type FileChannel struct {
	name string
	path string
	mu   sync.Mutex
}

// NewFileChannel creates a FileChannel appending to path.
func NewFileChannel(name, path string) (*FileChannel, error) {
	if path == "" {
		return nil, fmt.Errorf("file channel: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file channel: create dir %s: %w", dir, err)
		}
	}
	return &FileChannel{name: name, path: path}, nil
}

// Send appends one timestamped line. The file is opened per send so
// rotation by external tooling is safe.
func (c *FileChannel) Send(ctx context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("file channel: open %s: %w", c.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), message); err != nil {
		return fmt.Errorf("file channel: write %s: %w", c.path, err)
	}
	return nil
}

// Name returns the channel identifier.
func (c *FileChannel) Name() string { return c.name }

// Compile-time interface check.
var _ Channel = (*FileChannel)(nil)
