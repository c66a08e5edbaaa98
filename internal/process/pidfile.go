package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/gofrs/flock"
)

// PidFile records the PID of the supervised node. Changes happen under an
// exclusive flock on the file itself so that two tronctl invocations never
// both decide the node is absent and spawn it.
type PidFile struct {
	path string
}

func NewPidFile(path string) *PidFile {
	return &PidFile{path: path}
}

// TryLock takes the exclusive lock without blocking. A held lock means
// another invocation is mid-operation, never that the file is stale.
func (p *PidFile) TryLock() (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pid directory: %w", err)
	}
	lock := flock.New(p.path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", p.path, err)
	}
	if !ok {
		return nil, utils.ErrStartInProgress
	}
	return lock, nil
}

// Read returns the recorded PID, or 0 when the file is missing or empty.
func (p *PidFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file content %q", text)
	}
	return pid, nil
}

// Write replaces the recorded PID and flushes it to disk.
func (p *PidFile) Write(pid int) error {
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open pid file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		f.Close()
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync pid file: %w", err)
	}
	return f.Close()
}

func (p *PidFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}
