package logtail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/fsnotify/fsnotify"
)

const blockSize = 64 * 1024

// Tail returns the last n lines of path and the file size they were read
// at, which is where a subsequent Follow should pick up. The file is read
// backwards so multi-gigabyte node logs stay cheap.
func Tail(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat log: %w", err)
	}
	size := st.Size()
	if n <= 0 || size == 0 {
		return nil, size, nil
	}

	var buf []byte
	pos := size
	for pos > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		step := min(int64(blockSize), pos)
		pos -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("failed to read log: %w", err)
		}
		buf = append(chunk, buf...)
	}

	text := strings.TrimSuffix(string(buf), "\n")
	if text == "" {
		return nil, size, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, size, nil
}

// Follow copies everything appended to path after offset from into w until
// ctx is done. A rotated or truncated file is read again from its start.
func Follow(ctx context.Context, path string, from int64, w io.Writer) error {
	log := utils.GetLogger("logtail/follow")
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, w: w}
	defer t.close()
	if err := t.open(from); err != nil {
		return err
	}
	if err := t.drain(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				log.Debug().Str("file", path).Msg("log file recreated")
				if t.f != nil {
					if err := t.drain(); err != nil {
						return err
					}
					t.close()
				}
				if err := t.open(0); err != nil {
					return err
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				log.Debug().Str("file", path).Msg("log file rotated away")
				if t.f != nil {
					if err := t.drain(); err != nil {
						return err
					}
					t.close()
				}
				continue
			}
			if err := t.drain(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher failed: %w", err)
		}
	}
}

type tailer struct {
	path   string
	w      io.Writer
	f      *os.File
	offset int64
}

// open positions the reader at from, or at 0 when the file is shorter than
// that. A missing file is not an error; it is picked up once created.
func (t *tailer) open(from int64) error {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log: %w", err)
	}
	if st.Size() < from {
		from = 0
	}
	if _, err := f.Seek(from, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("failed to seek log: %w", err)
	}
	t.f, t.offset = f, from
	return nil
}

func (t *tailer) drain() error {
	if t.f == nil {
		if err := t.open(0); err != nil || t.f == nil {
			return err
		}
	}
	if st, err := t.f.Stat(); err == nil && st.Size() < t.offset {
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek log: %w", err)
		}
		t.offset = 0
	}
	n, err := io.Copy(t.w, t.f)
	t.offset += n
	if err != nil {
		return fmt.Errorf("failed to copy log: %w", err)
	}
	return nil
}

func (t *tailer) close() {
	if t.f != nil {
		t.f.Close()
		t.f = nil
	}
}
