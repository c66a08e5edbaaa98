package logtail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeLines(t *testing.T, path string, from, to int) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	for i := from; i <= to; i++ {
		fmt.Fprintf(f, "line %d\n", i)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	writeLines(t, path, 1, 10)

	lines, size, err := Tail(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"line 8", "line 9", "line 10"}, lines)
	st, _ := os.Stat(path)
	assert.Equal(t, st.Size(), size)
}

func TestTailShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	require.NoError(t, os.WriteFile(path, []byte("only\nno newline at end"), 0644))

	lines, _, err := Tail(path, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"only", "no newline at end"}, lines)
}

func TestTailAcrossBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	writeLines(t, path, 1, 20000)

	lines, _, err := Tail(path, 5000)
	require.NoError(t, err)
	require.Len(t, lines, 5000)
	assert.Equal(t, "line 15001", lines[0])
	assert.Equal(t, "line 20000", lines[4999])
}

func TestTailEmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.log")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	lines, size, err := Tail(empty, 10)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, size)

	_, _, err = Tail(filepath.Join(dir, "missing.log"), 10)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFollowAppendsAndRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	writeLines(t, path, 1, 3)
	_, size, err := Tail(path, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, size, out) }()

	writeLines(t, path, 4, 5)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "line 5\n")
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotContains(t, out.String(), "line 3\n")

	require.NoError(t, os.Rename(path, path+".1"))
	writeLines(t, path, 100, 101)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "line 101\n")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop on cancel")
	}
	assert.Equal(t, 1, strings.Count(out.String(), "line 100\n"))
}

func TestFollowWaitsForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tron.log")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	go Follow(ctx, path, 0, out)

	// the watcher may not be registered yet; keep appending until seen
	assert.Eventually(t, func() bool {
		writeLines(t, path, 1, 1)
		return strings.Contains(out.String(), "line 1\n")
	}, 5*time.Second, 20*time.Millisecond)
}
