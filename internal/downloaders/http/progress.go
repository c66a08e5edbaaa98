package tronhttp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/google/uuid"
)

type ChunkStatus string

const (
	ChunkPending   ChunkStatus = "pending"
	ChunkInFlight  ChunkStatus = "in_flight"
	ChunkCompleted ChunkStatus = "completed"
)

func (s *ChunkStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch ChunkStatus(v) {
	case ChunkPending, ChunkInFlight, ChunkCompleted:
		*s = ChunkStatus(v)
		return nil
	default:
		return fmt.Errorf("unknown chunk status %q", v)
	}
}

type ChunkRecord struct {
	Index  int         `json:"index"`
	Start  int64       `json:"start"`
	End    int64       `json:"end"`
	Status ChunkStatus `json:"status"`
}

func (c ChunkRecord) Size() int64 { return c.End - c.Start + 1 }

// ProgressRecord is the on-disk resumption state of a chunked transfer.
type ProgressRecord struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	TotalSize int64         `json:"total_size"`
	ChunkSize int64         `json:"chunk_size"`
	Chunks    []ChunkRecord `json:"chunks"`
}

func NewProgressRecord(p Plan) *ProgressRecord {
	return &ProgressRecord{
		ID:        uuid.NewString(),
		URL:       p.URL,
		TotalSize: p.TotalSize,
		ChunkSize: p.ChunkSize,
		Chunks:    p.Chunks(),
	}
}

// Matches reports whether the record was written for the same source.
func (r *ProgressRecord) Matches(url string, size int64) bool {
	return r.URL == url && r.TotalSize == size
}

func stem(dest string) string {
	return strings.TrimSuffix(dest, filepath.Ext(dest))
}

func ProgressPath(dest string) string { return stem(dest) + ".progress" }

func ChunkPath(dest string, index int) string {
	return fmt.Sprintf("%s.part%d", stem(dest), index)
}

// LoadProgress returns the saved record for dest, or nil when none exists.
func LoadProgress(dest string) (*ProgressRecord, error) {
	data, err := os.ReadFile(ProgressPath(dest))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress record: %w", err)
	}
	var r ProgressRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse progress record: %w", err)
	}
	return &r, nil
}

// Save writes the record next to dest, replacing the previous copy atomically.
func (r *ProgressRecord) Save(dest string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress record: %w", err)
	}
	path := ProgressPath(dest)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write progress record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace progress record: %w", err)
	}
	return nil
}

// removeChunkFiles deletes every partial file the record names.
func (r *ProgressRecord) removeChunkFiles(dest string) {
	for _, c := range r.Chunks {
		os.Remove(ChunkPath(dest, c.Index))
	}
}

// CleanTransferState removes progress records and partial files left in dir
// by interrupted chunked transfers and returns what it removed.
func CleanTransferState(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".progress") || utils.ChunkIDRegex.MatchString(name)) {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// chunkTracker serializes status changes from concurrent workers and
// persists the record after each one.
type chunkTracker struct {
	mu     sync.Mutex
	dest   string
	record *ProgressRecord
}

func (t *chunkTracker) set(pos int, status ChunkStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record.Chunks[pos].Status = status
	return t.record.Save(t.dest)
}
