package tronhttp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"golang.org/x/sync/errgroup"
)

// PerformMultiDownload fetches plan.Dest as concurrent ranged requests, one
// partial file per chunk. State is kept in a progress record beside the
// destination so an interrupted transfer picks up where it stopped. A failed
// chunk is not retried; the record is saved and the caller reruns.
func PerformMultiDownload(ctx context.Context, client utils.HTTPDoer, plan Plan, expectedMD5 string, progressCh chan<- int64) error {
	log := utils.GetLogger("http/multi-down")
	if err := os.MkdirAll(filepath.Dir(plan.Dest), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	record, err := LoadProgress(plan.Dest)
	if err != nil {
		log.Warn().Err(err).Str("dest", plan.Dest).Msg("discarding unreadable progress record")
		record = nil
	}
	if record != nil && record.Matches(plan.URL, plan.TotalSize) {
		log.Info().Str("id", record.ID).Str("dest", plan.Dest).Msg("resuming chunked transfer")
	} else {
		if record != nil {
			log.Info().Str("id", record.ID).Msg("progress record belongs to another source, starting over")
			record.removeChunkFiles(plan.Dest)
		}
		record = NewProgressRecord(plan)
		record.removeChunkFiles(plan.Dest)
	}
	log = log.With().Str("id", record.ID).Logger()

	if err := reconcileChunks(record, plan.Dest, progressCh); err != nil {
		return err
	}
	if err := record.Save(plan.Dest); err != nil {
		return err
	}

	tracker := &chunkTracker{dest: plan.Dest, record: record}
	var failed atomic.Bool
	g := new(errgroup.Group)
	for pos := range record.Chunks {
		chunk := record.Chunks[pos]
		if chunk.Status == ChunkCompleted {
			continue
		}
		if failed.Load() {
			break
		}
		if err := tracker.set(pos, ChunkInFlight); err != nil {
			failed.Store(true)
			g.Go(func() error { return err })
			break
		}
		g.Go(func() error {
			err := downloadChunk(ctx, client, plan.URL, plan.Dest, chunk, progressCh)
			if err != nil {
				failed.Store(true)
				log.Error().Err(err).Int("chunk", chunk.Index).Msg("chunk failed")
				if saveErr := tracker.set(pos, ChunkPending); saveErr != nil {
					log.Error().Err(saveErr).Msg("failed to persist progress")
				}
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			log.Debug().Int("chunk", chunk.Index).Msg("chunk completed")
			return tracker.set(pos, ChunkCompleted)
		})
	}
	if err := g.Wait(); err != nil {
		return &utils.DownloadError{
			URL: plan.URL,
			Msg: "transfer interrupted, progress saved; rerun the same command to resume",
			Err: err,
		}
	}

	if err := assembleFile(plan.Dest, record); err != nil {
		return &utils.DownloadError{URL: plan.URL, Msg: "failed to merge chunks", Err: err}
	}
	log.Info().Str("dest", plan.Dest).Msg("chunked transfer complete")
	if expectedMD5 != "" {
		return VerifyMD5(plan.Dest, expectedMD5)
	}
	return nil
}

// reconcileChunks lines up each chunk status with its partial file. Only a
// partial file of exactly the chunk's size counts as completed.
func reconcileChunks(record *ProgressRecord, dest string, progressCh chan<- int64) error {
	for pos := range record.Chunks {
		c := &record.Chunks[pos]
		path := ChunkPath(dest, c.Index)
		have, err := utils.FileSize(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		switch {
		case have == c.Size():
			c.Status = ChunkCompleted
		case have > c.Size():
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to reset oversized chunk %d: %w", c.Index, err)
			}
			have = 0
			c.Status = ChunkPending
		default:
			switch c.Status {
			case ChunkCompleted, ChunkInFlight:
				c.Status = ChunkPending
			case ChunkPending:
			}
		}
		if have > 0 && progressCh != nil {
			progressCh <- have
		}
	}
	return nil
}

// assembleFile concatenates the partial files in index order, checks the
// merged length, then removes the partials and the progress record.
func assembleFile(dest string, record *ProgressRecord) error {
	chunks := make([]ChunkRecord, len(record.Chunks))
	copy(chunks, record.Chunks)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, utils.DefaultBufferSize)

	var written int64
	for _, c := range chunks {
		part, err := os.Open(ChunkPath(dest, c.Index))
		if err != nil {
			return fmt.Errorf("error opening chunk %d: %w", c.Index, err)
		}
		n, err := io.Copy(w, part)
		part.Close()
		if err != nil {
			return fmt.Errorf("error copying chunk %d: %w", c.Index, err)
		}
		written += n
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("error flushing output file: %w", err)
	}
	if written != record.TotalSize {
		return fmt.Errorf("merged size mismatch: expected %d bytes, wrote %d", record.TotalSize, written)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("error syncing output file: %w", err)
	}

	record.removeChunkFiles(dest)
	if err := os.Remove(ProgressPath(dest)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing progress record: %w", err)
	}
	return nil
}
