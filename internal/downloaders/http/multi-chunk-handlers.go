package tronhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// downloadChunk requests the bytes of chunk not yet in its partial file and
// appends them.
func downloadChunk(ctx context.Context, client utils.HTTPDoer, url, dest string, chunk ChunkRecord, progressCh chan<- int64) error {
	path := ChunkPath(dest, chunk.Index)
	have, err := utils.FileSize(path)
	if err != nil {
		return fmt.Errorf("error checking partial file: %w", err)
	}
	startByte := chunk.Start + have
	if startByte > chunk.End {
		return nil
	}
	remaining := chunk.End - startByte + 1

	partFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error opening partial file: %w", err)
	}
	defer partFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, chunk.End))
	req.Header.Set("Connection", "keep-alive")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return fmt.Errorf("%w: server sent the whole file for chunk %d", utils.ErrRangeRequestsNotSupported, chunk.Index)
	}
	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Range") == "" {
		return errors.New("missing Content-Range header")
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	body := io.LimitReader(resp.Body, remaining)
	var newBytes int64
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, err := partFile.Write(buffer[:bytesRead]); err != nil {
				return fmt.Errorf("error writing partial file: %w", err)
			}
			newBytes += int64(bytesRead)
			if progressCh != nil {
				progressCh <- int64(bytesRead)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	if newBytes != remaining {
		return fmt.Errorf("short body: expected %d bytes, got %d", remaining, newBytes)
	}
	return partFile.Sync()
}
