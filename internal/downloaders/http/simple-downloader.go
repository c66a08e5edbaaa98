package tronhttp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// PerformSimpleDownload streams url into dest with a single request. A
// partial dest shorter than size is resumed with an open-ended range. When
// expectedMD5 is set the hash covers the kept prefix as well as the new bytes.
func PerformSimpleDownload(ctx context.Context, client utils.HTTPDoer, url, dest string, size int64, expectedMD5 string, progressCh chan<- int64) error {
	log := utils.GetLogger("http/simple-downloader")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	resumeOffset, err := utils.FileSize(dest)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	if resumeOffset >= size || size <= 0 {
		resumeOffset = 0
	}

	var hasher hash.Hash
	if expectedMD5 != "" {
		hasher = md5.New()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating GET request: %w", err)
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
		log.Debug().Str("dest", dest).Int64("offset", resumeOffset).Msg("resuming download")
	}
	resp, err := client.Do(req)
	if err != nil {
		return &utils.DownloadError{URL: url, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()

	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	switch {
	case resp.StatusCode == http.StatusPartialContent && resumeOffset > 0:
		fileMode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	case resp.StatusCode == http.StatusOK:
		if resumeOffset > 0 {
			log.Warn().Str("dest", dest).Msg("server ignored range request, restarting download")
		}
		resumeOffset = 0
	default:
		return &utils.DownloadError{URL: url, Msg: fmt.Sprintf("unexpected status code %d", resp.StatusCode)}
	}

	if hasher != nil && resumeOffset > 0 {
		if err := hashPrefix(hasher, dest, resumeOffset); err != nil {
			return err
		}
	}

	outFile, err := os.OpenFile(dest, fileMode, 0644)
	if err != nil {
		return fmt.Errorf("error opening output file: %w", err)
	}
	defer outFile.Close()
	if resumeOffset > 0 && progressCh != nil {
		progressCh <- resumeOffset
	}

	var sink io.Writer = outFile
	if hasher != nil {
		sink = io.MultiWriter(outFile, hasher)
	}
	buffer := make([]byte, utils.DefaultBufferSize)
	written := resumeOffset
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, err := sink.Write(buffer[:bytesRead]); err != nil {
				return fmt.Errorf("error writing to output file: %w", err)
			}
			written += int64(bytesRead)
			if progressCh != nil {
				progressCh <- int64(bytesRead)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return &utils.DownloadError{URL: url, Msg: "error reading response body", Err: readErr}
		}
	}
	if err := outFile.Sync(); err != nil {
		return fmt.Errorf("error syncing output file: %w", err)
	}
	if size > 0 && written != size {
		return &utils.DownloadError{URL: url, Msg: fmt.Sprintf("size mismatch: expected %d bytes, have %d", size, written)}
	}
	log.Info().Str("dest", dest).Int64("bytes", written).Msg("simple download complete")

	if hasher != nil {
		return compareMD5(dest, expectedMD5, hex.EncodeToString(hasher.Sum(nil)))
	}
	return nil
}

func hashPrefix(h hash.Hash, path string, n int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.CopyN(h, f, n); err != nil {
		return fmt.Errorf("failed to hash existing bytes of %s: %w", path, err)
	}
	return nil
}
