package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"golang.org/x/sync/errgroup"
)

// StreamURL downloads a .tgz and extracts it while it arrives, so the
// archive never lands on disk. The response body is pumped through an
// io.Pipe: the fetch side reports bytes to progressCh and the extraction
// side decompresses at its own pace. An expected checksum cannot be
// verified in this mode and only produces a warning.
func StreamURL(ctx context.Context, client utils.HTTPDoer, url, destDir, expectedMD5 string, progressCh chan<- int64) error {
	log := utils.GetLogger("archive/stream")
	if expectedMD5 != "" {
		log.Warn().Str("url", url).Msg("md5 verification is not supported in streaming mode, skipping")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &utils.DownloadError{URL: url, Msg: "invalid request", Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &utils.DownloadError{URL: url, Msg: "request failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &utils.DownloadError{URL: url, Msg: fmt.Sprintf("unexpected status code %d", resp.StatusCode)}
	}

	pr, pw := io.Pipe()
	var extractErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.CopyBuffer(pw, &countingReader{r: resp.Body, ch: progressCh}, make([]byte, 1024*1024))
		if err != nil {
			err = &utils.DownloadError{URL: url, Msg: "stream interrupted", Err: err}
		}
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := Extract(gctx, pr, destDir)
		if err == nil {
			// drain trailing padding so the fetch side sees EOF
			_, err = io.Copy(io.Discard, pr)
		}
		pr.CloseWithError(err)
		if err != nil {
			extractErr = err
			cancel()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(extractErr, utils.ErrSecurityViolation) {
			return extractErr
		}
		return err
	}
	log.Info().Str("url", url).Str("dest", destDir).Msg("streaming extraction complete")
	return nil
}

type countingReader struct {
	r  io.Reader
	ch chan<- int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.ch != nil {
		c.ch <- int64(n)
	}
	return n, err
}
