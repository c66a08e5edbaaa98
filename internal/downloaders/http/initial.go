package tronhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// RemoteInfo is what a HEAD probe learns about a source.
// URL is the address that was probed and keys the progress record.
// Transfers request it again and follow redirects each time; signed
// redirect targets differ between requests.
type RemoteInfo struct {
	URL           string
	FinalURL      string // after redirects, informational
	Size          int64
	AcceptsRanges bool
}

// Probe issues a HEAD request. Redirects are followed and range support is
// read from the final response. A source without a usable Content-Length
// cannot be planned and is reported as a download failure.
func Probe(ctx context.Context, client utils.HTTPDoer, link string) (RemoteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return RemoteInfo{}, &utils.DownloadError{URL: link, Msg: "invalid request", Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return RemoteInfo{}, &utils.DownloadError{URL: link, Msg: "probe failed", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RemoteInfo{}, &utils.DownloadError{URL: link, Msg: fmt.Sprintf("probe returned status %d", resp.StatusCode)}
	}

	info := RemoteInfo{
		URL:           link,
		FinalURL:      link,
		AcceptsRanges: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		info.FinalURL = resp.Request.URL.String()
	}
	size := resp.ContentLength
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if parsed, err := strconv.ParseInt(cl, 10, 64); err == nil {
			size = parsed
		}
	}
	if size <= 0 {
		return RemoteInfo{}, &utils.DownloadError{URL: link, Msg: "cannot determine size"}
	}
	info.Size = size
	if info.FinalURL != link {
		log := utils.GetLogger("http/probe")
		log.Debug().Str("url", link).Str("final", info.FinalURL).Msg("source redirects")
	}
	return info, nil
}

// TrackProgress aggregates byte counts sent on the returned channel and
// reports them to job.ProgressFunc. The stop function closes the channel and
// waits for the final report.
func TrackProgress(job *utils.TronJob, total int64) (chan<- int64, func()) {
	progressCh := make(chan int64, 100)
	progressDone := make(chan struct{})

	go func() {
		defer close(progressDone)
		var totalDownloaded, lastBytes int64
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case bytes, ok := <-progressCh:
				if !ok {
					if job.ProgressFunc != nil {
						job.ProgressFunc(totalDownloaded, total)
					}
					return
				}
				totalDownloaded += bytes
			case <-ticker.C:
				if totalDownloaded > lastBytes && job.ProgressFunc != nil {
					job.ProgressFunc(totalDownloaded, total)
				}
				lastBytes = totalDownloaded
			}
		}
	}()

	return progressCh, func() {
		close(progressCh)
		<-progressDone
	}
}

// HTTPDownloader fetches a single URL to job.OutputPath. Set
// Metadata["skipExisting"] to leave an existing file alone.
type HTTPDownloader struct{}

func (d *HTTPDownloader) ValidateJob(ctx context.Context, job *utils.TronJob) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if job.OutputPath == "" {
		return fmt.Errorf("no output path for %s", job.URL)
	}
	if skip, _ := job.Metadata["skipExisting"].(bool); skip {
		if _, err := os.Stat(job.OutputPath); err == nil {
			return utils.ErrJobSkipped
		}
	}
	return nil
}

func (d *HTTPDownloader) BuildJob(ctx context.Context, job *utils.TronJob) error {
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)
	info, err := Probe(ctx, client, job.URL)
	if err != nil {
		return err
	}
	job.Metadata["remote"] = info
	return nil
}

func (d *HTTPDownloader) Download(ctx context.Context, job *utils.TronJob) error {
	info, ok := job.Metadata["remote"].(RemoteInfo)
	if !ok {
		return fmt.Errorf("job %s was not built", job.ID)
	}
	if mode, _ := ChooseMode(info, job.Connections); mode == ModeChunked {
		job.HTTPClientConfig.HighThreadMode = true
	}
	client := utils.NewTronHTTPClient(job.HTTPClientConfig)
	progressCh, stop := TrackProgress(job, info.Size)
	err := Transfer(ctx, client, info, job.OutputPath, job.ExpectedMD5, job.Connections, progressCh)
	stop()
	return err
}
