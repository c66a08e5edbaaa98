package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *utils.TronHTTPClient {
	return utils.NewTronHTTPClient(utils.HTTPClientConfig{Timeout: 2 * time.Second})
}

func closedServerURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestProbeServersOrdersByLatency(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer fast.Close()
	dead := closedServerURL()

	s := NewSelector(testClient(), []string{dead, slow.URL, fast.URL})
	probes := s.ProbeServers(context.Background())
	require.Len(t, probes, 3)
	assert.Equal(t, fast.URL, probes[0].URL)
	assert.Equal(t, slow.URL, probes[1].URL)
	assert.Equal(t, dead, probes[2].URL)
	assert.True(t, probes[0].Available)
	assert.False(t, probes[2].Available)
	assert.Equal(t, UnreachableLatency, probes[2].Latency)

	server, err := s.SelectFastest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fast.URL, server)
}

func TestSelectFastestNoneAvailable(t *testing.T) {
	s := NewSelector(testClient(), []string{closedServerURL(), closedServerURL()})
	_, err := s.SelectFastest(context.Background())
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
}

func TestLatestSnapshotWalksBackDays(t *testing.T) {
	var mu sync.Mutex
	var heads []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead:
			mu.Lock()
			heads = append(heads, r.URL.Path)
			mu.Unlock()
			if r.URL.Path == "/backup20240303/LiteFullNode_output-directory.tgz" {
				return
			}
			http.NotFound(w, r)
		case r.URL.Path == "/backup20240303/LiteFullNode_output-directory.tgz.md5sum":
			fmt.Fprintln(w, "9e107d9d372bb6826bd81d3542a419d6  LiteFullNode_output-directory.tgz")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewSelector(testClient(), []string{srv.URL})
	s.Now = func() time.Time { return time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC) }
	meta, err := s.LatestSnapshot(context.Background(), srv.URL, "lite")
	require.NoError(t, err)
	assert.Equal(t, "20240303", meta.Date)
	assert.Equal(t, 53, meta.SizeGB)
	assert.Equal(t, "9e107d9d372bb6826bd81d3542a419d6", meta.MD5)
	assert.Equal(t, srv.URL+"/backup20240303/LiteFullNode_output-directory.tgz", meta.DownloadURL)
	assert.Equal(t, []string{
		"/backup20240305/LiteFullNode_output-directory.tgz",
		"/backup20240304/LiteFullNode_output-directory.tgz",
		"/backup20240303/LiteFullNode_output-directory.tgz",
	}, heads)
}

func TestLatestSnapshotMissingMD5(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && strings.HasSuffix(r.URL.Path, "FullNode_output-directory.tgz") {
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := NewSelector(testClient(), []string{srv.URL})
	meta, err := s.LatestSnapshot(context.Background(), srv.URL, "full")
	require.NoError(t, err)
	assert.Equal(t, 2937, meta.SizeGB)
	assert.Empty(t, meta.MD5)
	assert.Contains(t, meta.DownloadURL, "/FullNode_output-directory.tgz")
}

func TestLatestSnapshotNoneFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	s := NewSelector(testClient(), []string{srv.URL})
	_, err := s.LatestSnapshot(context.Background(), srv.URL, "lite")
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
}

func TestLatestSnapshotUnknownKind(t *testing.T) {
	s := NewSelector(testClient(), nil)
	_, err := s.LatestSnapshot(context.Background(), "http://unused", "archive")
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func buildSnapshot(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := []byte("LOG-000001")
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "output-directory/database/block/LOG", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
	_, err := tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func mirror(t *testing.T, archive []byte, md5sum string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			return
		case strings.HasSuffix(r.URL.Path, "LiteFullNode_output-directory.tgz"):
			http.ServeContent(w, r, "snap.tgz", time.Time{}, bytes.NewReader(archive))
		case strings.HasSuffix(r.URL.Path, ".md5sum") && md5sum != "":
			fmt.Fprintf(w, "%s  LiteFullNode_output-directory.tgz\n", md5sum)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runJob(t *testing.T, job *utils.TronJob) error {
	t.Helper()
	d := &SnapshotDownloader{}
	ctx := context.Background()
	if err := d.ValidateJob(ctx, job); err != nil {
		return err
	}
	if err := d.BuildJob(ctx, job); err != nil {
		return err
	}
	return d.Download(ctx, job)
}

func TestSnapshotDownloaderStreaming(t *testing.T) {
	archive := buildSnapshot(t)
	srv := mirror(t, archive, "")
	dataDir := filepath.Join(t.TempDir(), "data")
	job := &utils.TronJob{
		ID:      "snap",
		JobType: "snapshot",
		Metadata: map[string]any{
			"kind":        "lite",
			"dataDir":     dataDir,
			"databaseDir": filepath.Join(dataDir, "output-directory", "database"),
			"servers":     []string{srv.URL},
		},
	}
	require.NoError(t, runJob(t, job))
	assert.FileExists(t, filepath.Join(dataDir, "output-directory", "database", "block", "LOG"))

	meta := job.Metadata["snapshot"].(Metadata)
	assert.Equal(t, time.Now().UTC().Format("20060102"), meta.Date)

	// second run sees a populated database and does nothing
	err := (&SnapshotDownloader{}).ValidateJob(context.Background(), job)
	assert.ErrorIs(t, err, utils.ErrJobSkipped)
}

func TestSnapshotDownloaderVerified(t *testing.T) {
	archive := buildSnapshot(t)
	sum := md5.Sum(archive)
	srv := mirror(t, archive, hex.EncodeToString(sum[:]))
	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	job := &utils.TronJob{
		ID:      "snap",
		JobType: "snapshot",
		Metadata: map[string]any{
			"kind":       "lite",
			"dataDir":    dataDir,
			"archiveDir": base,
			"verify":     true,
			"servers":    []string{srv.URL},
		},
	}
	require.NoError(t, runJob(t, job))
	assert.Equal(t, hex.EncodeToString(sum[:]), job.ExpectedMD5)
	assert.FileExists(t, filepath.Join(dataDir, "output-directory", "database", "block", "LOG"))
	assert.NoFileExists(t, job.OutputPath)
	assert.NoFileExists(t, tronhttp.ProgressPath(job.OutputPath))
}

func TestSnapshotDownloaderVerifiedMismatchKeepsArchive(t *testing.T) {
	archive := buildSnapshot(t)
	srv := mirror(t, archive, "ffffffffffffffffffffffffffffffff")
	base := t.TempDir()
	job := &utils.TronJob{
		ID:      "snap",
		JobType: "snapshot",
		Metadata: map[string]any{
			"kind":       "lite",
			"dataDir":    filepath.Join(base, "data"),
			"archiveDir": base,
			"verify":     true,
			"servers":    []string{srv.URL},
		},
	}
	err := runJob(t, job)
	assert.ErrorIs(t, err, utils.ErrChecksumMismatch)
	_, statErr := os.Stat(job.OutputPath)
	assert.NoError(t, statErr)
}

func TestSnapshotDownloaderRejectsUnknownKind(t *testing.T) {
	job := &utils.TronJob{Metadata: map[string]any{"kind": "none", "dataDir": t.TempDir()}}
	assert.ErrorIs(t, (&SnapshotDownloader{}).ValidateJob(context.Background(), job), utils.ErrConfig)
}
