package tronhttp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rangeServer struct {
	*httptest.Server
	content []byte

	mu        sync.Mutex
	ranges    []string
	failStart int64
	ignoreRng bool
}

func newRangeServer(t *testing.T, content []byte) *rangeServer {
	t.Helper()
	s := &rangeServer{content: content, failStart: -1}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rng := r.Header.Get("Range")
			s.mu.Lock()
			s.ranges = append(s.ranges, rng)
			failStart, ignore := s.failStart, s.ignoreRng
			s.mu.Unlock()
			var start int64 = -1
			if rng != "" {
				fmt.Sscanf(rng, "bytes=%d-", &start)
			}
			if failStart >= 0 && start == failStart {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			if ignore {
				r.Header.Del("Range")
			}
		}
		http.ServeContent(w, r, "blob.bin", time.Time{}, bytes.NewReader(s.content))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *rangeServer) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ranges...)
}

func (s *rangeServer) setFailStart(v int64) {
	s.mu.Lock()
	s.failStart = v
	s.mu.Unlock()
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func drain() (chan int64, func() int64) {
	ch := make(chan int64, 1024)
	var total int64
	done := make(chan struct{})
	go func() {
		for n := range ch {
			total += n
		}
		close(done)
	}()
	return ch, func() int64 {
		close(ch)
		<-done
		return total
	}
}

func newClient() *utils.TronHTTPClient {
	return utils.NewTronHTTPClient(utils.HTTPClientConfig{Timeout: 5 * time.Second})
}

func TestNewPlanFourUnits(t *testing.T) {
	const mib = 1024 * 1024
	plan := NewPlan("http://x/blob", "/tmp/blob.tgz", 300*mib, 4)
	chunks := plan.Chunks()
	require.Len(t, chunks, 4)
	assert.Equal(t, int64(75*mib), plan.ChunkSize)
	for i, c := range chunks {
		assert.Equal(t, int64(i)*75*mib, c.Start)
		assert.Equal(t, int64(75*mib), c.Size())
		assert.Equal(t, ChunkPending, c.Status)
	}
	assert.Equal(t, int64(300*mib-1), chunks[3].End)
}

func TestNewPlanRemainderGoesToLastChunk(t *testing.T) {
	plan := NewPlan("u", "d", 10, 3)
	chunks := plan.Chunks()
	require.Len(t, chunks, 3)
	assert.Equal(t, ChunkRecord{Index: 0, Start: 0, End: 2, Status: ChunkPending}, chunks[0])
	assert.Equal(t, ChunkRecord{Index: 1, Start: 3, End: 5, Status: ChunkPending}, chunks[1])
	assert.Equal(t, ChunkRecord{Index: 2, Start: 6, End: 9, Status: ChunkPending}, chunks[2])

	var sum int64
	for _, c := range chunks {
		sum += c.Size()
	}
	assert.Equal(t, int64(10), sum)
}

func TestNewPlanClampsChunkCount(t *testing.T) {
	assert.Equal(t, 1, NewPlan("u", "d", 100, 0).ChunkCount)
	assert.Equal(t, 5, NewPlan("u", "d", 5, 16).ChunkCount)
}

func TestChooseMode(t *testing.T) {
	mode, n := ChooseMode(RemoteInfo{Size: LargeFileThreshold + 1, AcceptsRanges: true}, 6)
	assert.Equal(t, ModeChunked, mode)
	assert.Equal(t, 6, n)

	mode, n = ChooseMode(RemoteInfo{Size: LargeFileThreshold, AcceptsRanges: true}, 6)
	assert.Equal(t, ModeSingle, mode)
	assert.Equal(t, 1, n)

	mode, _ = ChooseMode(RemoteInfo{Size: 50 * LargeFileThreshold, AcceptsRanges: false}, 6)
	assert.Equal(t, ModeSingle, mode)

	mode, n = ChooseMode(RemoteInfo{Size: 50 * LargeFileThreshold, AcceptsRanges: true}, 0)
	assert.Equal(t, ModeChunked, mode)
	assert.Positive(t, n)
}

func TestProbe(t *testing.T) {
	content := randomBytes(4096)
	srv := newRangeServer(t, content)
	info, err := Probe(context.Background(), newClient(), srv.URL+"/blob")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.True(t, info.AcceptsRanges)
}

func TestProbeFollowsRedirect(t *testing.T) {
	content := randomBytes(2048)
	target := newRangeServer(t, content)
	redirect := httptest.NewServer(http.RedirectHandler(target.URL+"/final", http.StatusFound))
	defer redirect.Close()

	info, err := Probe(context.Background(), newClient(), redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, redirect.URL, info.URL)
	assert.Equal(t, target.URL+"/final", info.FinalURL)
	assert.True(t, info.AcceptsRanges)
}

func TestTransferResumesBehindRotatingRedirect(t *testing.T) {
	content := randomBytes(4000)
	target := newRangeServer(t, content)
	var sig atomic.Int64
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, fmt.Sprintf("%s/blob?sig=%d", target.URL, sig.Add(1)), http.StatusFound)
	}))
	defer front.Close()
	dest := filepath.Join(t.TempDir(), "FullNode.jar")

	target.setFailStart(2000)
	info, err := Probe(context.Background(), newClient(), front.URL+"/FullNode.jar")
	require.NoError(t, err)
	plan := NewPlan(info.URL, dest, info.Size, 4)
	require.Error(t, PerformMultiDownload(context.Background(), newClient(), plan, "", nil))
	firstRun := len(target.requested())
	record, err := LoadProgress(dest)
	require.NoError(t, err)
	require.NotNil(t, record)

	target.setFailStart(-1)
	info, err = Probe(context.Background(), newClient(), front.URL+"/FullNode.jar")
	require.NoError(t, err)
	plan = NewPlan(info.URL, dest, info.Size, 4)
	require.NoError(t, PerformMultiDownload(context.Background(), newClient(), plan, md5Hex(content), nil))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	second := target.requested()[firstRun:]
	assert.Contains(t, second, "bytes=2000-2999")
	for _, c := range record.Chunks {
		if c.Status == ChunkCompleted {
			assert.NotContains(t, second, fmt.Sprintf("bytes=%d-%d", c.Start, c.End))
		}
	}
}

func TestProbeWithoutSizeFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	_, err := Probe(context.Background(), newClient(), srv.URL)
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
}

func TestProbeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := Probe(context.Background(), newClient(), srv.URL)
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
}

func TestMultiDownloadMergesAndVerifies(t *testing.T) {
	content := randomBytes(3*1024*1024 + 17)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "snap.tgz")

	ch, total := drain()
	plan := NewPlan(srv.URL+"/blob", dest, int64(len(content)), 4)
	err := PerformMultiDownload(context.Background(), newClient(), plan, md5Hex(content), ch)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), total())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.NoFileExists(t, ProgressPath(dest))
	for i := 0; i < 4; i++ {
		assert.NoFileExists(t, ChunkPath(dest, i))
	}
	assert.Len(t, srv.requested(), 4)
}

func TestMultiDownloadResumeSkipsCompletedChunks(t *testing.T) {
	content := randomBytes(4000)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "snap.tgz")
	url := srv.URL + "/blob"

	plan := NewPlan(url, dest, int64(len(content)), 4)
	record := NewProgressRecord(plan)
	record.Chunks[0].Status = ChunkCompleted
	record.Chunks[1].Status = ChunkCompleted
	require.NoError(t, record.Save(dest))
	require.NoError(t, os.WriteFile(ChunkPath(dest, 0), content[0:1000], 0644))
	require.NoError(t, os.WriteFile(ChunkPath(dest, 1), content[1000:2000], 0644))
	require.NoError(t, os.WriteFile(ChunkPath(dest, 2), content[2000:2400], 0644))

	err := PerformMultiDownload(context.Background(), newClient(), plan, "", nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.ElementsMatch(t, []string{"bytes=2400-2999", "bytes=3000-3999"}, srv.requested())
}

func TestMultiDownloadDiscardsStaleRecord(t *testing.T) {
	content := randomBytes(4000)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "snap.tgz")

	stale := NewProgressRecord(NewPlan("http://old.example/blob", dest, 4000, 4))
	require.NoError(t, stale.Save(dest))
	for i := 0; i < 4; i++ {
		require.NoError(t, os.WriteFile(ChunkPath(dest, i), bytes.Repeat([]byte{'x'}, 300), 0644))
	}

	plan := NewPlan(srv.URL+"/blob", dest, int64(len(content)), 4)
	require.NoError(t, PerformMultiDownload(context.Background(), newClient(), plan, md5Hex(content), nil))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.ElementsMatch(t, []string{"bytes=0-999", "bytes=1000-1999", "bytes=2000-2999", "bytes=3000-3999"}, srv.requested())
}

func TestMultiDownloadFailurePersistsAndResumes(t *testing.T) {
	content := randomBytes(4000)
	srv := newRangeServer(t, content)
	srv.setFailStart(2000)
	dest := filepath.Join(t.TempDir(), "snap.tgz")
	plan := NewPlan(srv.URL+"/blob", dest, int64(len(content)), 4)

	err := PerformMultiDownload(context.Background(), newClient(), plan, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
	assert.Contains(t, err.Error(), "rerun")
	assert.NoFileExists(t, dest)

	record, err := LoadProgress(dest)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, ChunkPending, record.Chunks[2].Status)
	for _, c := range record.Chunks {
		assert.NotEqual(t, ChunkInFlight, c.Status)
	}

	firstRun := len(srv.requested())
	srv.setFailStart(-1)
	require.NoError(t, PerformMultiDownload(context.Background(), newClient(), plan, md5Hex(content), nil))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	second := srv.requested()[firstRun:]
	assert.Contains(t, second, "bytes=2000-2999")
	for _, c := range record.Chunks {
		if c.Status == ChunkCompleted {
			assert.NotContains(t, second, fmt.Sprintf("bytes=%d-%d", c.Start, c.End))
		}
	}
}

func TestMultiDownloadChecksumMismatchKeepsFile(t *testing.T) {
	content := randomBytes(4000)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "snap.tgz")
	plan := NewPlan(srv.URL+"/blob", dest, int64(len(content)), 2)

	err := PerformMultiDownload(context.Background(), newClient(), plan, "00000000000000000000000000000000", nil)
	var mismatch *utils.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, md5Hex(content), mismatch.Actual)
	assert.FileExists(t, dest)
}

func TestSimpleDownloadResumesWithOpenRange(t *testing.T) {
	content := randomBytes(5000)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "FullNode.jar")
	require.NoError(t, os.WriteFile(dest, content[:1234], 0644))

	ch, total := drain()
	err := PerformSimpleDownload(context.Background(), newClient(), srv.URL+"/jar", dest, int64(len(content)), md5Hex(content), ch)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), total())
	assert.Equal(t, []string{"bytes=1234-"}, srv.requested())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestSimpleDownloadRestartsWhenRangeIgnored(t *testing.T) {
	content := randomBytes(5000)
	srv := newRangeServer(t, content)
	srv.ignoreRng = true
	dest := filepath.Join(t.TempDir(), "FullNode.jar")
	require.NoError(t, os.WriteFile(dest, bytes.Repeat([]byte{'z'}, 100), 0644))

	err := PerformSimpleDownload(context.Background(), newClient(), srv.URL+"/jar", dest, int64(len(content)), md5Hex(content), nil)
	require.NoError(t, err)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestSimpleDownloadBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	dest := filepath.Join(t.TempDir(), "tron.conf")
	err := PerformSimpleDownload(context.Background(), newClient(), srv.URL, dest, 10, "", nil)
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
}

func TestHTTPDownloaderJob(t *testing.T) {
	content := randomBytes(2048)
	srv := newRangeServer(t, content)
	dest := filepath.Join(t.TempDir(), "tron.conf")

	var reported int64
	job := &utils.TronJob{
		ID:               "job-1",
		JobType:          "http",
		URL:              srv.URL + "/config.conf",
		OutputPath:       dest,
		Metadata:         map[string]any{"skipExisting": true},
		HTTPClientConfig: utils.HTTPClientConfig{Timeout: 5 * time.Second},
		ProgressFunc:     func(downloaded, total int64) { reported = downloaded },
	}
	d := &HTTPDownloader{}
	ctx := context.Background()
	require.NoError(t, d.ValidateJob(ctx, job))
	require.NoError(t, d.BuildJob(ctx, job))
	require.NoError(t, d.Download(ctx, job))
	assert.Equal(t, int64(len(content)), reported)

	assert.ErrorIs(t, d.ValidateJob(ctx, job), utils.ErrJobSkipped)
}

func TestHTTPDownloaderRejectsScheme(t *testing.T) {
	job := &utils.TronJob{URL: "ftp://example.com/x", OutputPath: "x", Metadata: map[string]any{}}
	assert.Error(t, (&HTTPDownloader{}).ValidateJob(context.Background(), job))
}

func TestLoadProgressRejectsUnknownStatus(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "snap.tgz")
	require.NoError(t, os.WriteFile(ProgressPath(dest), []byte(`{"url":"u","total_size":1,"chunk_size":1,"chunks":[{"index":0,"start":0,"end":0,"status":"exploded"}]}`), 0644))
	_, err := LoadProgress(dest)
	assert.Error(t, err)
}

func TestSidecarPaths(t *testing.T) {
	assert.Equal(t, "/data/tron-snapshot-20240101.progress", ProgressPath("/data/tron-snapshot-20240101.tgz"))
	assert.Equal(t, "/data/tron-snapshot-20240101.part3", ChunkPath("/data/tron-snapshot-20240101.tgz", 3))
}

func TestMultiDownloadRejectsIgnoredRange(t *testing.T) {
	content := randomBytes(64 * 1024)
	srv := newRangeServer(t, content)
	srv.ignoreRng = true
	dest := filepath.Join(t.TempDir(), "snap.tgz")

	ch, total := drain()
	err := PerformMultiDownload(context.Background(), newClient(), NewPlan(srv.URL, dest, int64(len(content)), 2), "", ch)
	total()
	assert.ErrorIs(t, err, utils.ErrDownloadFailed)
	assert.ErrorIs(t, err, utils.ErrRangeRequestsNotSupported)
	assert.FileExists(t, ProgressPath(dest))
	assert.NoFileExists(t, dest)
}

func TestCleanTransferState(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"snap.progress", "snap.part0", "snap.part12", "FullNode.jar", "notes.partial"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	removed, err := CleanTransferState(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "snap.progress"),
		filepath.Join(dir, "snap.part0"),
		filepath.Join(dir, "snap.part12"),
	}, removed)
	assert.FileExists(t, filepath.Join(dir, "FullNode.jar"))
	assert.FileExists(t, filepath.Join(dir, "notes.partial"))

	removed, err = CleanTransferState(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Empty(t, removed)
}
