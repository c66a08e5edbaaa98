package tronhttp

import (
	"context"
	"runtime"

	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// LargeFileThreshold is the size above which a range-capable source is
// fetched in parallel chunks.
const LargeFileThreshold = 10 * 1024 * 1024

type Mode int

const (
	ModeSingle Mode = iota
	ModeChunked
)

func (m Mode) String() string {
	switch m {
	case ModeChunked:
		return "chunked"
	case ModeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// Plan is the fixed partitioning of one transfer.
type Plan struct {
	URL        string
	Dest       string
	TotalSize  int64
	ChunkCount int
	ChunkSize  int64
}

// ChooseMode picks the strategy for a probed source. units is the number of
// processing units available; zero means runtime.GOMAXPROCS(0).
func ChooseMode(info RemoteInfo, units int) (Mode, int) {
	if units <= 0 {
		units = runtime.GOMAXPROCS(0)
	}
	if info.AcceptsRanges && info.Size > LargeFileThreshold {
		return ModeChunked, units
	}
	return ModeSingle, 1
}

// NewPlan splits total bytes into n contiguous ranges. The last range
// absorbs the remainder.
func NewPlan(url, dest string, total int64, n int) Plan {
	if n < 1 {
		n = 1
	}
	if int64(n) > total && total > 0 {
		n = int(total)
	}
	return Plan{
		URL:        url,
		Dest:       dest,
		TotalSize:  total,
		ChunkCount: n,
		ChunkSize:  total / int64(n),
	}
}

func (p Plan) Chunks() []ChunkRecord {
	chunks := make([]ChunkRecord, p.ChunkCount)
	for i := range chunks {
		start := int64(i) * p.ChunkSize
		end := start + p.ChunkSize - 1
		if i == p.ChunkCount-1 {
			end = p.TotalSize - 1
		}
		chunks[i] = ChunkRecord{Index: i, Start: start, End: end, Status: ChunkPending}
	}
	return chunks
}

// Transfer fetches a probed source into dest using the strategy ChooseMode
// selects, then verifies expectedMD5 when it is set.
func Transfer(ctx context.Context, client utils.HTTPDoer, info RemoteInfo, dest, expectedMD5 string, units int, progressCh chan<- int64) error {
	mode, n := ChooseMode(info, units)
	log := utils.GetLogger("http/transfer")
	log.Info().Str("url", info.URL).Str("dest", dest).Int64("size", info.Size).Str("mode", mode.String()).Int("chunks", n).Msg("starting transfer")
	switch mode {
	case ModeChunked:
		return PerformMultiDownload(ctx, client, NewPlan(info.URL, dest, info.Size, n), expectedMD5, progressCh)
	default:
		return PerformSimpleDownload(ctx, client, info.URL, dest, info.Size, expectedMD5, progressCh)
	}
}
