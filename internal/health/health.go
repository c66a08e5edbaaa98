package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/process"
	"github.com/chulingera2025/tron-launcher/internal/utils"
)

// Sample is one observation of the node.
type Sample struct {
	Alive         bool   `json:"process_alive" yaml:"process_alive"`
	RPCResponding bool   `json:"rpc_responding" yaml:"rpc_responding"`
	BlockHeight   uint64 `json:"block_height" yaml:"block_height"`
}

// nowBlock mirrors the getnowblock reply. Pointers tell a missing field
// apart from block zero; the node answers {"Error": ...} with status 200
// while its store is not ready.
type nowBlock struct {
	BlockHeader *struct {
		RawData *struct {
			Number    *uint64 `json:"number"`
			Timestamp int64   `json:"timestamp"`
		} `json:"raw_data"`
	} `json:"block_header"`
	Error string `json:"Error"`
}

// Checker queries the node's wallet RPC.
type Checker struct {
	Endpoint string
	Client   utils.HTTPDoer
	Timeout  time.Duration
	Interval time.Duration
	Samples  int
	Alive    func(pid int) bool
}

func NewChecker(endpoint string, client utils.HTTPDoer) *Checker {
	if endpoint == "" {
		endpoint = config.DefaultRPCEndpoint
	}
	return &Checker{
		Endpoint: endpoint,
		Client:   client,
		Timeout:  config.RPCTimeout,
		Interval: config.SyncInterval,
		Samples:  config.SyncSamples,
		Alive:    process.IsAlive,
	}
}

// Check never fails: an unreachable RPC only clears RPCResponding, and a dead
// process is reported without touching the network.
func (c *Checker) Check(ctx context.Context, pid int) Sample {
	log := utils.GetLogger("health/check")
	if !c.Alive(pid) {
		return Sample{}
	}
	height, err := c.CurrentHeight(ctx)
	if err != nil {
		log.Debug().Err(err).Int("pid", pid).Msg("rpc not responding")
		return Sample{Alive: true}
	}
	return Sample{Alive: true, RPCResponding: true, BlockHeight: height}
}

// CurrentHeight returns the number of the node's head block.
func (c *Checker) CurrentHeight(ctx context.Context) (uint64, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: err}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	var block nowBlock
	if err := json.NewDecoder(resp.Body).Decode(&block); err != nil {
		return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: fmt.Errorf("decode block: %w", err)}
	}
	if block.BlockHeader == nil || block.BlockHeader.RawData == nil || block.BlockHeader.RawData.Number == nil {
		if block.Error != "" {
			return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: fmt.Errorf("node error: %s", block.Error)}
		}
		return 0, &utils.RPCError{Endpoint: c.Endpoint, Err: errors.New("reply has no block_header.raw_data.number")}
	}
	return *block.BlockHeader.RawData.Number, nil
}

// CheckSyncing samples the head block Samples times, Interval apart, and
// reports whether it grew between every pair of samples.
func (c *Checker) CheckSyncing(ctx context.Context) (bool, []uint64, error) {
	log := utils.GetLogger("health/sync")
	heights := make([]uint64, 0, c.Samples)
	for i := 0; i < c.Samples; i++ {
		if i > 0 {
			t := time.NewTimer(c.Interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return false, heights, ctx.Err()
			case <-t.C:
			}
		}
		h, err := c.CurrentHeight(ctx)
		if err != nil {
			return false, heights, err
		}
		heights = append(heights, h)
	}
	syncing := IsSyncing(heights)
	if syncing {
		log.Info().Uint64("from", heights[0]).Uint64("to", heights[len(heights)-1]).Msg("node is syncing")
	}
	return syncing, heights, nil
}

// IsSyncing is true when every height is strictly greater than the one before.
// Fewer than two heights prove nothing.
func IsSyncing(heights []uint64) bool {
	if len(heights) < 2 {
		return false
	}
	for i := 1; i < len(heights); i++ {
		if heights[i] <= heights[i-1] {
			return false
		}
	}
	return true
}
