package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/health"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/process"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	psprocess "github.com/shirou/gopsutil/process"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type processInfo struct {
	RSSBytes uint64  `json:"rss_bytes" yaml:"rss_bytes"`
	CPU      float64 `json:"cpu_percent" yaml:"cpu_percent"`
	Uptime   string  `json:"uptime" yaml:"uptime"`
}

type syncInfo struct {
	Syncing bool     `json:"syncing" yaml:"syncing"`
	Heights []uint64 `json:"heights" yaml:"heights"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type statusReport struct {
	State       string        `json:"state" yaml:"state"`
	PID         int           `json:"pid,omitempty" yaml:"pid,omitempty"`
	NodeVersion string        `json:"node_version,omitempty" yaml:"node_version,omitempty"`
	RPCEndpoint string        `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	Health      health.Sample `json:"health" yaml:"health"`
	Process     *processInfo  `json:"process,omitempty" yaml:"process,omitempty"`
	Sync        *syncInfo     `json:"sync,omitempty" yaml:"sync,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var (
		verbose bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the node runs, answers RPC and is syncing",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			format = strings.ToLower(format)
			if format != "text" && format != "json" && format != "yaml" {
				exitOnError(utils.ConfigErrorf("unknown output format %q (text, json or yaml)", format))
			}
			settings := loadSettings()
			ctx, cancel := signalContext()
			defer cancel()

			pid, _, err := process.New(settings).Status()
			if err != nil {
				log := utils.GetLogger("cmd/status")
				log.Warn().Err(err).Msg("unreadable pid file")
			}
			checker := health.NewChecker(settings.RPCEndpoint, utils.NewTronHTTPClient(utils.HTTPClientConfig{Timeout: config.RPCTimeout}))
			report := statusReport{
				State:       "stopped",
				NodeVersion: settings.NodeVersion,
				RPCEndpoint: checker.Endpoint,
				Health:      checker.Check(ctx, pid),
			}
			if report.Health.Alive {
				report.State = "running"
				report.PID = pid
				if verbose {
					report.Process = inspectProcess(pid)
					if report.Health.RPCResponding {
						if format == "text" {
							output.PrintInfo(fmt.Sprintf("Sampling block height for %s...", time.Duration(config.SyncSamples-1)*config.SyncInterval))
						}
						syncing, heights, err := checker.CheckSyncing(ctx)
						report.Sync = &syncInfo{Syncing: syncing, Heights: heights}
						if err != nil {
							report.Sync.Error = err.Error()
						}
					}
				}
			}

			switch format {
			case "json":
				data, _ := json.MarshalIndent(report, "", "  ")
				fmt.Println(string(data))
			case "yaml":
				data, err := yaml.Marshal(report)
				if err != nil {
					exitOnError(err)
				}
				fmt.Print(string(data))
			default:
				printStatus(report)
			}
			if !report.Health.Alive {
				os.Exit(3)
			}
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include process resources and a sync check (takes ~10s)")
	cmd.Flags().StringVarP(&format, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func inspectProcess(pid int) *processInfo {
	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	info := &processInfo{}
	if mem, err := p.MemoryInfo(); err == nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		info.CPU = cpu
	}
	if created, err := p.CreateTime(); err == nil {
		info.Uptime = time.Since(time.UnixMilli(created)).Round(time.Second).String()
	}
	return info
}

func printStatus(r statusReport) {
	output.PrintHeader("java-tron node")
	if !r.Health.Alive {
		output.PrintKV("State", output.FError("stopped"))
		return
	}
	output.PrintKV("State", output.FSuccess("running"))
	output.PrintKV("PID", fmt.Sprint(r.PID))
	if r.NodeVersion != "" {
		output.PrintKV("Version", r.NodeVersion)
	}
	if r.Health.RPCResponding {
		output.PrintKV("RPC", output.FSuccess("responding"))
		output.PrintKV("Block height", fmt.Sprint(r.Health.BlockHeight))
	} else {
		output.PrintKV("RPC", output.FWarning("not responding (node may still be starting)"))
	}
	if r.Process != nil {
		output.PrintKV("Memory", utils.FormatBytes(r.Process.RSSBytes))
		output.PrintKV("CPU", fmt.Sprintf("%.1f%%", r.Process.CPU))
		output.PrintKV("Uptime", r.Process.Uptime)
	}
	if r.Sync != nil {
		switch {
		case r.Sync.Error != "":
			output.PrintKV("Syncing", output.FWarning("unknown: "+r.Sync.Error))
		case r.Sync.Syncing:
			output.PrintKV("Syncing", output.FSuccess(fmt.Sprintf("yes (%v)", r.Sync.Heights)))
		default:
			output.PrintKV("Syncing", output.FWarning(fmt.Sprintf("no (%v)", r.Sync.Heights)))
		}
	}
}
