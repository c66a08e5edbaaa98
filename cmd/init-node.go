package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/environment"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/scheduler"
	"github.com/chulingera2025/tron-launcher/internal/systemd"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		snapshotType string
		version      string
		skipChecks   bool
		verifyMD5    bool
		minHeap      string
		maxHeap      string
		forceUnit    bool
		unitPath     string
		connections  int
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Check the host, download java-tron and prepare it to run",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()

			minHeap, maxHeap = strings.ToLower(minHeap), strings.ToLower(maxHeap)
			snapshotType = strings.ToLower(snapshotType)
			for _, check := range []error{
				config.ValidateHeap(minHeap),
				config.ValidateHeap(maxHeap),
				config.ValidateSnapshotType(snapshotType),
			} {
				if check != nil {
					exitOnError(check)
				}
			}

			javaPath := "java"
			if !skipChecks {
				output.PrintHeader("Checking environment")
				if err := runPreflight(ctx, javaPath, paths.DataDir); err != nil {
					exitOnError(err)
				}
			}
			if resolved, err := exec.LookPath(javaPath); err == nil {
				javaPath = resolved
			}

			if err := paths.EnsureDirs(); err != nil {
				exitOnError(err)
			}

			output.PrintHeader("Provisioning node")
			jobs := provisioningJobs(snapshotType, version, verifyMD5, connections)
			if err := scheduler.Run(ctx, jobs, 2); err != nil {
				exitOnError(err)
			}

			settings := config.DefaultSettings(paths)
			settings.JavaPath = javaPath
			settings.JVMMinHeap = minHeap
			settings.JVMMaxHeap = maxHeap
			settings.SnapshotType = snapshotType
			if tag, _ := jobs[0].Metadata["tagName"].(string); tag != "" {
				settings.NodeVersion = tag
			} else if previous, err := config.Load(paths.SettingsPath()); err == nil {
				settings.NodeVersion = previous.NodeVersion
			}
			if err := config.Save(paths.SettingsPath(), settings); err != nil {
				exitOnError(err)
			}
			output.PrintSuccess("Settings saved to " + paths.SettingsPath())

			written, err := systemd.Install(unitPath, settings, forceUnit)
			if err != nil {
				output.PrintWarning(fmt.Sprintf("systemd unit not installed: %v", err))
			} else if written {
				output.PrintSuccess("systemd unit written to " + unitPath)
			} else {
				output.PrintInfo("systemd unit already present at " + unitPath + " (use --force-unit to replace)")
			}

			output.PrintSuccess("Initialization complete")
			output.PrintSteps("Next steps:", []string{"tronctl start --daemon", "tronctl status"})
		},
	}

	cmd.Flags().StringVar(&snapshotType, "snapshot", config.SnapshotNone, "Snapshot to restore: none, lite or full")
	cmd.Flags().StringVar(&version, "version", "", "java-tron release tag (default latest)")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip the privilege, Java, memory and disk checks")
	cmd.Flags().BoolVar(&verifyMD5, "verify-md5", false, "Download the snapshot to disk and verify its MD5 before extracting")
	cmd.Flags().StringVar(&minHeap, "min-heap", config.DefaultMinHeap, "JVM minimum heap (eg. 8g, 8192m)")
	cmd.Flags().StringVar(&maxHeap, "max-heap", config.DefaultMaxHeap, "JVM maximum heap (eg. 12g)")
	cmd.Flags().BoolVar(&forceUnit, "force-unit", false, "Overwrite an existing systemd unit")
	cmd.Flags().StringVar(&unitPath, "unit-path", config.SystemdUnitPath, "Where to install the systemd unit")
	cmd.Flags().IntVarP(&connections, "connections", "c", 0, "Parallel connections for large downloads (default: available CPUs)")
	return cmd
}

// provisioningJobs lists the downloads of init; the jar job is always first.
func provisioningJobs(snapshotType, version string, verify bool, connections int) []utils.TronJob {
	jobs := []utils.TronJob{
		{
			Name:             config.FullNodeJar,
			JobType:          "github-release",
			URL:              config.GitHubOwner + "/" + config.GitHubRepo,
			OutputPath:       paths.JarPath(),
			Connections:      connections,
			HTTPClientConfig: globalHTTPConfig,
			Metadata: map[string]any{
				"version":           version,
				"downloadURLFormat": config.ReleaseDownloadURL,
			},
		},
		{
			Name:             config.NodeConfigFile,
			JobType:          "http",
			URL:              config.NodeConfigURL,
			OutputPath:       paths.NodeConfigPath(),
			Connections:      1,
			HTTPClientConfig: globalHTTPConfig,
			Metadata:         map[string]any{"skipExisting": true},
		},
	}
	if snapshotType != config.SnapshotNone {
		jobs = append(jobs, utils.TronJob{
			Name:             snapshotType + " snapshot",
			JobType:          "snapshot",
			Connections:      connections,
			HTTPClientConfig: globalHTTPConfig,
			Metadata: map[string]any{
				"kind":        snapshotType,
				"dataDir":     paths.ChainDataDir(),
				"databaseDir": paths.DatabaseDir(),
				"archiveDir":  paths.DataDir,
				"verify":      verify,
			},
		})
	}
	return jobs
}

func runPreflight(ctx context.Context, javaPath, dir string) error {
	report, err := environment.NewChecker(javaPath, existingAncestor(dir)).Run(ctx)
	if err != nil {
		return err
	}
	output.PrintSuccess("Running as root")
	output.PrintSuccess("Java " + report.JavaVersion)
	for _, w := range report.Warnings {
		output.PrintWarning(w)
	}
	if len(report.Warnings) == 0 {
		output.PrintSuccess(fmt.Sprintf("%d GB memory, %d GB free disk", report.MemoryGB, report.DiskFreeGB))
	}
	return nil
}

func existingAncestor(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
