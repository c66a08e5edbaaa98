package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/process"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the node",
		Long:  "Start the node. Without --daemon tronctl stays in the foreground and stops the node on Ctrl-C or SIGTERM.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			settings := runnableSettings()
			sv := process.New(settings)
			ctx, cancel := signalContext()
			defer cancel()

			pid, err := sv.Start(ctx)
			if err != nil {
				exitOnError(err)
			}
			output.PrintSuccess(fmt.Sprintf("Node started (pid %d)", pid))
			output.PrintInfo("Node output: " + settings.LogFile)
			if daemon {
				return
			}
			if err := supervise(ctx, sv); err != nil {
				exitOnError(err)
			}
		},
	}

	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Return once the node is running")
	return cmd
}

// supervise blocks until the node exits or ctx is cancelled, in which case
// the node is stopped gracefully.
func supervise(ctx context.Context, sv *process.Supervisor) error {
	output.PrintInfo("Running in the foreground, press Ctrl-C to stop")
	select {
	case <-sv.Exited():
		// clear the stale record left by the dead node
		if err := sv.Stop(context.Background(), false); err != nil && !errors.Is(err, utils.ErrNodeNotRunning) {
			return err
		}
		return &utils.ProcessError{Op: "supervise node", Err: errors.New("node exited unexpectedly")}
	case <-ctx.Done():
		output.PrintInfo("Stopping node...")
		if err := sv.Stop(context.Background(), false); err != nil && !errors.Is(err, utils.ErrNodeNotRunning) {
			return err
		}
		output.PrintSuccess("Node stopped")
		return nil
	}
}

// runnableSettings loads and validates the settings and makes sure init
// left the artifacts the node needs.
func runnableSettings() config.Settings {
	settings := loadSettings()
	if err := settings.Validate(); err != nil {
		exitOnError(err)
	}
	for _, path := range []string{settings.FullNodeJar, settings.NodeConfig} {
		if _, err := os.Stat(path); err != nil {
			exitOnError(fmt.Errorf("%w: %s is missing", utils.ErrNotInitialized, path))
		}
	}
	return settings
}
