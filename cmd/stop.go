package cmd

import (
	"errors"
	"fmt"

	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/process"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the node (SIGTERM, then SIGKILL after 30s)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()
			err := process.New(loadSettings()).Stop(ctx, force)
			if errors.Is(err, utils.ErrNodeNotRunning) {
				output.PrintWarning("Node is not running")
				return
			}
			if err != nil {
				exitOnError(err)
			}
			output.PrintSuccess("Node stopped")
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Send SIGKILL immediately")
	return cmd
}

func newRestartCmd() *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the node if it runs, then start it again",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			settings := runnableSettings()
			sv := process.New(settings)
			ctx, cancel := signalContext()
			defer cancel()

			pid, err := sv.Restart(ctx)
			if err != nil {
				exitOnError(err)
			}
			output.PrintSuccess(fmt.Sprintf("Node restarted (pid %d)", pid))
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
