package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/chulingera2025/tron-launcher/internal/logtail"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		console bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the node log",
		Long:  "Show java-tron's own log (logs/tron.log under the data dir). --console shows the captured stdout/stderr instead.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			path := paths.NodeRuntimeLog()
			if console {
				path = loadSettings().LogFile
			}
			tail, offset, err := logtail.Tail(path, lines)
			if errors.Is(err, os.ErrNotExist) && follow {
				output.PrintInfo("Waiting for " + path + " to appear...")
			} else if err != nil {
				exitOnError(err)
			}
			for _, line := range tail {
				fmt.Println(line)
			}
			if !follow {
				return
			}
			ctx, cancel := signalContext()
			defer cancel()
			if err := logtail.Follow(ctx, path, offset, os.Stdout); err != nil {
				exitOnError(err)
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of trailing lines to show")
	cmd.Flags().BoolVar(&console, "console", false, "Show the node's captured console output")
	return cmd
}
