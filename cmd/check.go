package cmd

import (
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var javaPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the host preflight checks",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signalContext()
			defer cancel()
			if err := runPreflight(ctx, javaPath, paths.DataDir); err != nil {
				exitOnError(err)
			}
			output.PrintSuccess("Host is ready for java-tron")
		},
	}

	cmd.Flags().StringVar(&javaPath, "java", "java", "Java binary to check")
	return cmd
}
