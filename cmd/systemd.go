package cmd

import (
	"fmt"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/systemd"
	"github.com/spf13/cobra"
)

func newSystemdCmd() *cobra.Command {
	var (
		force     bool
		unitPath  string
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "systemd",
		Short: "Install a systemd unit for the node",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			settings := loadSettings()
			if printOnly {
				unit, err := systemd.Render(settings)
				if err != nil {
					exitOnError(err)
				}
				fmt.Print(unit)
				return
			}
			written, err := systemd.Install(unitPath, settings, force)
			if err != nil {
				exitOnError(err)
			}
			if !written {
				output.PrintInfo("Unit already exists at " + unitPath + ", use --force to regenerate it")
				return
			}
			output.PrintSuccess("Unit written to " + unitPath)
			output.PrintSteps("Enable it with:", systemd.EnableHint())
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing unit")
	cmd.Flags().StringVar(&unitPath, "unit-path", config.SystemdUnitPath, "Unit file location")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the unit instead of installing it")
	return cmd
}
