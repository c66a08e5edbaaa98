package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/chulingera2025/tron-launcher/internal/config"
	tronhttp "github.com/chulingera2025/tron-launcher/internal/downloaders/http"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/process"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	var (
		yes       bool
		purgeData bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove everything tronctl installed",
		Long:  "Remove config, logs, the PID file, FullNode.jar and interrupted download state. Chain data is kept unless --purge-data is given.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			pid, alive, err := process.New(cleanSettings()).Status()
			if err == nil && alive {
				exitOnError(&utils.AlreadyRunningError{PID: pid})
			}

			targets := []string{paths.ConfigDir, paths.LogDir, paths.PIDFile, paths.JarPath()}
			if purgeData {
				targets = append(targets, paths.DataDir)
			}
			if !yes {
				output.PrintWarning("This removes:")
				for _, t := range targets {
					fmt.Println("  " + t)
				}
				if !purgeData {
					output.PrintInfo("Chain data in " + paths.ChainDataDir() + " is kept (use --purge-data to remove it).")
				}
				output.PrintInfo("Rerun with --yes to proceed.")
				return
			}

			log := utils.GetLogger("cmd/clean")
			if !purgeData {
				removed, err := tronhttp.CleanTransferState(paths.DataDir)
				for _, r := range removed {
					log.Info().Str("path", r).Msg("removed download state")
				}
				if err != nil {
					exitOnError(err)
				}
			}
			for _, t := range targets {
				if err := os.RemoveAll(t); err != nil && !errors.Is(err, os.ErrNotExist) {
					exitOnError(fmt.Errorf("failed to remove %s: %w", t, err))
				}
				log.Info().Str("path", t).Msg("removed")
				output.PrintSuccess("Removed " + t)
			}
			output.PrintSuccess("Clean complete")
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not just list, actually remove")
	cmd.Flags().BoolVar(&purgeData, "purge-data", false, "Also remove the whole data directory including chain data")
	return cmd
}

// cleanSettings tolerates a missing settings file; clean must work on a
// half-initialized host.
func cleanSettings() config.Settings {
	s, err := config.Load(paths.SettingsPath())
	if err != nil {
		s = config.DefaultSettings(paths)
	}
	if rootCmd.PersistentFlags().Changed("pid-file") {
		s.PIDFile = paths.PIDFile
	}
	return s
}
