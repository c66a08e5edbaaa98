package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chulingera2025/tron-launcher/internal/config"
	"github.com/chulingera2025/tron-launcher/internal/output"
	"github.com/chulingera2025/tron-launcher/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	configDir        string
	dataDir          string
	logDir           string
	pidFile          string
	debug            bool
	timeout          time.Duration
	userAgent        string
	proxyURL         string
	headers          []string
	globalHTTPConfig utils.HTTPClientConfig
	paths            config.Paths
)

var TronctlVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "tronctl",
	Short:         "tronctl installs and supervises a java-tron FullNode",
	Version:       TronctlVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		paths = config.Paths{
			ConfigDir: configDir,
			DataDir:   dataDir,
			LogDir:    logDir,
			PIDFile:   pidFile,
		}
		utils.InitLogger(debug, toolLogFile(paths))
		log := utils.GetLogger("cmd")
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			log.Debug().Msgf(format, args...)
		})); err != nil {
			log.Debug().Err(err).Msg("could not align GOMAXPROCS with the cpu quota")
		}

		// credentials in the proxy URL are passed separately
		proxy, proxyUser, proxyPass := proxyURL, "", ""
		if parsed, err := u.Parse(proxyURL); err == nil && proxyURL != "" && parsed.User != nil {
			proxyUser = parsed.User.Username()
			proxyPass, _ = parsed.User.Password()
			parsed.User = nil
			proxy = parsed.String()
		}
		globalHTTPConfig = utils.HTTPClientConfig{
			Timeout:       timeout,
			ProxyURL:      proxy,
			ProxyUsername: proxyUser,
			ProxyPassword: proxyPass,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		}
	},
}

// toolLogFile returns the rotated log path, or "" when the log directory is
// not writable (e.g. status run by an unprivileged user).
func toolLogFile(p config.Paths) string {
	path := p.ToolLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return ""
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return ""
	}
	f.Close()
	return path
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	defaults := config.DefaultPaths()
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaults.ConfigDir, "Directory holding tronctl.toml and tron.conf")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaults.DataDir, "Directory holding FullNode.jar and chain data")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", defaults.LogDir, "Directory for node and tronctl logs")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", defaults.PIDFile, "PID file of the supervised node")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", time.Minute, "Connection and response-header timeout (eg. 5s, 2m)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent for downloads")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (credentials may be embedded)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Extra header for mirror and GitHub requests ('Key: Value'); repeatable")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newSystemdCmd())
	rootCmd.AddCommand(newCheckCmd())
}

// loadSettings reads tronctl.toml; an explicit --pid-file wins over the
// stored one.
func loadSettings() config.Settings {
	s, err := config.Load(paths.SettingsPath())
	if err != nil {
		exitOnError(err)
	}
	if rootCmd.PersistentFlags().Changed("pid-file") {
		s.PIDFile = paths.PIDFile
	}
	return s
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitOnError(err error) {
	log := utils.GetLogger("cmd")
	log.Error().Err(err).Msg("command failed")
	output.PrintError(err.Error())
	switch {
	case errors.Is(err, utils.ErrDownloadFailed):
		output.PrintInfo("Partial progress is kept; rerun the same command to resume.")
	case errors.Is(err, utils.ErrStartInProgress):
		output.PrintInfo("Wait for the other tronctl invocation to finish and retry.")
	}
	os.Exit(1)
}
