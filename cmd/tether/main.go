package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/config"
	"github.com/tether-ci/tether/pkg/log"
)

var (
	configPath string
	logLevel   string

	// cfg is the effective configuration, loaded before any subcommand
	// runs. Subcommand flags overlay it where given.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "tether holds a CI job open for a remote debugging session.",
	Long: `tether pauses a CI job when a halt condition asks for it and keeps the
job alive only while a remote party is connected.

The job side runs 'tether wait' (or 'tether trap' from an ERR trap, which
saves the failing command's state first). The operator side runs
'tether attach', which announces itself, heartbeats, and drops into an
interactive shell reproducing the failed step's directory and
environment.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := log.DefaultConfig()
		if logLevel != "" {
			logCfg.Level = log.Level(logLevel)
		}
		if err := log.Init(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $TETHER_CONFIG when set)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default info; debug when runner debug logging is on)")
}

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
