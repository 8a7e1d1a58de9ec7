package main

import (
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/config"
	"github.com/tether-ci/tether/pkg/halt"
	"github.com/tether-ci/tether/pkg/hold"
	"github.com/tether-ci/tether/pkg/labels"
	"github.com/tether-ci/tether/pkg/log"
	"github.com/tether-ci/tether/pkg/preflight"
	"github.com/tether-ci/tether/pkg/state"
)

var (
	waitForce         bool
	waitHost          string
	waitPort          int
	waitPreConnect    time.Duration
	waitReconnect     time.Duration
	waitWatchInterval time.Duration
	waitSkipPreflight bool
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Hold the job open for a remote connection when a halt condition asks for it",
	Long: `Check the halt conditions and, when one matches, keep the job alive until
the remote party disconnects or the inactivity timeout runs out.

Halt conditions in priority order: the --force flag, a true-like
HALT_DISPATCH_INPUT value, the on-error label combined with saved execution
state, the always label, and the on-retry label on a second or later run
attempt. The execution state directory is cleared when the wait ends,
whichever way it ends.`,
	RunE: runWait,
}

func runWait(cmd *cobra.Command, args []string) error {
	applyWaitOverrides(cmd)

	stateDir, err := resolveStateDir()
	if err != nil {
		return err
	}
	store := state.NewStore(stateDir)
	defer store.Clear()

	checker := preflight.NewChecker(preflight.Config{
		Skip:      waitSkipPreflight,
		StateDir:  stateDir,
		NeedShell: true,
		NeedToken: true,
	})
	if err := checker.Run(cmd.Context()); err != nil {
		return err
	}

	decision := halt.Decide(halt.Inputs{
		Force:           waitForce,
		DispatchInput:   os.Getenv(halt.DispatchEnvVar),
		FetchLabels:     labelFetcher(cmd.Context()),
		SnapshotPresent: store.SnapshotPresent(),
		SnapshotPath:    store.SnapshotPath(),
		RunAttempt:      os.Getenv(halt.RunAttemptEnvVar),
	})
	if !decision.Halt {
		log.Infof("No conditions for halting the workflow for connection were met")
		return nil
	}

	denylist := state.ResolveDenylist(state.BaseDenylist, state.DenylistFromEnv(), cfg.EnvDenylist)

	session := hold.NewSession(clock.New(), cfg.PreConnectTimeout.Std(), cfg.ReconnectTimeout.Std())
	server, err := hold.NewServer(hold.ServerConfig{
		Addr:          cfg.Addr(),
		Session:       session,
		WatchInterval: cfg.WatchInterval.Std(),
		EnvState: func() map[string]string {
			return state.FilteredEnviron(denylist)
		},
	})
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}

// labelFetcher defers the API round-trips until the halt decision
// actually needs labels. Retrieval failures mean no labels, not a failed
// wait: a job without a reachable API should still halt on the explicit
// conditions and proceed otherwise.
func labelFetcher(ctx context.Context) func() []string {
	return func() []string {
		fetcher := labels.NewFetcher(os.Getenv(labels.TokenEnvVar))
		names, err := fetcher.Retrieve(ctx)
		if err != nil {
			log.Errorf("Could not retrieve PR labels: %v", err)
			return nil
		}
		return names
	}
}

func applyWaitOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = waitHost
	}
	if flags.Changed("port") {
		cfg.Port = waitPort
	}
	if flags.Changed("pre-connect-timeout") {
		cfg.PreConnectTimeout = config.Duration(waitPreConnect)
	}
	if flags.Changed("reconnect-timeout") {
		cfg.ReconnectTimeout = config.Duration(waitReconnect)
	}
	if flags.Changed("watch-interval") {
		cfg.WatchInterval = config.Duration(waitWatchInterval)
	}
}

func registerWaitFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().BoolVar(&waitForce, "force", false, "Wait for a connection regardless of halt conditions")
	cmd.Flags().StringVar(&waitHost, "host", d.Host, "Host to listen on for connection notifications")
	cmd.Flags().IntVar(&waitPort, "port", d.Port, "Port to listen on for connection notifications")
	cmd.Flags().DurationVar(&waitPreConnect, "pre-connect-timeout", d.PreConnectTimeout.Std(), "How long to wait for the first connection")
	cmd.Flags().DurationVar(&waitReconnect, "reconnect-timeout", d.ReconnectTimeout.Std(), "Inactivity budget once a connection has been seen")
	cmd.Flags().DurationVar(&waitWatchInterval, "watch-interval", d.WatchInterval.Std(), "How often the watcher reports and checks the deadline")
	cmd.Flags().BoolVar(&waitSkipPreflight, "skip-preflight", false, "Skip preflight checks")
}

func init() {
	registerWaitFlags(waitCmd)
	rootCmd.AddCommand(waitCmd)
}
