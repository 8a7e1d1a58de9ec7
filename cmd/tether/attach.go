package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/config"
	"github.com/tether-ci/tether/pkg/hold"
	"github.com/tether-ci/tether/pkg/shell"
	"github.com/tether-ci/tether/pkg/state"
)

var (
	attachNoEnv bool
	attachHost  string
	attachPort  int
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach an interactive shell to a waiting job",
	Long: `Announce the connection to the waiting job, keep it alive with periodic
keep-alives, and start an interactive shell in the captured failure
context. The shell starts in the recorded working directory with the
recorded environment merged in; the saved snapshot takes precedence over
asking the server for a fresh environment.`,
	RunE: runAttach,
}

func runAttach(cmd *cobra.Command, args []string) error {
	applyAttachOverrides(cmd)
	ctx := cmd.Context()

	stateDir, err := cfg.ResolveStateDir()
	if err != nil {
		return err
	}
	store := state.NewStore(stateDir)

	client, err := hold.NewClient(hold.ClientConfig{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.DialTimeout.Std(),
	})
	if err != nil {
		return err
	}
	// Best effort: a failed announcement never blocks the shell. The
	// operator may be attaching after the waiting job already timed out.
	_ = client.Notify(ctx, hold.MsgConnectionEstablished)

	heartCtx, cancel := context.WithCancel(ctx)
	client.StartHeartbeat(heartCtx, cfg.KeepAliveInterval.Std())

	snap := store.LoadOrEmpty()
	var overrides map[string]string
	if !attachNoEnv {
		if snap.Env != nil {
			overrides = snap.Env
		} else {
			overrides = client.RequestEnvState(ctx)
		}
	}

	sh := &shell.Session{
		Dir:           snap.Dir(),
		Env:           overrides,
		FailedCommand: snap.Command(),
	}
	runErr := sh.Run(ctx)
	cancel()

	// Best effort: the hold server also releases the job on its own
	// timeout once the keep-alives stop.
	_ = client.Notify(ctx, hold.MsgConnectionClosed)
	return runErr
}

func applyAttachOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = attachHost
	}
	if flags.Changed("port") {
		cfg.Port = attachPort
	}
}

func init() {
	d := config.Default()
	attachCmd.Flags().BoolVar(&attachNoEnv, "no-env", false, "Start the shell without the captured environment")
	attachCmd.Flags().StringVar(&attachHost, "host", d.Host, "Host the waiting job listens on")
	attachCmd.Flags().IntVar(&attachPort, "port", d.Port, "Port the waiting job listens on")
	rootCmd.AddCommand(attachCmd)
}
