package main

import (
	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/config"
	"github.com/tether-ci/tether/pkg/hold"
)

var (
	notifyHost string
	notifyPort int
)

var notifyCmd = &cobra.Command{
	Use:   "notify <message>",
	Short: "Send a single protocol message to a waiting job",
	Long: `Send one message to the waiting job's notification listener. The known
messages are connection_established, keep_alive, connection_closed, and
env_state_requested; anything else is delivered as-is and ignored by the
server.`,
	Args: cobra.ExactArgs(1),
	RunE: runNotify,
}

func runNotify(cmd *cobra.Command, args []string) error {
	applyNotifyOverrides(cmd)

	client, err := hold.NewClient(hold.ClientConfig{
		Addr:        cfg.Addr(),
		DialTimeout: cfg.DialTimeout.Std(),
	})
	if err != nil {
		return err
	}
	return client.Notify(cmd.Context(), args[0])
}

func applyNotifyOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = notifyHost
	}
	if flags.Changed("port") {
		cfg.Port = notifyPort
	}
}

func init() {
	d := config.Default()
	notifyCmd.Flags().StringVar(&notifyHost, "host", d.Host, "Host the waiting job listens on")
	notifyCmd.Flags().IntVar(&notifyPort, "port", d.Port, "Port the waiting job listens on")
	rootCmd.AddCommand(notifyCmd)
}
