package main

import (
	"github.com/spf13/cobra"
)

var trapCmd = &cobra.Command{
	Use:   "trap",
	Short: "Save execution state, then wait for a connection if a halt condition matches",
	Long: `Capture the execution state of the failing step and then run the same halt
evaluation as the wait command. Intended as the body of a shell ERR trap:

  trap 'tether trap --shell-command "$BASH_COMMAND"' ERR

Because the snapshot is written first, the on-error halt label sees the
fresh execution state and holds the job for a connection.`,
	RunE: runTrap,
}

func runTrap(cmd *cobra.Command, args []string) error {
	if err := runSave(cmd, args); err != nil {
		return err
	}
	return runWait(cmd, args)
}

func init() {
	registerSaveFlags(trapCmd)
	registerWaitFlags(trapCmd)
	rootCmd.AddCommand(trapCmd)
}
