package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tether-ci/tether/pkg/log"
	"github.com/tether-ci/tether/pkg/pathutil"
	"github.com/tether-ci/tether/pkg/redact"
	"github.com/tether-ci/tether/pkg/state"
)

// fallbackCommandEnvVar carries the failing command when the ERR trap
// invokes the save without an explicit --shell-command.
const fallbackCommandEnvVar = "BASH_COMMAND"

var (
	saveShellCommand string
	saveExecutionDir string
	saveEnv          bool
	saveDenylistRaw  string
	saveRedactMode   string
	saveOutDir       string
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Capture the failing command, working directory, and environment",
	Long: `Write the execution state of the current job step to the state directory
so an attached shell can reproduce the failure context.

The environment snapshot honors the variable denylist and, when enabled,
the value redaction rules. Disable environment capture entirely with
--save-env=false.`,
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	outDir, err := resolveStateDir()
	if err != nil {
		return err
	}
	store := state.NewStore(outDir)

	command := saveShellCommand
	if command == "" {
		command = os.Getenv(fallbackCommandEnvVar)
	}

	dir := saveExecutionDir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine the working directory: %w", err)
		}
	}

	// The flag is validated even when env capture is off, so a typo does
	// not pass silently.
	names, err := state.ParseNameList(saveDenylistRaw)
	if err != nil {
		return fmt.Errorf("invalid --env-vars-denylist: %w", err)
	}

	snap := state.Snapshot{
		Directory: state.String(dir),
		Env:       map[string]string{},
	}
	if command != "" {
		snap.ShellCommand = state.String(command)
	}

	if saveEnv {
		denylist := state.ResolveDenylist(state.BaseDenylist, state.DenylistFromEnv(), cfg.EnvDenylist, names)

		redactor, err := resolveRedactor(cmd)
		if err != nil {
			return err
		}

		env := state.FilteredEnviron(denylist)
		if redactor.Enabled() {
			env = redactor.Map(env)
		}
		snap.Env = env

		if err := store.SaveEnv(env); err != nil {
			log.Warnf("Could not save the environment file: %v", err)
		}
	}

	if err := store.SaveSnapshot(snap); err != nil {
		return err
	}
	log.Infof("Execution state saved to %s", store.Dir())
	return nil
}

// resolveStateDir picks the directory for the state files. The trap
// command runs save and wait in one process, so an --out-dir override
// has to steer both phases to the same directory: the wait probes for
// the snapshot the save just wrote and clears it on the way out.
func resolveStateDir() (string, error) {
	if saveOutDir != "" {
		return pathutil.ExpandHome(saveOutDir)
	}
	return cfg.ResolveStateDir()
}

// resolveRedactor builds the environment redactor, letting an explicit
// --redact flag override the TETHER_REDACT variable.
func resolveRedactor(cmd *cobra.Command) (*redact.Redactor, error) {
	if !cmd.Flags().Changed("redact") {
		return redact.FromEnv(), nil
	}
	mode := redact.Mode(saveRedactMode)
	switch mode {
	case redact.ModeOff, redact.ModeBasic, redact.ModeAggressive:
	default:
		return nil, fmt.Errorf("invalid --redact mode %q (valid: off, basic, aggressive)", saveRedactMode)
	}
	return redact.New(redact.Config{
		Mode:        mode,
		CustomKeys:  os.Getenv(redact.KeysEnvVar),
		Replacement: os.Getenv(redact.ReplacementEnvVar),
	}), nil
}

func registerSaveFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&saveShellCommand, "shell-command", "", "Failing command to record (default: the BASH_COMMAND variable)")
	cmd.Flags().StringVar(&saveExecutionDir, "execution-dir", "", "Working directory to record (default: the current directory)")
	cmd.Flags().BoolVar(&saveEnv, "save-env", true, "Capture the environment in the snapshot")
	cmd.Flags().StringVar(&saveDenylistRaw, "env-vars-denylist", "", "Comma-separated variable names to add to the denylist")
	cmd.Flags().StringVar(&saveRedactMode, "redact", "", "Redaction mode for captured values: off, basic, or aggressive")
	cmd.Flags().StringVar(&saveOutDir, "out-dir", "", "Directory to write the state files to (default: the state directory)")
}

func init() {
	registerSaveFlags(saveCmd)
	rootCmd.AddCommand(saveCmd)
}
