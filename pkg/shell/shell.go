// Package shell launches the interactive shell an operator lands in
// after attaching to a held job.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/tether-ci/tether/pkg/log"
)

// Session describes one interactive shell launch.
type Session struct {
	// Dir is the working directory for the shell. Empty means the
	// current directory.
	Dir string

	// Env holds variables layered over the inherited environment.
	Env map[string]string

	// FailedCommand, when set, is echoed before the shell starts so the
	// operator sees what they are here to debug.
	FailedCommand string

	// Out is where the failed command banner goes. Defaults to stdout.
	Out io.Writer
}

// Run starts bash -i with the session's directory and environment and
// blocks until the operator exits it. The shell's own exit status is not
// an error; only failing to run it is.
func (s *Session) Run(ctx context.Context) error {
	out := s.Out
	if out == nil {
		out = os.Stdout
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		log.Warnf("Standard input is not a terminal. The interactive shell may not behave correctly.")
	}

	if s.FailedCommand != "" {
		fmt.Fprintf(out, "Failed command was:\n%s\n\n", s.FailedCommand)
	}

	cmd := exec.CommandContext(ctx, "bash", "-i")
	cmd.Dir = s.Dir
	cmd.Env = mergeEnviron(os.Environ(), s.Env)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}

	// ^C typed at the prompt already reaches bash through the terminal's
	// foreground group; swallowing it here keeps the wrapper alive. An
	// external SIGTERM is passed on so the shell can wind down.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigc {
			if sig == syscall.SIGTERM {
				_ = cmd.Process.Signal(sig)
			}
		}
	}()

	err := cmd.Wait()
	signal.Stop(sigc)
	close(sigc)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Debugf("shell exited with status %d", exitErr.ExitCode())
			return nil
		}
		return fmt.Errorf("failed to run shell: %w", err)
	}
	return nil
}

// mergeEnviron layers overrides on top of base. Overridden keys keep
// their position in base; new keys are appended in sorted order so the
// result is deterministic.
func mergeEnviron(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	used := make(map[string]bool, len(overrides))
	merged := make([]string, 0, len(base)+len(overrides))
	for _, entry := range base {
		key, _, ok := strings.Cut(entry, "=")
		if ok {
			if value, found := overrides[key]; found {
				merged = append(merged, key+"="+value)
				used[key] = true
				continue
			}
		}
		merged = append(merged, entry)
	}

	remaining := make([]string, 0, len(overrides))
	for key := range overrides {
		if !used[key] {
			remaining = append(remaining, key)
		}
	}
	sort.Strings(remaining)
	for _, key := range remaining {
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}
