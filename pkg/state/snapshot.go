// Package state persists and restores the execution state of a CI job: the
// last failing command, the working directory, and a filtered copy of the
// environment. The attached debugging session uses it to reproduce the
// failure context.
package state

// Snapshot is the execution state captured when a command fails.
//
// A nil field means "not captured, do not override" on the restoring side.
// A non-nil empty Env means the environment was captured empty and should
// override with nothing. encoding/json preserves the distinction: a missing
// or null key unmarshals to nil, "{}" to an empty non-nil map.
type Snapshot struct {
	ShellCommand *string           `json:"shell_command"`
	Directory    *string           `json:"directory"`
	Env          map[string]string `json:"env"`
}

// Empty reports whether nothing was captured.
func (s Snapshot) Empty() bool {
	return s.ShellCommand == nil && s.Directory == nil && s.Env == nil
}

// Command returns the captured shell command, or "" when absent.
func (s Snapshot) Command() string {
	if s.ShellCommand == nil {
		return ""
	}
	return *s.ShellCommand
}

// Dir returns the captured working directory, or "" when absent.
func (s Snapshot) Dir() string {
	if s.Directory == nil {
		return ""
	}
	return *s.Directory
}

// String is a pointer-of helper for building snapshots.
func String(s string) *string {
	return &s
}
