package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tether-ci/tether/pkg/log"
	"github.com/tether-ci/tether/pkg/pathutil"
)

const (
	// DefaultDirName is the state directory created under $HOME.
	DefaultDirName = ".workflow_state"

	// SnapshotFileName holds the JSON execution snapshot.
	SnapshotFileName = "execution_state.json"

	// EnvFileName holds the captured environment as KEY='value' lines,
	// sourceable from a POSIX shell.
	EnvFileName = "env.txt"
)

// ErrNoSnapshot is returned by Load when no snapshot file exists.
var ErrNoSnapshot = errors.New("no execution snapshot")

// Store reads and writes execution state files under a single directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// SnapshotPath returns the path of the execution snapshot file.
func (s *Store) SnapshotPath() string {
	return filepath.Join(s.dir, SnapshotFileName)
}

// EnvPath returns the path of the environment file.
func (s *Store) EnvPath() string {
	return filepath.Join(s.dir, EnvFileName)
}

// SaveSnapshot writes the execution snapshot as indented JSON.
//
// Failure to create the state directory is returned as an error. A failure
// to write the file itself is only logged: a job that cannot persist its
// state should still proceed to the hold phase.
func (s *Store) SaveSnapshot(snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.dir, err)
	}
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		log.Warnf("failed to encode execution snapshot: %v", err)
		return nil
	}
	if err := os.WriteFile(s.SnapshotPath(), data, 0o644); err != nil {
		log.Warnf("failed to write %s: %v", s.SnapshotPath(), err)
	}
	return nil
}

// SaveEnv writes the environment file as sorted KEY='value' lines. Values
// are single-quoted so the file can be sourced by a POSIX shell. The same
// write policy as SaveSnapshot applies.
func (s *Store) SaveEnv(env map[string]string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", s.dir, err)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(shellQuote(env[k]))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(s.EnvPath(), []byte(b.String()), 0o644); err != nil {
		log.Warnf("failed to write %s: %v", s.EnvPath(), err)
	}
	return nil
}

// Load reads the execution snapshot. It returns ErrNoSnapshot when the file
// does not exist and a wrapped error when it cannot be read or parsed.
func (s *Store) Load() (Snapshot, error) {
	data, err := os.ReadFile(s.SnapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read execution snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse execution snapshot: %w", err)
	}
	return snap, nil
}

// LoadOrEmpty reads the execution snapshot, treating a missing or broken
// file as an empty snapshot. The attach flow uses it: debugging proceeds
// without the reproduced context rather than failing.
func (s *Store) LoadOrEmpty() Snapshot {
	snap, err := s.Load()
	switch {
	case errors.Is(err, ErrNoSnapshot):
		log.Debugf("Did not find the execution state file at %s", s.SnapshotPath())
	case err != nil:
		log.Errorf("Could not parse the execution state file: %v. Continuing without reproducing the environment...", err)
	default:
		log.Debugf("Found the execution state file at %s", s.SnapshotPath())
	}
	return snap
}

// SnapshotPresent reports whether an execution snapshot file exists.
func (s *Store) SnapshotPresent() bool {
	_, err := os.Stat(s.SnapshotPath())
	return err == nil
}

// Clear removes the state directory and everything under it. It never
// fails the caller: the hold phase runs it unconditionally on the way out,
// and a leftover directory is preferable to masking the real exit path.
func (s *Store) Clear() {
	if s.dir == "" || pathutil.IsFilesystemRoot(s.dir) {
		log.Warnf("refusing to delete state directory %q", s.dir)
		return
	}
	log.Debugf("Deleting execution state data...")
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		log.Debugf("Did not find any execution state data to delete")
		return
	}
	if err := os.RemoveAll(s.dir); err != nil {
		log.Warnf("failed to delete %s: %v", s.dir, err)
	}
}

// FilteredEnviron returns the current process environment minus the names
// in denylist.
func FilteredEnviron(denylist []string) map[string]string {
	blocked := make(map[string]struct{}, len(denylist))
	for _, name := range denylist {
		blocked[name] = struct{}{}
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, skip := blocked[k]; skip {
			continue
		}
		env[k] = v
	}
	return env
}

// shellQuote wraps v in single quotes, escaping embedded single quotes the
// POSIX way: close the quote, emit \', reopen.
func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
