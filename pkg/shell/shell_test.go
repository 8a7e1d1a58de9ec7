package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestMergeEnviron(t *testing.T) {
	tests := []struct {
		name      string
		base      []string
		overrides map[string]string
		want      []string
	}{
		{
			name: "no overrides",
			base: []string{"A=1", "B=2"},
			want: []string{"A=1", "B=2"},
		},
		{
			name:      "override replaces in place",
			base:      []string{"A=1", "B=2", "C=3"},
			overrides: map[string]string{"B": "two"},
			want:      []string{"A=1", "B=two", "C=3"},
		},
		{
			name:      "new keys appended sorted",
			base:      []string{"A=1"},
			overrides: map[string]string{"Z": "26", "M": "13"},
			want:      []string{"A=1", "M=13", "Z=26"},
		},
		{
			name:      "malformed entry passes through",
			base:      []string{"NOEQUALS", "A=1"},
			overrides: map[string]string{"A": "one"},
			want:      []string{"NOEQUALS", "A=one"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEnviron(tt.base, tt.overrides)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// installFakeShell puts a stand-in bash first on PATH so Run exercises
// the real process plumbing without an interactive session.
func installFakeShell(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bash")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("could not write fake shell: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestRunUsesDirAndEnv(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "out.txt")
	installFakeShell(t, "#!/bin/sh\npwd > \"$TETHER_TEST_OUT\"\nprintf '%s\\n' \"$TETHER_TEST_VALUE\" >> \"$TETHER_TEST_OUT\"\n")

	workDir := t.TempDir()
	session := &Session{
		Dir: workDir,
		Env: map[string]string{
			"TETHER_TEST_OUT":   outFile,
			"TETHER_TEST_VALUE": "hello",
		},
	}
	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("could not read shell output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}

	gotDir, err := filepath.EvalSymlinks(lines[0])
	if err != nil {
		t.Fatalf("could not resolve %q: %v", lines[0], err)
	}
	wantDir, err := filepath.EvalSymlinks(workDir)
	if err != nil {
		t.Fatalf("could not resolve %q: %v", workDir, err)
	}
	if gotDir != wantDir {
		t.Errorf("shell ran in %q, want %q", gotDir, wantDir)
	}
	if lines[1] != "hello" {
		t.Errorf("got env value %q, want %q", lines[1], "hello")
	}
}

func TestRunSwallowsShellExitStatus(t *testing.T) {
	installFakeShell(t, "#!/bin/sh\nexit 3\n")

	session := &Session{}
	if err := session.Run(context.Background()); err != nil {
		t.Errorf("Run: %v, want nil for a non-zero shell exit", err)
	}
}

func TestRunPrintsFailedCommand(t *testing.T) {
	installFakeShell(t, "#!/bin/sh\nexit 0\n")

	var buf bytes.Buffer
	session := &Session{
		FailedCommand: "make test",
		Out:           &buf,
	}
	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "Failed command was:\nmake test\n\n"
	if buf.String() != want {
		t.Errorf("got banner %q, want %q", buf.String(), want)
	}
}

func TestRunMissingDirFails(t *testing.T) {
	installFakeShell(t, "#!/bin/sh\nexit 0\n")

	session := &Session{Dir: filepath.Join(t.TempDir(), "gone")}
	if err := session.Run(context.Background()); err == nil {
		t.Error("expected an error for a missing directory")
	}
}
