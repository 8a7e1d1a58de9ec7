package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestActionsContextCheck(t *testing.T) {
	check := &ActionsContextCheck{}
	ctx := context.Background()

	t.Setenv("GITHUB_REF", "refs/pull/12/merge")
	t.Setenv("GITHUB_REPOSITORY", "example/widgets")
	result := check.Run(ctx)

	if result.Name != "actions-context" {
		t.Errorf("expected name 'actions-context', got '%s'", result.Name)
	}
	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo with a full context, got %v: %s", result.Level, result.Message)
	}

	t.Setenv("GITHUB_REF", "")
	result = check.Run(ctx)
	if result.Level != LevelWarn {
		t.Errorf("expected LevelWarn without GITHUB_REF, got %v", result.Level)
	}

	t.Setenv("GITHUB_REF", "refs/pull/12/merge")
	t.Setenv("GITHUB_REPOSITORY", "")
	result = check.Run(ctx)
	if result.Level != LevelWarn {
		t.Errorf("expected LevelWarn without GITHUB_REPOSITORY, got %v", result.Level)
	}
}

func TestConnectionInfoCheck(t *testing.T) {
	check := &ConnectionInfoCheck{}
	ctx := context.Background()

	t.Setenv("CONNECTION_POD_NAME", "runner-abc")
	t.Setenv("CONNECTION_NS", "ci")
	t.Setenv("CONNECTION_LOCATION", "us-east1")
	t.Setenv("CONNECTION_CLUSTER", "builders")
	result := check.Run(ctx)

	if result.Name != "connection-info" {
		t.Errorf("expected name 'connection-info', got '%s'", result.Name)
	}
	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo with all variables set, got %v: %s", result.Level, result.Message)
	}

	t.Setenv("CONNECTION_CLUSTER", "")
	result = check.Run(ctx)
	if result.Level != LevelWarn {
		t.Errorf("expected LevelWarn with a missing variable, got %v", result.Level)
	}
	if !strings.Contains(result.Message, "CONNECTION_CLUSTER") {
		t.Errorf("expected the missing variable to be named, got %q", result.Message)
	}
}

func TestStateDirCheck(t *testing.T) {
	ctx := context.Background()

	// Test with temp directory
	tempDir := t.TempDir()
	check := &StateDirCheck{Path: tempDir}
	result := check.Run(ctx)

	if result.Name != "state-dir" {
		t.Errorf("expected name 'state-dir', got '%s'", result.Name)
	}
	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo for writable directory, got %v: %s", result.Level, result.Message)
	}

	// Test with directory that doesn't exist (should create it)
	newDir := filepath.Join(tempDir, "new-state-dir")
	check = &StateDirCheck{Path: newDir}
	result = check.Run(ctx)

	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo for creatable directory, got %v: %s", result.Level, result.Message)
	}
	if _, err := os.Stat(newDir); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}

	// Test with a file in place of the directory
	tempFile := filepath.Join(tempDir, "a-file")
	if err := os.WriteFile(tempFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	check = &StateDirCheck{Path: tempFile}
	result = check.Run(ctx)

	if result.Level != LevelError {
		t.Errorf("expected LevelError when the path is a file, got %v", result.Level)
	}
}

func TestBashCheck(t *testing.T) {
	check := &BashCheck{}
	ctx := context.Background()

	result := check.Run(ctx)

	if result.Name != "bash" {
		t.Errorf("expected name 'bash', got '%s'", result.Name)
	}

	// Bash may or may not be installed in the test environment
	if result.Level != LevelError && result.Level != LevelInfo {
		t.Errorf("expected LevelError or LevelInfo, got %v", result.Level)
	}

	t.Logf("BashCheck result: level=%d, message=%s", result.Level, result.Message)
}

func TestTokenCheck(t *testing.T) {
	check := &TokenCheck{}
	ctx := context.Background()

	t.Setenv("GITHUB_TOKEN", "ghp_example")
	result := check.Run(ctx)

	if result.Name != "github-token" {
		t.Errorf("expected name 'github-token', got '%s'", result.Name)
	}
	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo with a token set, got %v: %s", result.Level, result.Message)
	}

	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "gho_example")
	result = check.Run(ctx)
	if result.Level != LevelInfo {
		t.Errorf("expected LevelInfo with GH_TOKEN set, got %v: %s", result.Level, result.Message)
	}

	// A missing token is survivable, label retrieval has a fallback
	t.Setenv("GH_TOKEN", "")
	t.Setenv("PATH", "")
	result = check.Run(ctx)
	if result.Level != LevelWarn {
		t.Errorf("expected LevelWarn without a token, got %v", result.Level)
	}
}

func TestChecker(t *testing.T) {
	t.Setenv("GITHUB_REF", "refs/pull/12/merge")
	t.Setenv("GITHUB_REPOSITORY", "example/widgets")
	t.Setenv("CONNECTION_POD_NAME", "runner-abc")
	t.Setenv("CONNECTION_NS", "ci")
	t.Setenv("CONNECTION_LOCATION", "us-east1")
	t.Setenv("CONNECTION_CLUSTER", "builders")

	cfg := Config{
		StateDir: t.TempDir(),
	}

	checker := NewChecker(cfg)
	err := checker.Run(context.Background())

	// Context and connection checks warn at worst; the state dir is valid
	if err != nil {
		t.Errorf("expected success, got error: %v", err)
	}
}

func TestCheckerSkip(t *testing.T) {
	cfg := Config{
		Skip: true,
	}

	checker := NewChecker(cfg)
	err := checker.Run(context.Background())

	if err != nil {
		t.Errorf("expected success when skipped, got error: %v", err)
	}
}

func TestCheckerWithMissingBash(t *testing.T) {
	t.Setenv("PATH", "")

	cfg := Config{
		NeedShell: true,
	}

	checker := NewChecker(cfg)
	err := checker.Run(context.Background())

	if err == nil {
		t.Error("expected error when bash is required but not found")
	}

	t.Logf("Expected error: %v", err)
}

func TestCheckerWithUnusableStateDir(t *testing.T) {
	tempFile := filepath.Join(t.TempDir(), "a-file")
	if err := os.WriteFile(tempFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Config{
		StateDir: tempFile,
	}

	checker := NewChecker(cfg)
	err := checker.Run(context.Background())

	if err == nil {
		t.Error("expected error when the state directory path is a file")
	}

	t.Logf("Expected error: %v", err)
}
