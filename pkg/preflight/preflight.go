package preflight

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tether-ci/tether/pkg/hold"
	"github.com/tether-ci/tether/pkg/log"
)

// CheckLevel represents the severity level of a preflight check
type CheckLevel int

const (
	// LevelError indicates a critical failure that prevents execution
	LevelError CheckLevel = iota
	// LevelWarn indicates a warning that should be addressed but doesn't block execution
	LevelWarn
	// LevelInfo indicates informational output
	LevelInfo
)

// CheckResult represents the result of a single preflight check
type CheckResult struct {
	Name    string     // Check name
	Level   CheckLevel // Severity level
	Message string     // Human-readable message
	Error   error      // Underlying error (if any)
}

// Check represents a single preflight check
type Check interface {
	// Name returns the check name
	Name() string
	// Run executes the check and returns a CheckResult
	Run(ctx context.Context) CheckResult
}

// Checker runs a collection of preflight checks
type Checker struct {
	checks  []Check
	skipped bool
	quiet   bool
}

// Config configures the preflight checker
type Config struct {
	// Skip skips all preflight checks
	Skip bool
	// Quiet suppresses info-level messages
	Quiet bool
	// StateDir is the execution state directory to verify for writes
	StateDir string
	// NeedShell checks that an interactive shell can be launched
	NeedShell bool
	// NeedToken checks that a GitHub token is available for label retrieval
	NeedToken bool
}

// NewChecker creates a new preflight checker with the given configuration
func NewChecker(cfg Config) *Checker {
	c := &Checker{
		skipped: cfg.Skip,
		quiet:   cfg.Quiet,
	}

	c.checks = append(c.checks, &ActionsContextCheck{}, &ConnectionInfoCheck{})
	if cfg.StateDir != "" {
		c.checks = append(c.checks, &StateDirCheck{
			Path: cfg.StateDir,
		})
	}
	if cfg.NeedShell {
		c.checks = append(c.checks, &BashCheck{})
	}
	if cfg.NeedToken {
		c.checks = append(c.checks, &TokenCheck{})
	}

	return c
}

// Run executes all registered checks and returns an error if any critical checks fail
func (c *Checker) Run(ctx context.Context) error {
	if c.skipped {
		log.Info("preflight checks skipped")
		return nil
	}

	log.Info("running preflight checks")

	var errors []error
	var warnings []string

	for _, check := range c.checks {
		result := check.Run(ctx)

		switch result.Level {
		case LevelError:
			log.Error("preflight check failed", "check", result.Name, "message", result.Message)
			if result.Error != nil {
				errors = append(errors, result.Error)
			} else {
				errors = append(errors, fmt.Errorf("%s: %s", result.Name, result.Message))
			}
		case LevelWarn:
			log.Warn("preflight check warning", "check", result.Name, "message", result.Message)
			warnings = append(warnings, fmt.Sprintf("%s: %s", result.Name, result.Message))
		case LevelInfo:
			if !c.quiet {
				log.Info("preflight check", "check", result.Name, "message", result.Message)
			}
		}
	}

	if len(warnings) > 0 {
		log.Info("preflight warnings", "count", len(warnings))
	}

	if len(errors) > 0 {
		var errMsgs []string
		for _, err := range errors {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("preflight checks failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}

	log.Info("preflight checks passed")
	return nil
}

// ActionsContextCheck checks whether the GitHub Actions context variables
// that halt evaluation relies on are present
type ActionsContextCheck struct{}

func (c *ActionsContextCheck) Name() string {
	return "actions-context"
}

func (c *ActionsContextCheck) Run(ctx context.Context) CheckResult {
	ref := os.Getenv("GITHUB_REF")
	repo := os.Getenv("GITHUB_REPOSITORY")

	if ref == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "GITHUB_REF is not set. Halt labels cannot be evaluated outside of GitHub Actions",
		}
	}
	if repo == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "GITHUB_REPOSITORY is not set. Label retrieval via the API will not work",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("GitHub Actions context detected (%s, %s)", repo, ref),
	}
}

// ConnectionInfoCheck checks whether the variables that describe how to
// reach this runner are present
type ConnectionInfoCheck struct{}

func (c *ConnectionInfoCheck) Name() string {
	return "connection-info"
}

func (c *ConnectionInfoCheck) Run(ctx context.Context) CheckResult {
	vars := []string{
		hold.PodEnvVar,
		hold.NamespaceEnvVar,
		hold.LocationEnvVar,
		hold.ClusterEnvVar,
	}

	var missing []string
	for _, name := range vars {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: fmt.Sprintf("connection details are incomplete (missing %s). The printed connection string will have blank fields", strings.Join(missing, ", ")),
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: "connection details present",
	}
}

// StateDirCheck checks if the execution state directory is writable
type StateDirCheck struct {
	Path string
}

func (c *StateDirCheck) Name() string {
	return "state-dir"
}

func (c *StateDirCheck) Run(ctx context.Context) CheckResult {
	if c.Path == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelInfo,
			Message: "no state directory specified",
		}
	}

	absPath, err := filepath.Abs(c.Path)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("failed to resolve state directory: %s", c.Path),
			Error:   err,
		}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// The directory is created on first save; verify the parent
			// would let us.
			if err := os.MkdirAll(absPath, 0755); err != nil {
				return CheckResult{
					Name:    c.Name(),
					Level:   LevelError,
					Message: fmt.Sprintf("cannot create state directory: %s", absPath),
					Error:   err,
				}
			}
		} else {
			return CheckResult{
				Name:    c.Name(),
				Level:   LevelError,
				Message: fmt.Sprintf("cannot access state directory: %s", absPath),
				Error:   err,
			}
		}
	} else if !info.IsDir() {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("state directory path is not a directory: %s", absPath),
			Error:   fmt.Errorf("not a directory"),
		}
	}

	testFile := filepath.Join(absPath, fmt.Sprintf(".tether-write-test-%d", os.Getpid()))
	f, err := os.Create(testFile)
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: fmt.Sprintf("state directory is not writable: %s", absPath),
			Error:   err,
		}
	}
	f.Close()
	_ = os.Remove(testFile)

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("state directory is writable: %s", absPath),
	}
}

// BashCheck checks if an interactive shell can be launched
type BashCheck struct{}

func (c *BashCheck) Name() string {
	return "bash"
}

func (c *BashCheck) Run(ctx context.Context) CheckResult {
	_, err := exec.LookPath("bash")
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelError,
			Message: "bash command not found. Attaching a shell to this job will not work",
			Error:   err,
		}
	}

	cmd := exec.CommandContext(ctx, "bash", "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "bash is installed but may not be working correctly",
			Error:   err,
		}
	}

	version, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: fmt.Sprintf("bash is available (%s)", version),
	}
}

// TokenCheck checks if a GitHub token is available for label retrieval
type TokenCheck struct{}

func (c *TokenCheck) Name() string {
	return "github-token"
}

func (c *TokenCheck) Run(ctx context.Context) CheckResult {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GH_TOKEN")
	}

	// If no token in env, try gh CLI
	if token == "" {
		_, err := exec.LookPath("gh")
		if err == nil {
			cmd := exec.Command("gh", "auth", "token")
			output, err := cmd.Output()
			if err == nil && strings.TrimSpace(string(output)) != "" {
				return CheckResult{
					Name:    c.Name(),
					Level:   LevelInfo,
					Message: "GitHub token available (from gh auth token)",
				}
			}
		}
	}

	if token == "" {
		return CheckResult{
			Name:    c.Name(),
			Level:   LevelWarn,
			Message: "GitHub token not found. Label retrieval will use the unauthenticated API and the event payload fallback",
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Level:   LevelInfo,
		Message: "GitHub token available (from environment)",
	}
}
