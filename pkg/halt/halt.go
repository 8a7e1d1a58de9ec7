// Package halt decides whether a CI job should stop and wait for a remote
// connection. The decision combines an explicit request, a workflow
// dispatch input, pull request labels, and leftover execution state from a
// failed command.
package halt

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/tether-ci/tether/pkg/log"
)

// Pull request labels that request a hold. These can change at the repo or
// org level, in which case they need updating here as well.
const (
	AlwaysLabel  = "CI Connection Halt - Always"
	OnRetryLabel = "CI Connection Halt - On Retry"
	OnErrorLabel = "CI Connection Halt - On Error"
)

// Environment variables consulted by the decision.
const (
	// DispatchEnvVar carries the workflow dispatch input requesting a
	// hold regardless of labels.
	DispatchEnvVar = "HALT_DISPATCH_INPUT"

	// RunAttemptEnvVar is set by GitHub Actions to the 1-based attempt
	// number of the current workflow run.
	RunAttemptEnvVar = "GITHUB_RUN_ATTEMPT"
)

// Reason identifies which condition requested the hold.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonForced
	ReasonDispatchInput
	ReasonErrorLabel
	ReasonAlwaysLabel
	ReasonRetryLabel
)

func (r Reason) String() string {
	switch r {
	case ReasonForced:
		return "forced"
	case ReasonDispatchInput:
		return "halt-dispatch-input"
	case ReasonErrorLabel:
		return "on-error label"
	case ReasonAlwaysLabel:
		return "always label"
	case ReasonRetryLabel:
		return "on-retry label"
	default:
		return "none"
	}
}

// Inputs carries everything the decision looks at, gathered by the caller
// so the walk itself stays deterministic.
type Inputs struct {
	// Force requests the hold unconditionally.
	Force bool

	// DispatchInput is the raw value of DispatchEnvVar.
	DispatchInput string

	// FetchLabels returns the pull request labels. It is called at most
	// once, and only when no earlier condition settled the decision, so
	// an explicit halt does not pay for a label lookup.
	FetchLabels func() []string

	// SnapshotPresent reports whether a failed command left execution
	// state behind.
	SnapshotPresent bool

	// SnapshotPath is where that state would live, for diagnostics.
	SnapshotPath string

	// RunAttempt is the raw value of RunAttemptEnvVar.
	RunAttempt string
}

// Decision is the outcome of the halt check.
type Decision struct {
	Halt   bool
	Reason Reason
}

// Decide walks the halt conditions in priority order and stops at the
// first match: forced, dispatch input, on-error label with execution
// state, always label, on-retry label on a second or later attempt.
func Decide(in Inputs) Decision {
	log.Infof("Checking if the workflow should be halted for a connection...")

	if in.Force {
		log.Infof("Wait for connection requested explicitly via the force flag")
		return Decision{Halt: true, Reason: ReasonForced}
	}

	if TrueLike(in.DispatchInput) {
		log.Infof("Halt for connection requested via explicit `halt-dispatch-input` input")
		return Decision{Halt: true, Reason: ReasonDispatchInput}
	}
	log.Debugf("No `halt-dispatch-input` detected")

	var labels []string
	if in.FetchLabels != nil {
		labels = in.FetchLabels()
	}

	errorLabel := lo.Contains(labels, OnErrorLabel)
	switch {
	case errorLabel && in.SnapshotPresent:
		log.Infof("Halt for connection requested via presence of the %q label.\nFound a file with the execution state info for a previous command...", OnErrorLabel)
		return Decision{Halt: true, Reason: ReasonErrorLabel}
	case errorLabel:
		log.Debugf("Found the %q label, but no execution state file found at %s path", OnErrorLabel, in.SnapshotPath)
	case in.SnapshotPresent:
		log.Debugf("Found an execution state file at %s, but no %q label on the PR", in.SnapshotPath, OnErrorLabel)
	default:
		log.Debugf("No %q label found on the PR", OnErrorLabel)
	}

	if lo.Contains(labels, AlwaysLabel) {
		log.Infof("Halt for connection requested via presence of the %q label", AlwaysLabel)
		return Decision{Halt: true, Reason: ReasonAlwaysLabel}
	}
	log.Debugf("No %q label found on the PR", AlwaysLabel)

	attempt := ParseRunAttempt(in.RunAttempt)
	if attempt > 1 && lo.Contains(labels, OnRetryLabel) {
		log.Infof("Halt for connection requested via presence of the %q label, due to workflow run attempt being 2+ (%d)", OnRetryLabel, attempt)
		return Decision{Halt: true, Reason: ReasonRetryLabel}
	}
	if lo.Contains(labels, OnRetryLabel) {
		log.Debugf("Found the %q label, but this is the first attempt", OnRetryLabel)
	} else {
		log.Debugf("No %q label found on the PR", OnRetryLabel)
	}

	return Decision{}
}

// Falsey spellings for TrueLike, compared lowercase.
var falseyValues = map[string]struct{}{
	"0":     {},
	"false": {},
	"n":     {},
	"no":    {},
	"none":  {},
	"null":  {},
	"n/a":   {},
}

// TrueLike reports whether an environment variable value asks for the
// behavior it gates. Unset or empty is false, as is any spelling of a
// refusal regardless of case. Everything else, "1" and "banana" alike,
// counts as true. Values are not trimmed: a padded " 0" is a set value.
func TrueLike(value string) bool {
	v := strings.ToLower(value)
	if v == "" {
		return false
	}
	_, falsey := falseyValues[v]
	return !falsey
}

// ParseRunAttempt interprets RunAttemptEnvVar. A missing or unparseable
// value counts as the first attempt.
func ParseRunAttempt(raw string) int {
	attempt, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || attempt < 1 {
		return 1
	}
	return attempt
}
