// Package redact scrubs secret-shaped values from captured environment
// snapshots before they are written to the state directory or sent to an
// attached session. It complements the name-based denylist: the denylist
// drops variables entirely, redaction keeps the variable but masks values
// that look like credentials.
package redact

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
)

// Mode represents the redaction mode.
type Mode string

const (
	// ModeOff disables redaction. This is the default: saved snapshots must
	// round-trip unchanged unless the operator asks for scrubbing.
	ModeOff Mode = "off"
	// ModeBasic redacts values matching known credential prefixes and values
	// of variables whose names match a sensitive pattern.
	ModeBasic Mode = "basic"
	// ModeAggressive adds a high-entropy heuristic on long tokens.
	ModeAggressive Mode = "aggressive"

	// minEntropyCandidateLen is the minimum token length considered for
	// entropy-based redaction.
	minEntropyCandidateLen = 20

	defaultReplacement = "***REDACTED***"
)

// Environment variables that configure redaction without flags.
const (
	ModeEnvVar        = "TETHER_REDACT"
	KeysEnvVar        = "TETHER_REDACT_KEYS"
	ReplacementEnvVar = "TETHER_REDACT_REPLACEMENT"
)

// sensitiveNameSuffixes match variable names like MY_API_TOKEN or DB_PASSWORD.
var sensitiveNameSuffixes = []string{
	"_TOKEN", "_KEY", "_SECRET", "_PASSWORD", "_API_KEY", "_AUTH_TOKEN", "_AUTHORIZATION",
}

// sensitiveNameExact match bare names with no prefix.
var sensitiveNameExact = []string{
	"API_KEY", "AUTH_TOKEN", "PASSWORD", "APIKEY", "SECRET",
}

// knownPrefixPatterns recognize well-known credential formats by prefix.
var knownPrefixPatterns = []struct {
	prefix  string
	pattern *regexp.Regexp
}{
	// GitHub tokens
	{prefix: "ghp_", pattern: regexp.MustCompile(`ghp_[A-Za-z0-9_]{32,36}`)},
	{prefix: "gho_", pattern: regexp.MustCompile(`gho_[A-Za-z0-9_]{32,36}`)},
	{prefix: "ghu_", pattern: regexp.MustCompile(`ghu_[A-Za-z0-9_]{32,36}`)},
	{prefix: "ghs_", pattern: regexp.MustCompile(`ghs_[A-Za-z0-9_]{32,36}`)},
	{prefix: "ghr_", pattern: regexp.MustCompile(`ghr_[A-Za-z0-9_]{32,36}`)},
	// Stripe
	{prefix: "sk_live_", pattern: regexp.MustCompile(`sk_live_[A-Za-z0-9_]{32,40}`)},
	{prefix: "sk_test_", pattern: regexp.MustCompile(`sk_test_[A-Za-z0-9_]{32,40}`)},
	{prefix: "sk-", pattern: regexp.MustCompile(`sk-[A-Za-z0-9_]{26,46}`)},
	// HuggingFace
	{prefix: "hf_", pattern: regexp.MustCompile(`hf_[A-Za-z0-9_]{26,46}`)},
	// AWS access key IDs
	{prefix: "AKIA", pattern: regexp.MustCompile(`AKIA[A-Z0-9]{16}`)},
	// Slack
	{prefix: "xoxb-", pattern: regexp.MustCompile(`xoxb-[A-Za-z0-9\-]{26,46}`)},
	{prefix: "xoxp-", pattern: regexp.MustCompile(`xoxp-[A-Za-z0-9\-]{26,46}`)},
	// Google OAuth
	{prefix: "ya29.", pattern: regexp.MustCompile(`ya29\.[A-Za-z0-9_\-]{46,196}`)},
}

// entropyCandidateRe finds tokens long enough to be secrets.
var entropyCandidateRe = regexp.MustCompile(
	fmt.Sprintf(`[A-Za-z0-9_\-\.]{%d,}`, minEntropyCandidateLen),
)

// Redactor masks credential-shaped content in environment snapshots.
type Redactor struct {
	mode        Mode
	customKeys  []string
	replacement string
}

// Config holds configuration for a Redactor.
type Config struct {
	Mode        Mode   // off, basic, aggressive
	CustomKeys  string // comma-separated extra name patterns (e.g. "MY_CREDENTIAL,DEPLOY_PASS")
	Replacement string // replacement string (default "***REDACTED***")
}

// New creates a new Redactor with the given configuration.
func New(cfg Config) *Redactor {
	mode := cfg.Mode
	switch mode {
	case ModeOff, ModeBasic, ModeAggressive:
	default:
		mode = ModeOff
	}

	replacement := cfg.Replacement
	if replacement == "" {
		replacement = defaultReplacement
	}

	var customKeys []string
	for _, key := range strings.Split(cfg.CustomKeys, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			customKeys = append(customKeys, key)
		}
	}

	return &Redactor{
		mode:        mode,
		customKeys:  customKeys,
		replacement: replacement,
	}
}

// FromEnv creates a Redactor from TETHER_REDACT, TETHER_REDACT_KEYS, and
// TETHER_REDACT_REPLACEMENT.
func FromEnv() *Redactor {
	return New(Config{
		Mode:        Mode(os.Getenv(ModeEnvVar)),
		CustomKeys:  os.Getenv(KeysEnvVar),
		Replacement: os.Getenv(ReplacementEnvVar),
	})
}

// Enabled reports whether this redactor changes anything at all.
func (r *Redactor) Enabled() bool {
	return r.mode != ModeOff
}

// SensitiveName reports whether an environment variable name alone marks its
// value for redaction.
func (r *Redactor) SensitiveName(name string) bool {
	if r.mode == ModeOff {
		return false
	}
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveNameSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	for _, exact := range sensitiveNameExact {
		if upper == exact {
			return true
		}
	}
	for _, key := range r.customKeys {
		if strings.Contains(upper, strings.ToUpper(key)) {
			return true
		}
	}
	return false
}

// Value masks credential-shaped content inside a single value.
func (r *Redactor) Value(val string) string {
	if r.mode == ModeOff {
		return val
	}

	for _, p := range knownPrefixPatterns {
		val = p.pattern.ReplaceAllString(val, p.prefix+r.replacement)
	}

	if r.mode == ModeAggressive {
		val = r.redactHighEntropyTokens(val)
	}

	return val
}

// Map returns a copy of env with sensitive names fully masked and the
// remaining values passed through Value. The input map is not modified.
func (r *Redactor) Map(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		switch {
		case r.mode == ModeOff:
			out[k] = v
		case r.SensitiveName(k):
			out[k] = r.replacement
		default:
			out[k] = r.Value(v)
		}
	}
	return out
}

// redactHighEntropyTokens masks tokens that look like random secrets.
// Best-effort heuristic; false positives are the cost of aggressive mode.
func (r *Redactor) redactHighEntropyTokens(val string) string {
	matches := entropyCandidateRe.FindAllString(val, -1)
	for _, match := range matches {
		if isLikelyFalsePositive(match) {
			continue
		}
		if shannonEntropy(match) > 4.0 {
			val = strings.ReplaceAll(val, match, r.replacement)
		}
	}
	return val
}

// shannonEntropy measures the randomness of a string in bits per character.
// Natural language sits below 3.5; encoded secrets usually exceed 4.0.
func shannonEntropy(s string) float64 {
	if len(s) < minEntropyCandidateLen {
		return 0
	}

	freq := make(map[rune]float64)
	for _, ch := range s {
		freq[ch]++
	}

	entropy := 0.0
	for _, count := range freq {
		p := count / float64(len(s))
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

// isLikelyFalsePositive filters out paths, URLs, and plain words that happen
// to be long.
func isLikelyFalsePositive(s string) bool {
	if strings.Contains(s, "/") || strings.Contains(s, "\\") {
		return true
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return true
	}
	if s == strings.ToLower(s) && len(s) < 30 {
		return true
	}
	if s == strings.ToUpper(s) && len(s) < 20 {
		return true
	}

	lowerCount := 0
	for _, ch := range s {
		if ch >= 'a' && ch <= 'z' {
			lowerCount++
		}
	}
	return float64(lowerCount)/float64(len(s)) > 0.7
}
