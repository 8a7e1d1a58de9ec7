package state

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/tether-ci/tether/pkg/log"
)

// BaseDenylist holds the variable names never written to the environment
// file or reported to a connected client.
var BaseDenylist = []string{"GITHUB_TOKEN"}

// DenylistEnvVar names additional variables to exclude, comma separated.
const DenylistEnvVar = "TETHER_ENV_VARS_DENYLIST"

var invalidNameListChar = regexp.MustCompile(`[^A-Za-z0-9_,]`)

// ParseNameList parses a comma-separated list of environment variable
// names. Leading and trailing whitespace around the whole list is ignored;
// empty entries are dropped. Any character outside letters, digits,
// underscores, and commas invalidates the entire list.
func ParseNameList(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	if loc := invalidNameListChar.FindString(trimmed); loc != "" {
		return nil, fmt.Errorf("contains invalid characters. Expected only letters, digits, underscores, and commas, got: %s", trimmed)
	}
	var names []string
	for _, name := range strings.Split(trimmed, ",") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// DenylistFromEnv reads DenylistEnvVar. An invalid value discards the
// whole addendum rather than a partial list: a truncated denylist could
// silently leak the very variable the operator meant to exclude.
func DenylistFromEnv() []string {
	raw := os.Getenv(DenylistEnvVar)
	names, err := ParseNameList(raw)
	if err != nil {
		log.Errorf("%s %v. Ignoring contents of this variable.", DenylistEnvVar, err)
		return nil
	}
	return names
}

// ResolveDenylist merges the base denylist with any addenda, deduplicated
// and sorted.
func ResolveDenylist(base []string, addenda ...[]string) []string {
	merged := make([]string, 0, len(base))
	merged = append(merged, base...)
	for _, extra := range addenda {
		merged = append(merged, extra...)
	}
	merged = lo.Uniq(merged)
	sort.Strings(merged)
	return merged
}
