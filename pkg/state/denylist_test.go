package state

import (
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseNameList(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"whitespace only", "   ", nil, false},
		{"single name", "MY_VAR", []string{"MY_VAR"}, false},
		{"multiple names", "FOO,BAR_2,baz", []string{"FOO", "BAR_2", "baz"}, false},
		{"empty entries dropped", "FOO,,BAR,", []string{"FOO", "BAR"}, false},
		{"surrounding whitespace", "  FOO,BAR\n", []string{"FOO", "BAR"}, false},
		{"inner space", "FOO, BAR", nil, true},
		{"dash", "FOO-BAR", nil, true},
		{"shell metacharacters", "FOO;export PWNED=1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNameList(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNameList(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseNameList(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseNameListProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("valid comma lists parse back to their names", prop.ForAll(
		func(names []string) bool {
			got, err := ParseNameList(strings.Join(names, ","))
			if err != nil {
				return false
			}
			var want []string
			want = append(want, names...)
			return reflect.DeepEqual(got, want)
		},
		gen.SliceOf(gen.RegexMatch(`[A-Za-z0-9_]{1,12}`)),
	))

	properties.Property("one bad name poisons the whole list", prop.ForAll(
		func(names []string, bad string) bool {
			all := append(append([]string{}, names...), bad)
			_, err := ParseNameList(strings.Join(all, ","))
			return err != nil
		},
		gen.SliceOf(gen.RegexMatch(`[A-Za-z0-9_]{1,12}`)),
		gen.RegexMatch(`[A-Za-z0-9_]{1,4}[;$()/.\-][A-Za-z0-9_]{1,4}`),
	))

	properties.TestingRun(t)
}

func TestDenylistFromEnv(t *testing.T) {
	t.Setenv(DenylistEnvVar, "EXTRA_ONE,EXTRA_TWO")
	if got, want := DenylistFromEnv(), []string{"EXTRA_ONE", "EXTRA_TWO"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DenylistFromEnv() = %v, want %v", got, want)
	}

	t.Setenv(DenylistEnvVar, "EXTRA_ONE,$(injected)")
	if got := DenylistFromEnv(); got != nil {
		t.Errorf("invalid list should be discarded entirely, got %v", got)
	}

	t.Setenv(DenylistEnvVar, "")
	if got := DenylistFromEnv(); got != nil {
		t.Errorf("unset list should resolve to nil, got %v", got)
	}
}

func TestResolveDenylist(t *testing.T) {
	got := ResolveDenylist(BaseDenylist, []string{"ZETA", "ALPHA"}, nil, []string{"ALPHA", "GITHUB_TOKEN"})
	want := []string{"ALPHA", "GITHUB_TOKEN", "ZETA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveDenylist() = %v, want %v", got, want)
	}
}
