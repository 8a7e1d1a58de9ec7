package labels

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// TestRetrieveReplaysRecordedSession drives a full label retrieval against
// a recorded API exchange, exercising the real go-github request path
// without network access.
func TestRetrieveReplaysRecordedSession(t *testing.T) {
	r, err := recorder.NewAsMode("testdata/fixtures/pr_labels", recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("failed to open cassette: %v", err)
	}
	defer r.Stop()

	t.Setenv(RefEnvVar, "refs/pull/7/merge")
	t.Setenv(RepositoryEnvVar, "example/widgets")

	f := NewFetcher("", WithHTTPClient(&http.Client{Transport: r}))
	got, err := f.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []string{"CI Connection Halt - Always", "needs-triage"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Retrieve() = %v, want %v", got, want)
	}
}
