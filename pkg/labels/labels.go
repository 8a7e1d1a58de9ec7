// Package labels retrieves the pull request labels of the current workflow
// run.
//
// The labels are also available via the GitHub Actions context and the
// event payload file, but both can be stale:
// https://github.com/orgs/community/discussions/39062
// The API is therefore the primary source, with the event payload file as
// the fallback.
package labels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-github/v68/github"
	"github.com/samber/lo"
	"golang.org/x/oauth2"

	"github.com/tether-ci/tether/pkg/log"
)

// Environment variables set by GitHub Actions.
const (
	RefEnvVar        = "GITHUB_REF"
	RepositoryEnvVar = "GITHUB_REPOSITORY"
	EventPathEnvVar  = "GITHUB_EVENT_PATH"
	TokenEnvVar      = "GITHUB_TOKEN"
)

var pullRefRe = regexp.MustCompile(`^refs/pull/(\d+)/merge$`)

// ParsePullNumber extracts the pull request number from a GITHUB_REF value.
// The second return is false when the ref does not belong to a pull
// request. An empty ref is an error: it means the process is not running
// under GitHub Actions at all.
func ParsePullNumber(ref string) (int, bool, error) {
	if ref == "" {
		return 0, false, fmt.Errorf("%s is not defined. Is this being run outside of GitHub Actions?", RefEnvVar)
	}
	if !strings.HasPrefix(ref, "refs/pull/") {
		return 0, false, nil
	}
	m := pullRefRe.FindStringSubmatch(ref)
	if m == nil {
		return 0, false, fmt.Errorf("unrecognized pull request ref %q", ref)
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, fmt.Errorf("unrecognized pull request ref %q: %w", ref, err)
	}
	return number, true, nil
}

// RetryConfig defines how API label retrieval retries.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Delay is the fixed wait between tries.
	Delay time.Duration
}

// DefaultRetryConfig returns the default retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Delay: 3 * time.Second}
}

// Fetcher retrieves pull request labels from the GitHub API.
type Fetcher struct {
	gh    *github.Client
	clock clock.Clock
	retry RetryConfig
}

type settings struct {
	httpClient *http.Client
	baseURL    string
	clock      clock.Clock
	retry      RetryConfig
}

// Option configures a Fetcher.
type Option func(*settings)

// WithBaseURL points the fetcher at a different API endpoint, mainly for
// testing against a local server.
func WithBaseURL(raw string) Option {
	return func(s *settings) { s.baseURL = raw }
}

// WithHTTPClient supplies the underlying HTTP client, bypassing the token
// transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.httpClient = hc }
}

// WithClock injects the clock used for retry delays.
func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithRetry overrides the retry behavior.
func WithRetry(rc RetryConfig) Option {
	return func(s *settings) { s.retry = rc }
}

// NewFetcher builds a Fetcher. An empty token means unauthenticated API
// access, which works for public repositories within rate limits.
func NewFetcher(token string, opts ...Option) *Fetcher {
	s := settings{clock: clock.New(), retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(&s)
	}

	hc := s.httpClient
	if hc == nil && token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	gh := github.NewClient(hc)
	if s.baseURL != "" {
		base := s.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		if u, err := url.Parse(base); err == nil {
			gh.BaseURL = u
		} else {
			log.Warnf("failed to parse base URL %s: %v", s.baseURL, err)
		}
	}

	return &Fetcher{gh: gh, clock: s.clock, retry: s.retry}
}

// Retrieve returns the most up-to-date labels of the pull request that
// triggered the current run. Outside a pull request it returns an empty
// list.
func (f *Fetcher) Retrieve(ctx context.Context) ([]string, error) {
	number, isPull, err := ParsePullNumber(os.Getenv(RefEnvVar))
	if err != nil {
		return nil, err
	}
	if !isPull {
		log.Debugf("Not a PR workflow run, returning an empty label list")
		return []string{}, nil
	}

	repository := os.Getenv(RepositoryEnvVar)
	owner, repo, found := strings.Cut(repository, "/")
	if !found {
		return nil, fmt.Errorf("unrecognized %s value %q", RepositoryEnvVar, repository)
	}
	log.Debugf("pull request %d in %s", number, repository)

	names, err := f.fetchViaAPI(ctx, owner, repo, number)
	if err != nil {
		log.Errorf("Retrieving labels via API failed: %v", err)
		names, err = fallbackLabels()
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve labels: %w", err)
		}
		log.Infof("Using fallback labels")
		log.Infof("Fallback labels: \n%v", names)
		return names, nil
	}

	log.Debugf("Final labels: \n%v", names)
	return names, nil
}

func (f *Fetcher) fetchViaAPI(ctx context.Context, owner, repo string, number int) ([]string, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retry.Attempts; attempt++ {
		log.Infof("Retrieving PR labels via API - attempt %d...", attempt)
		names, err := f.listLabels(ctx, owner, repo, number)
		if err == nil {
			return names, nil
		}
		lastErr = err
		log.Errorf("Request failed: %v", err)
		if attempt < f.retry.Attempts {
			log.Infof("Trying again in %d seconds", int(f.retry.Delay.Seconds()))
			select {
			case <-f.clock.After(f.retry.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) listLabels(ctx context.Context, owner, repo string, number int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	names := []string{}
	for {
		page, resp, err := f.gh.Issues.ListLabelsByIssue(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch PR labels: %w", err)
		}
		names = append(names, lo.Map(page, func(l *github.Label, _ int) string {
			return l.GetName()
		})...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// eventPayload is the slice of the GitHub event payload file we care
// about.
type eventPayload struct {
	PullRequest struct {
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"pull_request"`
}

func fallbackLabels() ([]string, error) {
	path := os.Getenv(EventPathEnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s is not set", EventPathEnvVar)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event payload: %w", err)
	}
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	names := make([]string, 0, len(payload.PullRequest.Labels))
	for _, l := range payload.PullRequest.Labels {
		names = append(names, l.Name)
	}
	return names, nil
}
