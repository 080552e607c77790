package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/kz364/ralphinabox/internal/scm"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

// fakeGitHub serves canned JSON per "METHOD path" and records requests.
type fakeGitHub struct {
	t         *testing.T
	mu        sync.Mutex
	requests  []recorded
	responses map[string]string
}

func newFakeGitHub(t *testing.T, responses map[string]string) (*fakeGitHub, *Client) {
	t.Helper()
	f := &fakeGitHub{t: t, responses: responses}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, NewClient("test-token", nil, WithBaseURL(srv.URL))
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
		f.t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
		f.t.Errorf("Accept = %q", got)
	}
	if got := r.Header.Get("User-Agent"); got != userAgent {
		f.t.Errorf("User-Agent = %q", got)
	}

	rec := recorded{Method: r.Method, Path: r.URL.Path}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	body, ok := f.responses[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestDefaultBranch(t *testing.T) {
	_, c := newFakeGitHub(t, map[string]string{
		"GET /repos/acme/widgets": `{"default_branch":"trunk"}`,
	})
	got, err := c.DefaultBranch(context.Background(), "acme/widgets")
	if err != nil {
		t.Fatalf("DefaultBranch: %v", err)
	}
	if got != "trunk" {
		t.Errorf("DefaultBranch = %q, want trunk", got)
	}
}

func TestOpenPullRequest_AppliesLabelsAfterCreation(t *testing.T) {
	f, c := newFakeGitHub(t, map[string]string{
		"POST /repos/acme/widgets/pulls":            `{"number":42,"html_url":"https://github.com/acme/widgets/pull/42"}`,
		"POST /repos/acme/widgets/issues/42/labels": `[]`,
	})
	pr, err := c.OpenPullRequest(context.Background(), "acme/widgets", scm.PullRequestOptions{
		Head:   "ralph/fix",
		Base:   "main",
		Title:  "Fix",
		Body:   "details",
		Draft:  true,
		Labels: []string{"ralph", "automated"},
	})
	if err != nil {
		t.Fatalf("OpenPullRequest: %v", err)
	}
	if pr.Number != 42 || pr.URL != "https://github.com/acme/widgets/pull/42" {
		t.Errorf("pr = %+v", pr)
	}
	if len(f.requests) != 2 {
		t.Fatalf("requests = %+v, want create then labels", f.requests)
	}
	create := f.requests[0]
	if create.Body["head"] != "ralph/fix" || create.Body["base"] != "main" || create.Body["draft"] != true {
		t.Errorf("create body = %v", create.Body)
	}
	if labels, _ := f.requests[1].Body["labels"].([]any); len(labels) != 2 {
		t.Errorf("labels body = %v", f.requests[1].Body)
	}
}

func TestOpenPullRequest_NoLabels(t *testing.T) {
	f, c := newFakeGitHub(t, map[string]string{
		"POST /repos/acme/widgets/pulls": `{"number":7,"html_url":"u"}`,
	})
	if _, err := c.OpenPullRequest(context.Background(), "acme/widgets", scm.PullRequestOptions{Head: "h", Base: "b"}); err != nil {
		t.Fatal(err)
	}
	if len(f.requests) != 1 {
		t.Errorf("requests = %d, want only the create call", len(f.requests))
	}
}

func TestUpdatePullRequest(t *testing.T) {
	f, c := newFakeGitHub(t, map[string]string{
		"PATCH /repos/acme/widgets/pulls/3": `{}`,
	})
	ctx := context.Background()

	if err := c.UpdatePullRequest(ctx, "acme/widgets", 3, nil, nil); err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if len(f.requests) != 0 {
		t.Fatalf("no-op update sent %d requests", len(f.requests))
	}

	title := "New title"
	if err := c.UpdatePullRequest(ctx, "acme/widgets", 3, &title, nil); err != nil {
		t.Fatalf("UpdatePullRequest: %v", err)
	}
	body := f.requests[0].Body
	if body["title"] != "New title" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["body"]; ok {
		t.Error("nil body should not be sent")
	}
}

func TestCommentPullRequest(t *testing.T) {
	f, c := newFakeGitHub(t, map[string]string{
		"POST /repos/acme/widgets/issues/9/comments": `{"id":1}`,
	})
	if err := c.CommentPullRequest(context.Background(), "acme/widgets", 9, "done"); err != nil {
		t.Fatal(err)
	}
	if f.requests[0].Body["body"] != "done" {
		t.Errorf("body = %v", f.requests[0].Body)
	}
}

func TestPullRequestChecks(t *testing.T) {
	tests := []struct {
		name      string
		pr        string
		checkRuns string
		want      scm.CheckState
	}{
		{"success", `{"head":{"sha":"abc"}}`, `{"check_runs":[{"conclusion":"success"}]}`, scm.CheckSuccess},
		{"pending", `{"head":{"sha":"abc"}}`, `{"check_runs":[{"conclusion":"success"},{"conclusion":null}]}`, scm.CheckPending},
		{"failure", `{"head":{"sha":"abc"}}`, `{"check_runs":[{"conclusion":null},{"conclusion":"timed_out"}]}`, scm.CheckFailure},
		{"no runs", `{"head":{"sha":"abc"}}`, `{"check_runs":[]}`, scm.CheckUnknown},
		{"no head sha", `{"head":{}}`, ``, scm.CheckUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := map[string]string{"GET /repos/acme/widgets/pulls/5": tt.pr}
			if tt.checkRuns != "" {
				responses["GET /repos/acme/widgets/commits/abc/check-runs"] = tt.checkRuns
			}
			_, c := newFakeGitHub(t, responses)
			got, err := c.PullRequestChecks(context.Background(), "acme/widgets", 5)
			if err != nil {
				t.Fatalf("PullRequestChecks: %v", err)
			}
			if got != tt.want {
				t.Errorf("state = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSetCommitStatus(t *testing.T) {
	f, c := newFakeGitHub(t, map[string]string{
		"POST /repos/acme/widgets/statuses/abc123": `{}`,
	})
	ctx := context.Background()
	err := c.SetCommitStatus(ctx, "acme/widgets", "abc123", scm.CommitStatus{
		State:       scm.StatusPending,
		Description: "ralph running",
	})
	if err != nil {
		t.Fatal(err)
	}
	body := f.requests[0].Body
	if body["state"] != "pending" || body["description"] != "ralph running" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["target_url"]; ok {
		t.Error("empty target_url should be omitted")
	}

	if err := c.SetCommitStatus(ctx, "acme/widgets", "abc123", scm.CommitStatus{State: "done"}); err == nil {
		t.Error("expected error for invalid state")
	}
}

func TestAPIError(t *testing.T) {
	_, c := newFakeGitHub(t, nil)
	_, err := c.DefaultBranch(context.Background(), "acme/missing")
	var apiErr *scm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *scm.APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || !scm.IsNotFound(err) {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestMissingToken(t *testing.T) {
	c := NewClient("", nil, WithBaseURL("http://127.0.0.1:1"))
	if err := c.ValidateAuth(context.Background()); !errors.Is(err, scm.ErrMissingToken) {
		t.Fatalf("ValidateAuth = %v, want ErrMissingToken", err)
	}
}

func TestRepoPath(t *testing.T) {
	for _, bad := range []string{"", "acme", "acme/", "/widgets", "a/b/c", "../x", "acme/.."} {
		if _, err := repoPath(bad); err == nil {
			t.Errorf("repoPath(%q) should fail", bad)
		}
	}
	got, err := repoPath("acme/widgets")
	if err != nil || got != "/repos/acme/widgets" {
		t.Errorf("repoPath = %q, %v", got, err)
	}
}
