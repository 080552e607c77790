// Package github implements scm.Provider over the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kz364/ralphinabox/internal/scm"
)

const (
	defaultBaseURL = "https://api.github.com"
	userAgent      = "ralph-sandbox"
)

// Client is a GitHub forge client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a GitHub client. An empty token is accepted; calls then
// fail with scm.ErrMissingToken.
func NewClient(token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ scm.Provider = (*Client)(nil)

// ValidateAuth checks the token against the authenticated-user endpoint.
func (c *Client) ValidateAuth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/user", nil, nil)
}

// DefaultBranch returns the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	path, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	var out struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.DefaultBranch == "" {
		return "", fmt.Errorf("github: repository %s has no default_branch in response", repo)
	}
	return out.DefaultBranch, nil
}

// OpenPullRequest opens a pull request and then applies its labels.
func (c *Client) OpenPullRequest(ctx context.Context, repo string, opts scm.PullRequestOptions) (*scm.PullRequest, error) {
	path, err := repoPath(repo)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"title": opts.Title,
		"body":  opts.Body,
		"head":  opts.Head,
		"base":  opts.Base,
		"draft": opts.Draft,
	}
	var out struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, path+"/pulls", payload, &out); err != nil {
		return nil, err
	}
	if out.Number == 0 {
		return nil, fmt.Errorf("github: pull request response for %s has no number", repo)
	}
	pr := &scm.PullRequest{URL: out.HTMLURL, Number: out.Number}

	if len(opts.Labels) > 0 {
		labelsPath := fmt.Sprintf("%s/issues/%d/labels", path, out.Number)
		if err := c.do(ctx, http.MethodPost, labelsPath, map[string]any{"labels": opts.Labels}, nil); err != nil {
			return pr, fmt.Errorf("applying labels to #%d: %w", out.Number, err)
		}
	}

	c.logger.InfoContext(ctx, "pull request opened",
		slog.String("repo", repo),
		slog.Int("number", pr.Number),
	)
	return pr, nil
}

// UpdatePullRequest patches the title and/or body.
func (c *Client) UpdatePullRequest(ctx context.Context, repo string, number int, title, body *string) error {
	if title == nil && body == nil {
		return nil
	}
	path, err := repoPath(repo)
	if err != nil {
		return err
	}
	payload := map[string]any{}
	if title != nil {
		payload["title"] = *title
	}
	if body != nil {
		payload["body"] = *body
	}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/pulls/%d", path, number), payload, nil)
}

// CommentPullRequest adds a conversation comment.
func (c *Client) CommentPullRequest(ctx context.Context, repo string, number int, body string) error {
	path, err := repoPath(repo)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/issues/%d/comments", path, number), map[string]any{"body": body}, nil)
}

// PullRequestChecks aggregates the check runs on the pull request's head.
func (c *Client) PullRequestChecks(ctx context.Context, repo string, number int) (scm.CheckState, error) {
	path, err := repoPath(repo)
	if err != nil {
		return "", err
	}
	var pr struct {
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/pulls/%d", path, number), nil, &pr); err != nil {
		return "", err
	}
	if pr.Head.SHA == "" {
		return scm.CheckUnknown, nil
	}

	var runs struct {
		CheckRuns []struct {
			Conclusion *string `json:"conclusion"`
		} `json:"check_runs"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/commits/%s/check-runs", path, url.PathEscape(pr.Head.SHA)), nil, &runs); err != nil {
		return "", err
	}
	conclusions := make([]string, 0, len(runs.CheckRuns))
	for _, r := range runs.CheckRuns {
		if r.Conclusion == nil {
			conclusions = append(conclusions, "")
			continue
		}
		conclusions = append(conclusions, *r.Conclusion)
	}
	return scm.AggregateChecks(conclusions), nil
}

// SetCommitStatus publishes a status on a commit.
func (c *Client) SetCommitStatus(ctx context.Context, repo, sha string, status scm.CommitStatus) error {
	if !status.State.Valid() {
		return fmt.Errorf("github: invalid commit status state %q", status.State)
	}
	path, err := repoPath(repo)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"state":       status.State,
		"description": status.Description,
	}
	if status.TargetURL != "" {
		payload["target_url"] = status.TargetURL
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/statuses/%s", path, url.PathEscape(sha)), payload, nil)
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if c.token == "" {
		return scm.ErrMissingToken
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("github: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("github: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.DebugContext(ctx, "github request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return &scm.APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("github: decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// repoPath validates an "owner/name" repository and returns its API path.
func repoPath(repo string) (string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") || owner == ".." || name == ".." {
		return "", fmt.Errorf("github: repository must be owner/name, got %q", repo)
	}
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}
