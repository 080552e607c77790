// Package scm defines the source-forge operations used after a sandbox has
// pushed a branch: opening and updating pull requests, reading check
// results and publishing commit statuses.
package scm

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingToken is returned when an operation needs credentials and none
// were configured.
var ErrMissingToken = errors.New("scm token is required (set GITHUB_PAT or GITHUB_TOKEN)")

// CheckState is the aggregated result of the checks on a commit.
type CheckState string

const (
	CheckSuccess CheckState = "success"
	CheckFailure CheckState = "failure"
	CheckPending CheckState = "pending"
	CheckUnknown CheckState = "unknown"
)

// StatusState is the state of a commit status.
type StatusState string

const (
	StatusError   StatusState = "error"
	StatusFailure StatusState = "failure"
	StatusPending StatusState = "pending"
	StatusSuccess StatusState = "success"
)

// Valid reports whether s is a state the forge accepts.
func (s StatusState) Valid() bool {
	switch s {
	case StatusError, StatusFailure, StatusPending, StatusSuccess:
		return true
	}
	return false
}

// PullRequestOptions describes a pull request to open.
type PullRequestOptions struct {
	Head   string
	Base   string
	Title  string
	Body   string
	Draft  bool
	Labels []string
}

// PullRequest identifies an opened pull request.
type PullRequest struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
}

// CommitStatus is published against a commit SHA.
type CommitStatus struct {
	State       StatusState
	Description string
	TargetURL   string
}

// Provider is a source-forge client. Repositories are named "owner/name".
type Provider interface {
	ValidateAuth(ctx context.Context) error
	DefaultBranch(ctx context.Context, repo string) (string, error)
	OpenPullRequest(ctx context.Context, repo string, opts PullRequestOptions) (*PullRequest, error)
	// UpdatePullRequest changes the title and/or body. Nil fields are left
	// unchanged; with both nil no request is made.
	UpdatePullRequest(ctx context.Context, repo string, number int, title, body *string) error
	CommentPullRequest(ctx context.Context, repo string, number int, body string) error
	PullRequestChecks(ctx context.Context, repo string, number int) (CheckState, error)
	SetCommitStatus(ctx context.Context, repo, sha string, status CommitStatus) error
}

// APIError is a non-2xx response from the forge.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scm API error %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the forge.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// AggregateChecks folds check-run conclusions into one state. An empty
// conclusion means the run has not finished.
func AggregateChecks(conclusions []string) CheckState {
	if len(conclusions) == 0 {
		return CheckUnknown
	}
	for _, c := range conclusions {
		switch c {
		case "failure", "cancelled", "timed_out":
			return CheckFailure
		}
	}
	for _, c := range conclusions {
		switch c {
		case "", "queued", "in_progress":
			return CheckPending
		}
	}
	return CheckSuccess
}
