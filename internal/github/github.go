package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v75/github"
)

// State is a GitHub commit status state.
type State string

const (
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Status is a single status update for a commit and, optionally, its PR.
type Status struct {
	Repo        string // owner/name
	SHA         string
	PRNumber    string
	State       State
	Context     string
	Description string
	TargetURL   string
}

// ReportingError wraps any failure to deliver a status update. Callers log
// it and carry on; it never changes a run's outcome.
type ReportingError struct {
	Op  string
	Err error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("report status (%s): %v", e.Op, e.Err)
}

func (e *ReportingError) Unwrap() error { return e.Err }

// Reporter posts status updates.
type Reporter interface {
	Report(ctx context.Context, st Status) error
}

// NopReporter discards every update. Used when no repository or token is
// configured.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Status) error { return nil }

// Client posts commit statuses and PR comments through the GitHub REST API.
type Client struct {
	gh      *gh.Client
	comment bool
}

// ClientOpts configures a Client.
type ClientOpts struct {
	Token      string
	APIURL     string // empty for api.github.com
	Comment    bool   // also comment on the PR when a PR number is known
	HTTPClient *http.Client
}

// NewClient creates a GitHub status client.
func NewClient(opts ClientOpts) (*Client, error) {
	client := gh.NewClient(opts.HTTPClient)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	}
	if opts.APIURL != "" {
		base := opts.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse GitHub API URL %q: %w", opts.APIURL, err)
		}
		client.BaseURL = u
	}
	return &Client{gh: client, comment: opts.Comment}, nil
}

// Report posts st as a commit status. When st.SHA is empty the PR head is
// looked up first. Every failure is returned as *ReportingError.
func (c *Client) Report(ctx context.Context, st Status) error {
	owner, repo, err := splitRepo(st.Repo)
	if err != nil {
		return &ReportingError{Op: "config", Err: err}
	}

	var prNum int
	if st.PRNumber != "" {
		prNum, err = strconv.Atoi(st.PRNumber)
		if err != nil || prNum <= 0 {
			return &ReportingError{Op: "config", Err: fmt.Errorf("invalid PR number %q: must be positive", st.PRNumber)}
		}
	}

	sha := st.SHA
	if sha == "" {
		if prNum == 0 {
			return &ReportingError{Op: "resolve sha", Err: fmt.Errorf("neither commit SHA nor PR number available")}
		}
		pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, prNum)
		if err != nil {
			return &ReportingError{Op: "resolve sha", Err: fmt.Errorf("get PR #%d: %w", prNum, err)}
		}
		sha = pr.GetHead().GetSHA()
		if sha == "" {
			return &ReportingError{Op: "resolve sha", Err: fmt.Errorf("PR #%d has no head SHA", prNum)}
		}
	}

	status := &gh.RepoStatus{
		State:       gh.Ptr(string(st.State)),
		Context:     gh.Ptr(st.Context),
		Description: gh.Ptr(truncate(st.Description, 140)),
	}
	if st.TargetURL != "" {
		status.TargetURL = gh.Ptr(st.TargetURL)
	}

	if _, _, err := c.gh.Repositories.CreateStatus(ctx, owner, repo, sha, status); err != nil {
		return &ReportingError{Op: "create status", Err: err}
	}

	if c.comment && prNum > 0 && st.State != StatePending {
		body := fmt.Sprintf("**%s**: %s (`%s`)", st.Context, st.Description, shortSHA(sha))
		if st.TargetURL != "" {
			body += fmt.Sprintf("\n\n[Details](%s)", st.TargetURL)
		}
		if _, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, prNum, &gh.IssueComment{Body: gh.Ptr(body)}); err != nil {
			return &ReportingError{Op: "comment", Err: fmt.Errorf("comment on PR #%d: %w", prNum, err)}
		}
	}

	return nil
}

func splitRepo(slug string) (string, string, error) {
	owner, repo, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: must be owner/name", slug)
	}
	return owner, repo, nil
}

// truncate limits s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
