package checkout

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lucasnoah/prbuild/internal/trigger"
)

// GitRunner provides git commands. Interface for testing.
type GitRunner interface {
	Run(ctx context.Context, dir string, env []string, args ...string) (string, error)
}

// ExecGit implements GitRunner using exec.CommandContext. env entries are
// appended to the process environment.
type ExecGit struct{}

func (g *ExecGit) Run(ctx context.Context, dir string, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CheckoutError reports that source could not be obtained: a missing ref or
// PR, a rejected credential, or a workspace that is not a repository.
type CheckoutError struct {
	Ref string
	Err error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Ref, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// Result describes the checked-out source.
type Result struct {
	Dir string `json:"dir"`
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// Manager performs checkouts for a single repository.
type Manager struct {
	git     GitRunner
	repoURL string
}

// NewManager creates a checkout manager for repoURL.
func NewManager(git GitRunner, repoURL string) *Manager {
	return &Manager{git: git, repoURL: repoURL}
}

// Checkout obtains the source described by plan into dir. token may be empty
// for anonymous access. Automated PR plans expect dir to already hold the
// staged commit and only verify it.
func (m *Manager) Checkout(ctx context.Context, plan trigger.Plan, dir string, token string) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, &CheckoutError{Ref: plan.LocalBranch(), Err: err}
	}

	switch plan.Mode {
	case trigger.ModeAutomatedPR:
		return m.verifyStaged(ctx, plan, dir)
	case trigger.ModeManualPR:
		if !isNumeric(plan.PRNumber) {
			return nil, &CheckoutError{
				Ref: "PR " + plan.PRNumber,
				Err: fmt.Errorf("invalid PR number %q: must be a positive integer", plan.PRNumber),
			}
		}
		return m.fetch(ctx, dir, token, plan.SourceRefspec, plan.LocalBranch())
	default:
		if strings.HasPrefix(plan.BranchRef, "-") {
			return nil, &CheckoutError{
				Ref: plan.BranchRef,
				Err: fmt.Errorf("invalid branch name %q: must not start with -", plan.BranchRef),
			}
		}
		return m.fetch(ctx, dir, token, trigger.BranchRefspec(plan.BranchRef), plan.BranchRef)
	}
}

func (m *Manager) verifyStaged(ctx context.Context, plan trigger.Plan, dir string) (*Result, error) {
	sha, err := m.git.Run(ctx, dir, nil, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return nil, &CheckoutError{
			Ref: "PR " + plan.PRNumber,
			Err: fmt.Errorf("workspace %s does not hold the staged change: %w", dir, err),
		}
	}
	return &Result{Dir: dir, Ref: plan.BranchRef, SHA: sha}, nil
}

// fetch initialises dir, fetches refspec from origin and checks out local.
func (m *Manager) fetch(ctx context.Context, dir, token, refspec, local string) (*Result, error) {
	fail := func(err error) (*Result, error) {
		return nil, &CheckoutError{Ref: local, Err: err}
	}

	if m.repoURL == "" {
		return fail(fmt.Errorf("repository URL not configured"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(fmt.Errorf("mkdir workspace: %w", err))
	}

	if _, err := m.git.Run(ctx, dir, nil, "init", "--quiet"); err != nil {
		return fail(err)
	}
	if _, err := m.git.Run(ctx, dir, nil, "remote", "add", "origin", m.repoURL); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fail(err)
		}
		if _, err := m.git.Run(ctx, dir, nil, "remote", "set-url", "origin", m.repoURL); err != nil {
			return fail(err)
		}
	}

	if _, err := m.git.Run(ctx, dir, authEnv(token), "fetch", "--no-tags", "--prune", "origin", refspec); err != nil {
		return fail(err)
	}

	tracking := refspec[strings.LastIndex(refspec, ":")+1:]
	if _, err := m.git.Run(ctx, dir, nil, "checkout", "--force", "-B", local, tracking); err != nil {
		return fail(err)
	}

	sha, err := m.git.Run(ctx, dir, nil, "rev-parse", "HEAD")
	if err != nil {
		return fail(err)
	}
	return &Result{Dir: dir, Ref: local, SHA: sha}, nil
}

// authEnv passes the token as an HTTP basic auth header through git's
// environment config so it never appears in argv or .git/config.
func authEnv(token string) []string {
	if token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraheader",
		"GIT_CONFIG_VALUE_0=AUTHORIZATION: basic " + basic,
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
