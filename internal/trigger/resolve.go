package trigger

import (
	"errors"
	"fmt"
	"strings"
)

// Mode identifies how source is obtained for a run.
type Mode string

const (
	ModeAutomatedPR   Mode = "automated-pr"
	ModeManualPR      Mode = "manual-pr"
	ModeManualBranch  Mode = "manual-branch"
	ModeDefaultBranch Mode = "default-branch"
)

// Plan is the single decision produced for a run. It is the only input to
// checkout and to status reporting.
type Plan struct {
	Mode          Mode   `json:"mode"`
	PRNumber      string `json:"pr_number,omitempty"`
	BranchRef     string `json:"branch_ref,omitempty"`
	SourceRefspec string `json:"source_refspec,omitempty"`
}

// ErrInvalidPlan is wrapped by every ResolutionError.
var ErrInvalidPlan = errors.New("invalid plan")

// ResolutionError reports a Plan that violates its own invariant. Resolve
// never produces one.
type ResolutionError struct {
	Plan   Plan
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("invalid %s plan: %s", e.Plan.Mode, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return ErrInvalidPlan }

// Resolve classifies tc into exactly one Plan. The first matching rule wins:
// automated PR, manual PR number, manual branch, then the default branch.
func Resolve(tc Context) Plan {
	if id := strings.TrimSpace(tc.ChangeID); id != "" {
		branch := strings.TrimSpace(tc.ChangeBranch)
		if branch == "" {
			branch = localPRBranch(id)
		}
		return Plan{Mode: ModeAutomatedPR, PRNumber: id, BranchRef: branch}
	}

	if pr := strings.TrimSpace(tc.ParamPRNumber); pr != "" {
		return Plan{Mode: ModeManualPR, PRNumber: pr, SourceRefspec: PullRefspec(pr)}
	}

	if branch := strings.TrimSpace(tc.ParamBranchName); branch != "" {
		return Plan{Mode: ModeManualBranch, BranchRef: branch}
	}

	branch := strings.TrimSpace(tc.EnvBranchName)
	if branch == "" {
		branch = strings.TrimSpace(tc.DefaultBranch)
	}
	if branch == "" {
		branch = DefaultBranch
	}
	return Plan{Mode: ModeDefaultBranch, BranchRef: branch}
}

// PullRefspec maps the upstream head ref of a pull request onto a local
// remote-tracking ref named PR-<number>.
func PullRefspec(pr string) string {
	return fmt.Sprintf("+refs/pull/%s/head:refs/remotes/origin/%s", pr, localPRBranch(pr))
}

// BranchRefspec maps an upstream branch onto its remote-tracking ref.
func BranchRefspec(branch string) string {
	return fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch)
}

func localPRBranch(pr string) string {
	return "PR-" + pr
}

// IsPR reports whether the plan carries pull-request identity.
func (p Plan) IsPR() bool {
	return p.Mode == ModeAutomatedPR || p.Mode == ModeManualPR
}

// ChangeID returns the change identity downstream steps should see. Manual PR
// runs report the same identity an automated PR run would.
func (p Plan) ChangeID() string {
	if p.IsPR() {
		return p.PRNumber
	}
	return ""
}

// LocalBranch is the branch name checked out in the workspace.
func (p Plan) LocalBranch() string {
	if p.Mode == ModeManualPR {
		return localPRBranch(p.PRNumber)
	}
	return p.BranchRef
}

// Validate checks the mode/field invariant.
func (p Plan) Validate() error {
	switch p.Mode {
	case ModeAutomatedPR, ModeManualPR, ModeManualBranch, ModeDefaultBranch:
	default:
		return &ResolutionError{Plan: p, Reason: fmt.Sprintf("unknown mode %q", p.Mode)}
	}
	if p.IsPR() != (p.PRNumber != "") {
		return &ResolutionError{Plan: p, Reason: "pr number must be set exactly for PR modes"}
	}
	if (p.Mode != ModeManualPR) != (p.BranchRef != "") {
		return &ResolutionError{Plan: p, Reason: "branch ref must be set for every mode except manual-pr"}
	}
	if (p.Mode == ModeManualPR) != (p.SourceRefspec != "") {
		return &ResolutionError{Plan: p, Reason: "source refspec is only computed for manual-pr"}
	}
	return nil
}

// String renders the plan for log lines.
func (p Plan) String() string {
	switch p.Mode {
	case ModeAutomatedPR:
		return fmt.Sprintf("%s #%s (%s)", p.Mode, p.PRNumber, p.BranchRef)
	case ModeManualPR:
		return fmt.Sprintf("%s #%s via %s", p.Mode, p.PRNumber, p.SourceRefspec)
	default:
		return fmt.Sprintf("%s %s", p.Mode, p.BranchRef)
	}
}
