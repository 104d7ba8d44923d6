package trigger

import "strings"

// DefaultBranch is used when neither the config nor the environment names one.
const DefaultBranch = "main"

// Environment variable names read by FromEnv.
const (
	EnvChangeID     = "CHANGE_ID"
	EnvChangeBranch = "CHANGE_BRANCH"
	EnvChangeTarget = "CHANGE_TARGET"
	EnvPRNumber     = "PR_NUMBER"
	EnvBranchName   = "BRANCH_NAME"
)

// Context captures every signal that can decide how source is obtained for a
// run. An empty string means the signal is absent.
type Context struct {
	// ChangeID is set when PR discovery has already staged a pull request.
	ChangeID string

	// ChangeBranch is the source branch of ChangeID.
	ChangeBranch string

	// ChangeTarget is the merge target of ChangeID. Informational only.
	ChangeTarget string

	// ParamPRNumber is the PR number supplied for a manual run.
	ParamPRNumber string

	// ParamBranchName is the branch supplied for a manual run.
	ParamBranchName string

	// EnvBranchName is the ambient branch name of the executor.
	EnvBranchName string

	// DefaultBranch is the constant fallback, usually "main".
	DefaultBranch string
}

// FromEnv builds a Context from environment lookups. lookup has the signature
// of os.LookupEnv so tests can pass a map-backed function.
func FromEnv(lookup func(string) (string, bool)) Context {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	return Context{
		ChangeID:      get(EnvChangeID),
		ChangeBranch:  get(EnvChangeBranch),
		ChangeTarget:  get(EnvChangeTarget),
		ParamPRNumber: get(EnvPRNumber),
		EnvBranchName: get(EnvBranchName),
		DefaultBranch: DefaultBranch,
	}
}

// Warnings lists inputs that carried only whitespace and were therefore
// ignored. Resolve falls through past them; callers may surface these.
func Warnings(tc Context) []string {
	var out []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{EnvChangeID, tc.ChangeID},
		{EnvPRNumber, tc.ParamPRNumber},
		{"branch name parameter", tc.ParamBranchName},
		{EnvBranchName, tc.EnvBranchName},
	} {
		if f.value != "" && strings.TrimSpace(f.value) == "" {
			out = append(out, f.name+" is whitespace-only and was ignored")
		}
	}
	return out
}
