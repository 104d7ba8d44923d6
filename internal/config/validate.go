package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedParsers is the set of valid parser names for steps.
var recognizedParsers = map[string]bool{
	"typescript": true,
	"generic":    true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if p.RepoURL == "" {
		errs = append(errs, ValidationError{Field: "pipeline.repo_url", Message: "is required"})
	}
	if p.Repo != "" && strings.Count(p.Repo, "/") != 1 {
		errs = append(errs, ValidationError{Field: "pipeline.repo", Message: fmt.Sprintf("%q must be owner/name", p.Repo)})
	}
	if strings.HasPrefix(p.DefaultBranch, "-") {
		errs = append(errs, ValidationError{Field: "pipeline.default_branch", Message: "must not start with -"})
	}
	if len(p.Steps) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.steps", Message: "at least one step is required"})
	}

	validateDuration("pipeline.timeout", p.Timeout, &errs)
	validateCredentialRef("pipeline.credential_id", p.CredentialID, cfg.Credentials, &errs)
	validateCredentialRef("pipeline.status.credential_id", p.Status.CredentialID, cfg.Credentials, &errs)

	for i, tool := range p.Tools {
		prefix := fmt.Sprintf("pipeline.tools[%d]", i)
		if tool.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		}
		if tool.Command == "" {
			errs = append(errs, ValidationError{Field: prefix + ".command", Message: "is required"})
		}
	}

	stepNames := make(map[string]bool)
	for i, s := range p.Steps {
		prefix := fmt.Sprintf("pipeline.steps[%d]", i)
		if s.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
		} else if stepNames[s.Name] {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate step name %q", s.Name)})
		}
		stepNames[s.Name] = true

		if s.Command == "" {
			errs = append(errs, ValidationError{Field: prefix + ".command", Message: "is required"})
		}
		if s.Parser != "" && !recognizedParsers[s.Parser] {
			errs = append(errs, ValidationError{Field: prefix + ".parser", Message: fmt.Sprintf("unrecognized parser %q", s.Parser)})
		}
		validateDuration(prefix+".timeout", s.Timeout, &errs)
	}

	if cf := p.CredentialFile; cf != nil {
		switch {
		case cf.Path == "":
			errs = append(errs, ValidationError{Field: "pipeline.credential_file.path", Message: "is required"})
		case !insideWorkspace(cf.Path):
			errs = append(errs, ValidationError{Field: "pipeline.credential_file.path", Message: "must be relative to the workspace"})
		}
		if cf.CredentialID == "" {
			errs = append(errs, ValidationError{Field: "pipeline.credential_file.credential_id", Message: "is required"})
		}
		validateCredentialRef("pipeline.credential_file.credential_id", cf.CredentialID, cfg.Credentials, &errs)
		for _, name := range cf.Scope {
			if !stepNames[name] {
				errs = append(errs, ValidationError{
					Field:   "pipeline.credential_file.scope",
					Message: fmt.Sprintf("references undefined step %q", name),
				})
			}
		}
	}

	if !insideWorkspace(p.Artifacts.Dir) {
		errs = append(errs, ValidationError{Field: "pipeline.artifacts.dir", Message: "must be relative to the workspace"})
	}
	for i, pattern := range p.Artifacts.Required {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.artifacts.required[%d]", i),
				Message: fmt.Sprintf("invalid glob %q", pattern),
			})
		}
	}

	for name, c := range cfg.Credentials {
		if c.Env == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("credentials.%s.env", name), Message: "is required"})
		}
	}

	return errs
}

// insideWorkspace reports whether a workspace-relative path stays inside the
// workspace once cleaned.
func insideWorkspace(p string) bool {
	if filepath.IsAbs(p) {
		return false
	}
	clean := filepath.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

func validateDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d <= 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must be positive"})
	}
}

func validateCredentialRef(field, id string, creds map[string]Credential, errs *[]ValidationError) {
	if id == "" {
		return
	}
	if _, ok := creds[id]; !ok {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("references undefined credential %q", id)})
	}
}
