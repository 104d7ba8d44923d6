package config

// Config is the top-level configuration structure parsed from prbuild YAML.
type Config struct {
	Pipeline    Pipeline              `yaml:"pipeline"`
	Credentials map[string]Credential `yaml:"credentials"`
}

// Pipeline defines the repository, the ordered build steps and the
// post-build checks.
type Pipeline struct {
	Name           string          `yaml:"name"`
	RepoURL        string          `yaml:"repo_url"`
	Repo           string          `yaml:"repo"` // owner/name on GitHub, used for status reporting
	CredentialID   string          `yaml:"credential_id"`
	DefaultBranch  string          `yaml:"default_branch"`
	Timeout        string          `yaml:"timeout"`
	Tools          []Tool          `yaml:"tools"`
	CredentialFile *CredentialFile `yaml:"credential_file"`
	Steps          []Step          `yaml:"steps"`
	Artifacts      Artifacts       `yaml:"artifacts"`
	Status         Status          `yaml:"status"`
	History        History         `yaml:"history"`
}

// Tool is a version probe run before any step, e.g. "node --version".
type Tool struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// Step is a single external tool invocation such as "npm ci".
type Step struct {
	Name         string            `yaml:"name"`
	Command      string            `yaml:"command"`
	Parser       string            `yaml:"parser"`
	Timeout      string            `yaml:"timeout"`
	AllowFailure bool              `yaml:"allow_failure"`
	Env          map[string]string `yaml:"env"`
}

// CredentialFile is written into the workspace for the steps named in Scope
// and removed right after each of them.
type CredentialFile struct {
	Path         string   `yaml:"path"`
	Content      string   `yaml:"content"`
	CredentialID string   `yaml:"credential_id"`
	Scope        []string `yaml:"scope"`
}

// Artifacts configures output validation after the build.
type Artifacts struct {
	Dir      string   `yaml:"dir"`
	Required []string `yaml:"required"`
}

// Status configures the commit status reported back to GitHub.
type Status struct {
	Context      string `yaml:"context"`
	TargetURL    string `yaml:"target_url"`
	CredentialID string `yaml:"credential_id"`
	Comment      bool   `yaml:"comment"`
	APIURL       string `yaml:"api_url"`
}

// History configures the optional Postgres run log.
type History struct {
	DSN string `yaml:"dsn"`
}

// Credential maps a logical credential name onto where its value lives.
type Credential struct {
	Env string `yaml:"env"`
}
