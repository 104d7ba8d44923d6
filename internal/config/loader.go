package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout     = 30 * time.Minute
	defaultStepTimeout = 10 * time.Minute
	defaultStatusCtx   = "ci/prbuild"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills in defaults for anything left unspecified.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./prbuild.yaml, ~/.prbuild/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"prbuild.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".prbuild", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no prbuild config found (searched: %v)", candidates)
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline

	if p.DefaultBranch == "" {
		p.DefaultBranch = "main"
	}
	if p.Timeout == "" {
		p.Timeout = defaultTimeout.String()
	}
	if p.Status.Context == "" {
		p.Status.Context = defaultStatusCtx
	}
	if p.Status.CredentialID == "" {
		p.Status.CredentialID = p.CredentialID
	}
	if p.Artifacts.Dir == "" {
		p.Artifacts.Dir = "dist"
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Parser == "" {
			s.Parser = "generic"
		}
		if s.Timeout == "" {
			s.Timeout = defaultStepTimeout.String()
		}
	}

	if cf := p.CredentialFile; cf != nil && len(cf.Scope) == 0 {
		cf.Scope = []string{"install"}
	}

	if cfg.Credentials == nil {
		cfg.Credentials = map[string]Credential{}
	}
}

// ParseDuration parses s, returning fallback when s is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// RunTimeout is the wall-clock limit for an entire run.
func (p Pipeline) RunTimeout() time.Duration {
	return ParseDuration(p.Timeout, defaultTimeout)
}

// StepTimeout is the limit for a single step.
func (s Step) StepTimeout() time.Duration {
	return ParseDuration(s.Timeout, defaultStepTimeout)
}
