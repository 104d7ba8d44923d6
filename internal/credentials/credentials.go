package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasnoah/prbuild/internal/config"
)

// ErrNotFound is returned when a credential id is unknown or its value is unset.
var ErrNotFound = errors.New("credential not available")

// Store resolves logical credential names to secret values. Values are looked
// up on every call and never cached.
type Store struct {
	defs   map[string]config.Credential
	lookup func(string) (string, bool)
}

// NewStore creates a Store over the configured credentials. lookup is usually
// os.LookupEnv.
func NewStore(defs map[string]config.Credential, lookup func(string) (string, bool)) *Store {
	return &Store{defs: defs, lookup: lookup}
}

// Get returns the secret for id.
func (s *Store) Get(id string) (string, error) {
	def, ok := s.defs[id]
	if !ok {
		return "", fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	v, ok := s.lookup(def.Env)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("credential %q ($%s): %w", id, def.Env, ErrNotFound)
	}
	return strings.TrimSpace(v), nil
}

// File materialises a credential file inside a workspace, e.g. an .npmrc
// carrying a registry token.
type File struct {
	cfg   config.CredentialFile
	store *Store
}

// NewFile creates a File. A nil cfg yields a File whose methods are no-ops.
func NewFile(cfg *config.CredentialFile, store *Store) *File {
	if cfg == nil {
		return &File{store: store}
	}
	return &File{cfg: *cfg, store: store}
}

// Covers reports whether step needs the credential file present.
func (f *File) Covers(step string) bool {
	for _, s := range f.cfg.Scope {
		if s == step {
			return true
		}
	}
	return false
}

// Write creates the file under workspace with mode 0600 and returns a func that
// removes it. ${TOKEN} in the configured content is replaced by the secret.
func (f *File) Write(workspace string) (remove func() error, err error) {
	if f.cfg.Path == "" {
		return func() error { return nil }, nil
	}

	token, err := f.store.Get(f.cfg.CredentialID)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(workspace, filepath.Clean(f.cfg.Path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for credential file: %w", err)
	}

	content := strings.ReplaceAll(f.cfg.Content, "${TOKEN}", token)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("write credential file: %w", err)
	}

	return func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove credential file: %w", err)
		}
		return nil
	}, nil
}

// Path is the configured workspace-relative path, empty when disabled.
func (f *File) Path() string {
	return f.cfg.Path
}
