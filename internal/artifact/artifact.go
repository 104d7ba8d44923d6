// Package artifact validates the output directory a build leaves behind.
package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError reports a missing, empty or incomplete output directory.
// Entries is the number of top-level entries found.
type ValidationError struct {
	Dir     string
	Entries int
	Missing []string
	Err     error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("output directory %s: %v (found %d entries)", e.Dir, e.Err, e.Entries)
	case len(e.Missing) > 0:
		return fmt.Sprintf("output directory %s has %d entries but no match for %v", e.Dir, e.Entries, e.Missing)
	default:
		return fmt.Sprintf("output directory %s is empty (found %d entries)", e.Dir, e.Entries)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Report summarises a validated output directory.
type Report struct {
	Dir     string `json:"dir"`
	Entries int    `json:"entries"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
}

// Validate checks that dir exists, is a non-empty directory, and that every
// doublestar pattern in required matches at least one file under it.
func Validate(dir string, required []string) (*Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ValidationError{Dir: dir, Err: fmt.Errorf("does not exist")}
		}
		return nil, &ValidationError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ValidationError{Dir: dir, Err: fmt.Errorf("is not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ValidationError{Dir: dir, Err: err}
	}
	if len(entries) == 0 {
		return nil, &ValidationError{Dir: dir, Entries: 0}
	}

	report := &Report{Dir: dir, Entries: len(entries)}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		report.Files++
		report.Bytes += fi.Size()
		return nil
	})
	if err != nil {
		return nil, &ValidationError{Dir: dir, Entries: len(entries), Err: err}
	}

	fsys := os.DirFS(dir)
	var missing []string
	for _, pattern := range required {
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, &ValidationError{Dir: dir, Entries: len(entries), Err: fmt.Errorf("pattern %q: %w", pattern, err)}
		}
		if len(matches) == 0 {
			missing = append(missing, pattern)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Dir: dir, Entries: len(entries), Missing: missing}
	}

	return report, nil
}
