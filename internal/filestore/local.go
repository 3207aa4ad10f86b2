package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local resolves handles against a directory of uploaded files. Files are
// stored as <handle> or <handle>.<ext>.
type Local struct {
	dir string
}

// NewLocal builds a filesystem-backed store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Resolve implements Store. No temporary file is created, so cleanup is a no-op.
func (l *Local) Resolve(_ context.Context, handle string) (string, func(), error) {
	if !validHandle(handle) {
		return "", nil, fmt.Errorf("%w: invalid handle %q", ErrNotFound, handle)
	}

	exact := filepath.Join(l.dir, handle)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, func() {}, nil
	}

	matches, err := filepath.Glob(exact + ".*")
	if err == nil {
		for _, match := range matches {
			if info, statErr := os.Stat(match); statErr == nil && !info.IsDir() {
				return match, func() {}, nil
			}
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
}
