package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scenecast/internal/config"
)

// ErrNotFound indicates the handle does not exist or has expired.
var ErrNotFound = errors.New("file not found")

// Store resolves opaque upload handles into local, seekable file paths.
type Store interface {
	// Resolve returns a local path for the handle. The caller owns any
	// temporary file created and removes it via the returned cleanup.
	Resolve(ctx context.Context, handle string) (path string, cleanup func(), err error)
}

// New builds the file store selected by configuration.
func New(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case "local":
		return NewLocal(cfg.Storage.LocalDir), nil
	case "s3":
		return NewS3(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// validHandle rejects handles that could escape the store namespace.
func validHandle(handle string) bool {
	trimmed := strings.TrimSpace(handle)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, "/\\") {
		return false
	}
	return true
}
