package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scenecast/internal/filestore"
	"scenecast/internal/logging"
)

var (
	// ErrUnreachableSource indicates a URL source could not be fetched.
	ErrUnreachableSource = errors.New("unreachable source")
	// ErrUnsupportedSource indicates a handle source has no backing file.
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Resolved is a local handle to the bytes backing a scene. It is owned by the
// render invocation that created it and must be released when that invocation
// ends, success or failure.
type Resolved struct {
	Path    string
	cleanup func()
}

// Release frees any temporary file behind the resolved media. Safe to call
// more than once.
func (r *Resolved) Release() {
	if r == nil || r.cleanup == nil {
		return
	}
	r.cleanup()
	r.cleanup = nil
}

// Resolver turns scene source references into local media files.
type Resolver struct {
	client   *http.Client
	files    filestore.Store
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

// NewResolver builds a resolver that downloads URLs into tempDir and resolves
// opaque handles through files.
func NewResolver(files filestore.Store, tempDir string, timeout time.Duration, maxBytes int64, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Resolver{
		client:   &http.Client{Timeout: timeout},
		files:    files,
		tempDir:  tempDir,
		maxBytes: maxBytes,
		logger:   logging.WithComponent(logger, "media"),
	}
}

// Resolve fetches a URL source into a scratch file, or looks an opaque handle
// up in the file store.
func (r *Resolver) Resolve(ctx context.Context, source string) (*Resolved, error) {
	if isURL(source) {
		return r.download(ctx, source)
	}

	path, cleanup, err := r.files.Resolve(ctx, source)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
		}
		return nil, fmt.Errorf("resolve handle %s: %w", source, err)
	}
	return &Resolved{Path: path, cleanup: cleanup}, nil
}

func (r *Resolver) download(ctx context.Context, source string) (*Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", ErrUnreachableSource, source, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUnreachableSource, source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrUnreachableSource, source, resp.StatusCode)
	}

	localPath := filepath.Join(r.tempDir, "download_"+uuid.NewString()+extensionFor(resp.Header.Get("Content-Type"), source))
	file, err := os.Create(localPath)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(resp.Body, r.maxBytes+1))
	closeErr := file.Close()
	if err != nil {
		_ = os.Remove(localPath)
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnreachableSource, source, err)
	}
	if closeErr != nil {
		_ = os.Remove(localPath)
		return nil, fmt.Errorf("close scratch file: %w", closeErr)
	}
	if written > r.maxBytes {
		_ = os.Remove(localPath)
		return nil, fmt.Errorf("%w: %s exceeds download limit of %d bytes", ErrUnreachableSource, source, r.maxBytes)
	}

	r.logger.Debug("downloaded source",
		logging.String("source", source),
		logging.Int64("bytes", written),
		logging.String("path", localPath),
	)
	return &Resolved{
		Path:    localPath,
		cleanup: func() { _ = os.Remove(localPath) },
	}, nil
}

func isURL(source string) bool {
	parsed, err := url.Parse(strings.TrimSpace(source))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func extensionFor(contentType, source string) string {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if exts, extErr := mime.ExtensionsByType(mediaType); extErr == nil && len(exts) > 0 {
				return exts[0]
			}
		}
	}
	if parsed, err := url.Parse(source); err == nil {
		if ext := filepath.Ext(parsed.Path); ext != "" {
			return ext
		}
	}
	return ".bin"
}
