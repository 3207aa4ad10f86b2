package media_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scenecast/internal/filestore"
	"scenecast/internal/logging"
	"scenecast/internal/media"
	"scenecast/internal/testsupport"
)

func newResolver(t *testing.T, maxBytes int64) (*media.Resolver, string, string) {
	t.Helper()
	base := t.TempDir()
	uploads := filepath.Join(base, "uploads")
	temp := filepath.Join(base, "tmp")
	for _, dir := range []string{uploads, temp} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	resolver := media.NewResolver(filestore.NewLocal(uploads), temp, time.Minute, maxBytes, logging.NewNop())
	return resolver, uploads, temp
}

func TestResolveDownloadsURL(t *testing.T) {
	resolver, _, temp := newResolver(t, 1<<20)

	body := "jpeg-bytes"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	resolved, err := resolver.Resolve(context.Background(), server.URL+"/photo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer resolved.Release()

	if !strings.HasPrefix(resolved.Path, temp) {
		t.Fatalf("download outside temp dir: %s", resolved.Path)
	}
	data, err := os.ReadFile(resolved.Path)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != body {
		t.Fatalf("downloaded bytes = %q", data)
	}

	resolved.Release()
	if _, err := os.Stat(resolved.Path); !os.IsNotExist(err) {
		t.Fatal("release did not remove the scratch file")
	}
}

func TestResolveReleaseIsIdempotent(t *testing.T) {
	resolver, _, _ := newResolver(t, 1<<20)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	resolved, err := resolver.Resolve(context.Background(), server.URL+"/a.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	resolved.Release()
	resolved.Release()
}

func TestResolveHTTPErrorIsUnreachable(t *testing.T) {
	resolver, _, _ := newResolver(t, 1<<20)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := resolver.Resolve(context.Background(), server.URL+"/missing.png"); !errors.Is(err, media.ErrUnreachableSource) {
		t.Fatalf("error = %v, want ErrUnreachableSource", err)
	}
}

func TestResolveConnectionFailureIsUnreachable(t *testing.T) {
	resolver, _, _ := newResolver(t, 1<<20)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	if _, err := resolver.Resolve(context.Background(), server.URL+"/x"); !errors.Is(err, media.ErrUnreachableSource) {
		t.Fatalf("error = %v, want ErrUnreachableSource", err)
	}
}

func TestResolveEnforcesDownloadLimit(t *testing.T) {
	resolver, _, temp := newResolver(t, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	if _, err := resolver.Resolve(context.Background(), server.URL+"/big.mp4"); !errors.Is(err, media.ErrUnreachableSource) {
		t.Fatalf("error = %v, want ErrUnreachableSource", err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(temp, "download_*"))
	if len(leftovers) != 0 {
		t.Fatalf("oversize download left scratch files: %v", leftovers)
	}
}

func TestResolveHandleFromFileStore(t *testing.T) {
	resolver, uploads, _ := newResolver(t, 1<<20)
	testsupport.WriteFile(t, filepath.Join(uploads, "upload-1.png"), 32)

	resolved, err := resolver.Resolve(context.Background(), "upload-1")
	if err != nil {
		t.Fatalf("Resolve handle: %v", err)
	}
	defer resolved.Release()

	if filepath.Base(resolved.Path) != "upload-1.png" {
		t.Fatalf("resolved wrong file: %s", resolved.Path)
	}
	resolved.Release()
	if _, err := os.Stat(resolved.Path); err != nil {
		t.Fatal("release of a store-backed file must not delete it")
	}
}

func TestResolveUnknownHandle(t *testing.T) {
	resolver, _, _ := newResolver(t, 1<<20)

	if _, err := resolver.Resolve(context.Background(), "no-such-upload"); !errors.Is(err, media.ErrUnsupportedSource) {
		t.Fatalf("error = %v, want ErrUnsupportedSource", err)
	}
}
