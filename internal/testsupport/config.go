package testsupport

import (
	"path/filepath"
	"testing"

	"scenecast/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.LocalDir = filepath.Join(base, "uploads")
	cfg.Server.Bind = "127.0.0.1:0"
	cfg.Jobs.PollIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithAPIKeys sets the accepted API keys on the test config.
func WithAPIKeys(keys ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Server.APIKeys = keys
	}
}

// WithMaxRetries overrides the retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Jobs.MaxRetries = n
	}
}
