package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and database location configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
}

// Server contains the HTTP API configuration.
type Server struct {
	Bind    string   `toml:"bind"`
	APIKeys []string `toml:"api_keys"`
}

// Jobs contains job lifecycle and scheduling configuration.
type Jobs struct {
	MaxRetries           int `toml:"max_retries"`
	RetentionDays        int `toml:"retention_days"`
	MaxConcurrent        int `toml:"max_concurrent"`
	PollIntervalSeconds  int `toml:"poll_interval_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Render contains media resolution and encode configuration.
type Render struct {
	FFmpegBin              string  `toml:"ffmpeg_bin"`
	FFprobeBin             string  `toml:"ffprobe_bin"`
	DownloadTimeoutSeconds int     `toml:"download_timeout_seconds"`
	DownloadMaxBytes       int64   `toml:"download_max_bytes"`
	EncodeTimeoutSeconds   int     `toml:"encode_timeout_seconds"`
	TransitionSeconds      float64 `toml:"transition_seconds"`
}

// Storage contains the uploaded-file store configuration.
// Backend is "local" or "s3".
type Storage struct {
	Backend     string `toml:"backend"`
	LocalDir    string `toml:"local_dir"`
	S3Bucket    string `toml:"s3_bucket"`
	S3Region    string `toml:"s3_region"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3PathStyle bool   `toml:"s3_path_style"`
}

// Redis contains the connection settings shared by the rate limiter and
// health checks. Leave Addr empty to disable Redis-backed features.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RateLimit contains the submission gate configuration.
type RateLimit struct {
	Enabled           bool `toml:"enabled"`
	RequestsPerMinute int  `toml:"requests_per_minute"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Webhook contains delivery settings for job completion callbacks.
type Webhook struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Config encapsulates all configuration values for scenecast.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Jobs      Jobs      `toml:"jobs"`
	Render    Render    `toml:"render"`
	Storage   Storage   `toml:"storage"`
	Redis     Redis     `toml:"redis"`
	RateLimit RateLimit `toml:"rate_limit"`
	Webhook   Webhook   `toml:"webhook"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scenecast/config.toml")
}

// Load locates, parses, and validates a configuration file. When path is
// empty the default location is used; a missing file yields defaults.
// The second return value reports whether a file was actually read.
func Load(path string) (*Config, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, false, err
		}
		resolved = defaultPath
	} else {
		expanded, err := expandPath(resolved)
		if err != nil {
			return nil, false, err
		}
		resolved = expanded
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		if err := cfg.normalize(); err != nil {
			return nil, true, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, true, err
		}
		return &cfg, true, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := cfg.normalize(); err != nil {
			return nil, false, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, false, err
		}
		return &cfg, false, nil
	default:
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates every directory the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.TempDir, c.Paths.DataDir, c.Paths.LogDir}
	if strings.EqualFold(c.Storage.Backend, "local") && c.Storage.LocalDir != "" {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

func (c *Config) normalize() error {
	fields := []struct {
		value *string
	}{
		{&c.Paths.OutputDir},
		{&c.Paths.TempDir},
		{&c.Paths.DataDir},
		{&c.Paths.LogDir},
		{&c.Storage.LocalDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(*field.value)
		if err != nil {
			return err
		}
		*field.value = expanded
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return abs, nil
}
