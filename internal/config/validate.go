package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that cannot be repaired by
// defaulting. It returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir is required")
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		return errors.New("paths.temp_dir is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("jobs.max_retries must not be negative, got %d", c.Jobs.MaxRetries)
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.RetentionDays < 1 {
		return fmt.Errorf("jobs.retention_days must be at least 1, got %d", c.Jobs.RetentionDays)
	}
	if c.Render.DownloadMaxBytes <= 0 {
		return fmt.Errorf("render.download_max_bytes must be positive, got %d", c.Render.DownloadMaxBytes)
	}
	if c.Render.TransitionSeconds <= 0 {
		return fmt.Errorf("render.transition_seconds must be positive, got %v", c.Render.TransitionSeconds)
	}

	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir is required for the local backend")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3Bucket) == "" {
			return errors.New("storage.s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be \"local\" or \"s3\", got %q", c.Storage.Backend)
	}

	if c.RateLimit.Enabled {
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required when rate_limit.enabled is true")
		}
		if c.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("rate_limit.requests_per_minute must be at least 1, got %d", c.RateLimit.RequestsPerMinute)
		}
	}
	return nil
}
