package config

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: "~/.local/share/scenecast/output",
			TempDir:   "~/.local/share/scenecast/tmp",
			DataDir:   "~/.local/share/scenecast",
			LogDir:    "~/.local/share/scenecast/logs",
		},
		Server: Server{
			Bind: "127.0.0.1:8090",
		},
		Jobs: Jobs{
			MaxRetries:           3,
			RetentionDays:        7,
			MaxConcurrent:        2,
			PollIntervalSeconds:  2,
			SweepIntervalSeconds: 3600,
		},
		Render: Render{
			FFmpegBin:              "ffmpeg",
			FFprobeBin:             "ffprobe",
			DownloadTimeoutSeconds: 60,
			DownloadMaxBytes:       512 << 20,
			EncodeTimeoutSeconds:   1800,
			TransitionSeconds:      0.5,
		},
		Storage: Storage{
			Backend:  "local",
			LocalDir: "~/.local/share/scenecast/uploads",
			S3Region: "us-east-1",
		},
		RateLimit: RateLimit{
			Enabled:           false,
			RequestsPerMinute: 60,
		},
		Webhook: Webhook{
			TimeoutSeconds: 10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}
