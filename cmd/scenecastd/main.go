package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"scenecast/internal/config"
	"scenecast/internal/coordinator"
	"scenecast/internal/filestore"
	"scenecast/internal/health"
	"scenecast/internal/httpapi"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
	"scenecast/internal/media"
	"scenecast/internal/ratelimit"
	"scenecast/internal/render"
	"scenecast/internal/render/ffmpeg"
	"scenecast/internal/scheduler"
	"scenecast/internal/webhook"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "scenecastd.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !loaded {
		logger.Info("no config file found, using defaults")
	}

	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "scenecastd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another scenecastd instance is already running")
	}
	defer lock.Unlock()

	store, err := jobs.Open(cfg)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()

	files, err := filestore.New(cfg)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	resolver := media.NewResolver(
		files,
		cfg.Paths.TempDir,
		time.Duration(cfg.Render.DownloadTimeoutSeconds)*time.Second,
		cfg.Render.DownloadMaxBytes,
		logger,
	)
	codec := ffmpeg.New(cfg.Render.FFmpegBin, cfg.Render.FFprobeBin, logger)
	pipeline := render.New(
		resolver,
		codec,
		cfg.Paths.OutputDir,
		cfg.Render.TransitionSeconds,
		time.Duration(cfg.Render.EncodeTimeoutSeconds)*time.Second,
		logger,
	)

	notifier := webhook.NewNotifier(cfg, logger)
	coord := coordinator.New(store, pipeline, notifier, cfg, logger)
	sched := scheduler.New(store, coord, cfg, logger)

	limiter := ratelimit.New(cfg, logger)
	defer limiter.Close()

	checker := health.NewChecker(store, limiter, cfg.Paths.OutputDir, health.ProcessInfo{
		Version:   version,
		StartedAt: time.Now().UTC(),
	})
	server := httpapi.NewServer(cfg, coord, limiter, checker, logger)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	logger.Info("scenecastd started",
		logging.String("version", version),
		logging.String("db", store.Path()),
		logging.String("bind", cfg.Server.Bind),
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", logging.Error(err))
		}
	}

	logger.Info("scenecastd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", logging.Error(err))
	}
	sched.Stop()

	fmt.Fprintln(os.Stdout, "scenecastd stopped")
	return nil
}
