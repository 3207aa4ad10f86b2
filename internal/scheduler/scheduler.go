package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scenecast/internal/config"
	"scenecast/internal/coordinator"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
)

// Scheduler polls the store for pending jobs and drives them through the
// coordinator with bounded concurrency. It also runs the expired-job sweep.
type Scheduler struct {
	store        *jobs.Store
	coord        *coordinator.Coordinator
	logger       *slog.Logger
	pollInterval time.Duration
	sweepEvery   time.Duration
	slots        chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a scheduler from config.
func New(store *jobs.Store, coord *coordinator.Coordinator, cfg *config.Config, logger *slog.Logger) *Scheduler {
	poll := time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	sweep := time.Duration(cfg.Jobs.SweepIntervalSeconds) * time.Second
	if sweep <= 0 {
		sweep = time.Hour
	}
	workers := cfg.Jobs.MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:        store,
		coord:        coord,
		logger:       logging.WithComponent(logger, "scheduler"),
		pollInterval: poll,
		sweepEvery:   sweep,
		slots:        make(chan struct{}, workers),
	}
}

// Start launches the poll and sweep loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(2)
	s.mu.Unlock()

	go s.runPoll(runCtx)
	go s.runSweep(runCtx)
	return nil
}

// Stop terminates the loops and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) runPoll(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.dispatchPending(ctx)
	}
}

// dispatchPending claims pending jobs until the store runs dry or all worker
// slots are occupied. The pending->processing transition is the claim; a
// second scheduler instance loses it cleanly.
func (s *Scheduler) dispatchPending(ctx context.Context) {
	for {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return
		default:
			return
		}

		job, err := s.store.NextPending(ctx)
		if err != nil {
			<-s.slots
			s.logger.Warn("poll pending jobs", logging.Error(err))
			return
		}
		if job == nil {
			<-s.slots
			return
		}

		claimed, err := s.coord.Begin(ctx, job.ID)
		if err != nil {
			<-s.slots
			if errors.Is(err, jobs.ErrInvalidTransition) {
				continue
			}
			s.logger.Warn("claim job", logging.String("job_id", job.ID), logging.Error(err))
			return
		}

		s.logger.Info("job claimed",
			logging.String("job_id", claimed.ID),
			logging.String("priority", string(claimed.Priority)),
		)
		s.wg.Add(1)
		go func(id string) {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			if err := s.coord.Drive(ctx, id); err != nil {
				s.logger.Warn("job run failed", logging.String("job_id", id), logging.Error(err))
			}
		}(claimed.ID)
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.coord.SweepExpired(ctx, time.Now()); err != nil {
			s.logger.Warn("expired job sweep", logging.Error(err))
		}
	}
}
