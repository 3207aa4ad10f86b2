package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"scenecast/internal/config"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
	"scenecast/internal/render"
	"scenecast/internal/webhook"
)

// ErrNotFound indicates the job does not exist for the given owner.
var ErrNotFound = errors.New("job not found")

// Coordinator owns the job lifecycle: it accepts compositions, drives them
// through the render pipeline, and applies every status transition through
// the store's guarded writes.
type Coordinator struct {
	store    *jobs.Store
	pipeline *render.Pipeline
	notifier webhook.Notifier
	logger   *slog.Logger

	maxRetries int
	retention  time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds a coordinator from config.
func New(store *jobs.Store, pipeline *render.Pipeline, notifier webhook.Notifier, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if notifier == nil {
		notifier = webhook.NewNop()
	}
	retention := time.Duration(cfg.Jobs.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &Coordinator{
		store:      store,
		pipeline:   pipeline,
		notifier:   notifier,
		logger:     logging.WithComponent(logger, "coordinator"),
		maxRetries: cfg.Jobs.MaxRetries,
		retention:  retention,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Submit validates a composition request and persists it as a pending job.
func (c *Coordinator) Submit(ctx context.Context, ownerKey string, req *Request) (*jobs.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	priority := jobs.PriorityNormal
	if req.Priority != "" {
		parsed, ok := jobs.ParsePriority(req.Priority)
		if !ok {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, req.Priority)
		}
		priority = parsed
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	expires := time.Now().UTC().Add(c.retention)
	job := &jobs.Job{
		ID:          uuid.NewString(),
		OwnerKey:    ownerKey,
		Title:       req.Title(),
		Description: req.Description(),
		Status:      jobs.StatusPending,
		Priority:    priority,
		RequestJSON: string(payload),
		MaxRetries:  c.maxRetries,
		ExpiresAt:   &expires,
		WebhookURL:  req.WebhookURL,
	}
	if err := c.store.Create(ctx, job); err != nil {
		return nil, err
	}

	c.logger.Info("job submitted",
		logging.String("job_id", job.ID),
		logging.String("priority", string(job.Priority)),
		logging.Int("scenes", len(req.Scenes)),
	)
	return job, nil
}

// Begin claims a pending job for execution.
func (c *Coordinator) Begin(ctx context.Context, id string) (*jobs.Job, error) {
	return c.store.Transition(ctx, id, jobs.StatusPending, jobs.StatusProcessing, func(job *jobs.Job) {
		now := time.Now().UTC()
		job.StartedAt = &now
		job.Progress = 0
		job.CurrentStep = "Starting"
	})
}

// Drive executes a claimed job to a terminal status. It is a no-op when the
// job is not processing, so a stale claim or a concurrent cancel is harmless.
// Drive returns the render error for logging; lifecycle bookkeeping failures
// are returned in its place only when the terminal status could not be
// persisted.
func (c *Coordinator) Drive(ctx context.Context, id string) error {
	job, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil || job.Status != jobs.StatusProcessing {
		return nil
	}

	var req Request
	if err := json.Unmarshal([]byte(job.RequestJSON), &req); err != nil {
		return c.finishFailed(ctx, id, fmt.Errorf("stored request is corrupt: %w", err))
	}
	if err := req.Validate(); err != nil {
		return c.finishFailed(ctx, id, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.registerRun(id, cancel)
	defer func() {
		cancel()
		c.unregisterRun(id)
	}()

	// The pipeline blocks on each checkpoint send, so progress rows are
	// written in order. The store clamps progress to non-decreasing.
	events := make(chan render.Event)
	var drain sync.WaitGroup
	drain.Add(1)
	go func() {
		defer drain.Done()
		for event := range events {
			persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := c.store.UpdateProgress(persistCtx, id, event.Percent, event.Step); err != nil {
				c.logger.Warn("persist progress", logging.String("job_id", id), logging.Error(err))
			}
			persistCancel()
		}
	}()

	artifact, renderErr := c.pipeline.Render(runCtx, req.ToRender(), events)
	close(events)
	drain.Wait()

	if renderErr != nil {
		if err := c.finishFailed(ctx, id, renderErr); err != nil {
			return err
		}
		return renderErr
	}

	completed, err := c.store.Transition(context.WithoutCancel(ctx), id, jobs.StatusProcessing, jobs.StatusCompleted, func(job *jobs.Job) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Progress = 100
		job.CurrentStep = "Video composition complete"
		job.OutputPath = artifact.Path
		job.OutputFormat = string(artifact.Format)
		job.OutputSize = artifact.Size
		job.OutputDuration = artifact.Duration
	})
	if errors.Is(err, jobs.ErrInvalidTransition) {
		// Cancelled while the encode was finishing. The output file is
		// orphaned; the expiry sweep will not find it, so drop it now.
		_ = os.Remove(artifact.Path)
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("job completed",
		logging.String("job_id", id),
		logging.String("output", artifact.Path),
		logging.Float64("duration_seconds", artifact.Duration),
	)
	c.notify(completed, c.notifier.NotifyCompleted)
	return nil
}

// finishFailed moves a processing job to failed. A concurrent cancel wins.
func (c *Coordinator) finishFailed(ctx context.Context, id string, cause error) error {
	failed, err := c.store.Transition(context.WithoutCancel(ctx), id, jobs.StatusProcessing, jobs.StatusFailed, func(job *jobs.Job) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.CurrentStep = "Failed"
		job.ErrorMessage = cause.Error()
	})
	if errors.Is(err, jobs.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Warn("job failed",
		logging.String("job_id", id),
		logging.Int("retry_count", failed.RetryCount),
		logging.Error(cause),
	)
	c.notify(failed, c.notifier.NotifyFailed)
	return nil
}

// Cancel stops a job that has not reached a terminal status. A processing
// job's row is moved first and its render context cancelled second, so the
// driver's own failure transition loses the race cleanly.
func (c *Coordinator) Cancel(ctx context.Context, id, ownerKey string) (*jobs.Job, error) {
	job, err := c.store.GetForOwner(ctx, id, ownerKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}

	from := job.Status
	switch from {
	case jobs.StatusPending, jobs.StatusQueued, jobs.StatusProcessing:
	default:
		return nil, fmt.Errorf("%w: job is %s", jobs.ErrInvalidTransition, from)
	}

	cancelled, err := c.store.Transition(ctx, id, from, jobs.StatusCancelled, func(job *jobs.Job) {
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.CurrentStep = "Cancelled"
	})
	if err != nil {
		return nil, err
	}
	c.cancelRun(id)

	c.logger.Info("job cancelled", logging.String("job_id", id))
	c.notify(cancelled, c.notifier.NotifyCancelled)
	return cancelled, nil
}

// Retry re-queues a failed job while retry budget remains.
func (c *Coordinator) Retry(ctx context.Context, id, ownerKey string) (*jobs.Job, error) {
	job, err := c.store.GetForOwner(ctx, id, ownerKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	if !job.RetryEligible() {
		return nil, fmt.Errorf("%w: job is %s with %d/%d retries used",
			jobs.ErrInvalidTransition, job.Status, job.RetryCount, job.MaxRetries)
	}

	retried, err := c.store.Transition(ctx, id, jobs.StatusFailed, jobs.StatusPending, func(job *jobs.Job) {
		job.RetryCount++
		job.Progress = 0
		job.CurrentStep = ""
		job.ErrorMessage = ""
		job.StartedAt = nil
		job.CompletedAt = nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("job queued for retry",
		logging.String("job_id", id),
		logging.Int("retry_count", retried.RetryCount),
	)
	return retried, nil
}

// Get returns a job scoped to its owner.
func (c *Coordinator) Get(ctx context.Context, id, ownerKey string) (*jobs.Job, error) {
	job, err := c.store.GetForOwner(ctx, id, ownerKey)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns an owner's jobs plus the unpaginated match count.
func (c *Coordinator) List(ctx context.Context, ownerKey string, filter jobs.Filter) ([]*jobs.Job, int, error) {
	listed, err := c.store.List(ctx, ownerKey, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := c.store.CountForOwner(ctx, ownerKey, filter)
	if err != nil {
		return nil, 0, err
	}
	return listed, total, nil
}

// Delete removes a job record and its output file.
func (c *Coordinator) Delete(ctx context.Context, id, ownerKey string) error {
	job, err := c.store.GetForOwner(ctx, id, ownerKey)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.Status == jobs.StatusProcessing {
		c.cancelRun(id)
	}

	deleted, err := c.store.Delete(ctx, id, ownerKey)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	if job.OutputPath != "" {
		if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("remove output file", logging.String("path", job.OutputPath), logging.Error(err))
		}
	}
	return nil
}

// SweepExpired deletes jobs past their expiration along with their outputs.
func (c *Coordinator) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	outputs, err := c.store.ExpiredOutputPaths(ctx, now)
	if err != nil {
		return 0, err
	}
	removed, err := c.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, path := range outputs {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("remove expired output", logging.String("path", path), logging.Error(err))
		}
	}
	if removed > 0 {
		c.logger.Info("expired jobs removed", logging.Int64("count", removed))
	}
	return removed, nil
}

// notify delivers a webhook event and records the attempt on the job.
func (c *Coordinator) notify(job *jobs.Job, deliver func(context.Context, *jobs.Job) error) {
	if job == nil || job.WebhookURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := deliver(ctx, job); err != nil {
		c.logger.Warn("webhook delivery failed",
			logging.String("job_id", job.ID),
			logging.Error(err),
		)
		return
	}
	job.WebhookSent = true
	if err := c.store.Update(ctx, job); err != nil {
		c.logger.Warn("record webhook delivery", logging.String("job_id", job.ID), logging.Error(err))
	}
}

func (c *Coordinator) registerRun(id string, cancel context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[id] = cancel
}

func (c *Coordinator) unregisterRun(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, id)
}

func (c *Coordinator) cancelRun(id string) {
	c.mu.Lock()
	cancel := c.cancels[id]
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
