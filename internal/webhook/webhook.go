package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scenecast/internal/config"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
)

const userAgent = "Scenecast/0.1.0"

// Notifier delivers job lifecycle events to caller-supplied webhook URLs.
type Notifier interface {
	NotifyCompleted(ctx context.Context, job *jobs.Job) error
	NotifyFailed(ctx context.Context, job *jobs.Job) error
	NotifyCancelled(ctx context.Context, job *jobs.Job) error
}

// NewNotifier builds an HTTP notifier from config.
func NewNotifier(cfg *config.Config, logger *slog.Logger) Notifier {
	timeout := time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpNotifier{
		client: &http.Client{Timeout: timeout},
		logger: logging.WithComponent(logger, "webhook"),
	}
}

// NewNop returns a notifier that discards every event.
func NewNop() Notifier { return nopNotifier{} }

type httpNotifier struct {
	client *http.Client
	logger *slog.Logger
}

type envelope struct {
	Event     string         `json:"event"`
	JobID     string         `json:"job_id"`
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

func (n *httpNotifier) NotifyCompleted(ctx context.Context, job *jobs.Job) error {
	data := map[string]any{
		"output_format": job.OutputFormat,
		"output_size":   job.OutputSize,
		"duration":      job.OutputDuration,
	}
	return n.send(ctx, job, "job.completed", data)
}

func (n *httpNotifier) NotifyFailed(ctx context.Context, job *jobs.Job) error {
	data := map[string]any{
		"error":       job.ErrorMessage,
		"retry_count": job.RetryCount,
	}
	return n.send(ctx, job, "job.failed", data)
}

func (n *httpNotifier) NotifyCancelled(ctx context.Context, job *jobs.Job) error {
	return n.send(ctx, job, "job.cancelled", map[string]any{})
}

// send makes exactly one delivery attempt. Webhook failures never fail the
// job, so errors are returned for logging only.
func (n *httpNotifier) send(ctx context.Context, job *jobs.Job, event string, data map[string]any) error {
	if n == nil || n.client == nil || job == nil {
		return nil
	}
	url := strings.TrimSpace(job.WebhookURL)
	if url == "" {
		return nil
	}

	body, err := json.Marshal(envelope{
		Event:     event,
		JobID:     job.ID,
		Status:    string(job.Status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	n.logger.Debug("webhook delivered",
		logging.String("job_id", job.ID),
		logging.String("event", event),
	)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) NotifyCompleted(context.Context, *jobs.Job) error { return nil }
func (nopNotifier) NotifyFailed(context.Context, *jobs.Job) error    { return nil }
func (nopNotifier) NotifyCancelled(context.Context, *jobs.Job) error { return nil }
