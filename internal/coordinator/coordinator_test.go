package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scenecast/internal/config"
	"scenecast/internal/coordinator"
	"scenecast/internal/filestore"
	"scenecast/internal/jobs"
	"scenecast/internal/logging"
	"scenecast/internal/media"
	"scenecast/internal/render"
	"scenecast/internal/testsupport"
)

type stubCodec struct {
	encodeErr error
}

func (stubCodec) ProbeImage(_ context.Context, path string) (render.MediaInfo, error) {
	if filepath.Ext(path) != ".png" {
		return render.MediaInfo{}, fmt.Errorf("not an image: %s", path)
	}
	return render.MediaInfo{Width: 800, Height: 600}, nil
}

func (stubCodec) ProbeVideo(_ context.Context, path string) (render.MediaInfo, error) {
	if filepath.Ext(path) != ".mp4" {
		return render.MediaInfo{}, fmt.Errorf("not a video: %s", path)
	}
	return render.MediaInfo{Width: 1920, Height: 1080, Duration: 60, HasAudio: true}, nil
}

func (c stubCodec) Encode(_ context.Context, _ render.Clip, _ render.EncodeSettings, _ render.Settings, outputPath string) error {
	if c.encodeErr != nil {
		return c.encodeErr
	}
	return os.WriteFile(outputPath, []byte("encoded"), 0o644)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(event string, job *jobs.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, fmt.Sprintf("%s:%s", event, job.ID))
	return nil
}

func (n *recordingNotifier) NotifyCompleted(_ context.Context, job *jobs.Job) error {
	return n.record("completed", job)
}
func (n *recordingNotifier) NotifyFailed(_ context.Context, job *jobs.Job) error {
	return n.record("failed", job)
}
func (n *recordingNotifier) NotifyCancelled(_ context.Context, job *jobs.Job) error {
	return n.record("cancelled", job)
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	cfg      *config.Config
	store    *jobs.Store
	coord    *coordinator.Coordinator
	notifier *recordingNotifier
}

func newFixture(t *testing.T, codec render.Codec) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteFile(t, filepath.Join(cfg.Storage.LocalDir, "intro.png"), 32)
	testsupport.WriteFile(t, filepath.Join(cfg.Storage.LocalDir, "feature.mp4"), 32)

	resolver := media.NewResolver(
		filestore.NewLocal(cfg.Storage.LocalDir),
		cfg.Paths.TempDir,
		time.Minute,
		1<<20,
		logging.NewNop(),
	)
	pipeline := render.New(resolver, codec, cfg.Paths.OutputDir, 0.5, 0, logging.NewNop())
	notifier := &recordingNotifier{}
	return &fixture{
		cfg:      cfg,
		store:    store,
		coord:    coordinator.New(store, pipeline, notifier, cfg, logging.NewNop()),
		notifier: notifier,
	}
}

func simpleRequest(webhookURL string) *coordinator.Request {
	return &coordinator.Request{
		Scenes: coordinator.SceneList{
			{Name: "Intro", SceneSpec: coordinator.SceneSpec{Source: "intro", MediaType: "image", Duration: 3}},
			{Name: "Feature", SceneSpec: coordinator.SceneSpec{Source: "feature", MediaType: "video", Duration: 5, Transition: "fade"}},
		},
		WebhookURL: webhookURL,
	}
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != jobs.StatusPending {
		t.Fatalf("status = %s", job.Status)
	}
	if job.Title != "Composition: Intro, Feature" {
		t.Fatalf("title = %q", job.Title)
	}
	if job.MaxRetries != fx.cfg.Jobs.MaxRetries {
		t.Fatalf("max retries = %d", job.MaxRetries)
	}
	if job.ExpiresAt == nil {
		t.Fatal("expiry not set")
	}
	wantExpiry := time.Now().UTC().Add(time.Duration(fx.cfg.Jobs.RetentionDays) * 24 * time.Hour)
	if job.ExpiresAt.Sub(wantExpiry).Abs() > time.Minute {
		t.Fatalf("expiry = %v, want about %v", job.ExpiresAt, wantExpiry)
	}
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	if _, err := fx.coord.Submit(ctx, "key-a", &coordinator.Request{}); !errors.Is(err, coordinator.ErrValidation) {
		t.Fatalf("empty request: %v", err)
	}

	bad := simpleRequest("")
	bad.Priority = "asap"
	if _, err := fx.coord.Submit(ctx, "key-a", bad); !errors.Is(err, coordinator.ErrValidation) {
		t.Fatalf("bad priority: %v", err)
	}
}

func TestDriveCompletesJob(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest("https://example.com/hook"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fx.coord.Drive(ctx, job.ID); err != nil {
		t.Fatalf("Drive: %v", err)
	}

	done, _ := fx.store.GetByID(ctx, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
	if done.Progress != 100 {
		t.Fatalf("progress = %v", done.Progress)
	}
	if done.OutputPath == "" || done.OutputFormat != "mp4" {
		t.Fatalf("output not recorded: %+v", done)
	}
	if done.OutputDuration != 8 {
		t.Fatalf("output duration = %v, want 8", done.OutputDuration)
	}
	if done.CompletedAt == nil {
		t.Fatal("completion timestamp missing")
	}
	if !done.WebhookSent {
		t.Fatal("webhook not recorded as sent")
	}
	if _, err := os.Stat(done.OutputPath); err != nil {
		t.Fatalf("output file: %v", err)
	}

	events := fx.notifier.seen()
	if len(events) != 1 || events[0] != "completed:"+job.ID {
		t.Fatalf("webhook events = %v", events)
	}
}

func TestDriveFailsJobAndKeepsError(t *testing.T) {
	fx := newFixture(t, stubCodec{encodeErr: errors.New("encoder exploded")})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest("https://example.com/hook"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fx.coord.Drive(ctx, job.ID); err == nil {
		t.Fatal("Drive should surface the render error")
	}

	failed, _ := fx.store.GetByID(ctx, job.ID)
	if failed.Status != jobs.StatusFailed {
		t.Fatalf("status = %s", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("error message not recorded")
	}

	events := fx.notifier.seen()
	if len(events) != 1 || events[0] != "failed:"+job.ID {
		t.Fatalf("webhook events = %v", events)
	}
}

func TestDriveIsNoOpOutsideProcessing(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Still pending: nothing happens.
	if err := fx.coord.Drive(ctx, job.ID); err != nil {
		t.Fatalf("Drive on pending job: %v", err)
	}
	loaded, _ := fx.store.GetByID(ctx, job.ID)
	if loaded.Status != jobs.StatusPending {
		t.Fatalf("status = %s", loaded.Status)
	}

	// Unknown id: also a no-op.
	if err := fx.coord.Drive(ctx, "no-such-job"); err != nil {
		t.Fatalf("Drive on missing job: %v", err)
	}
}

func TestCancelPendingJob(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest("https://example.com/hook"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cancelled, err := fx.coord.Cancel(ctx, job.ID, "key-a")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}

	// Terminal now: a second cancel is an invalid transition.
	if _, err := fx.coord.Cancel(ctx, job.ID, "key-a"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("second cancel: %v", err)
	}

	events := fx.notifier.seen()
	if len(events) != 1 || events[0] != "cancelled:"+job.ID {
		t.Fatalf("webhook events = %v", events)
	}
}

func TestCancelIsOwnerScoped(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Cancel(ctx, job.ID, "key-b"); !errors.Is(err, coordinator.ErrNotFound) {
		t.Fatalf("foreign cancel: %v", err)
	}
}

func TestRetryBudget(t *testing.T) {
	fx := newFixture(t, stubCodec{encodeErr: errors.New("boom")})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	maxRetries := fx.cfg.Jobs.MaxRetries
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if _, err := fx.coord.Begin(ctx, job.ID); err != nil {
			t.Fatalf("Begin attempt %d: %v", attempt, err)
		}
		if err := fx.coord.Drive(ctx, job.ID); err == nil {
			t.Fatalf("attempt %d should fail", attempt)
		}
		if attempt < maxRetries {
			retried, err := fx.coord.Retry(ctx, job.ID, "key-a")
			if err != nil {
				t.Fatalf("Retry attempt %d: %v", attempt, err)
			}
			if retried.Status != jobs.StatusPending || retried.RetryCount != attempt+1 {
				t.Fatalf("retry state: %+v", retried)
			}
			if retried.ErrorMessage != "" || retried.Progress != 0 {
				t.Fatalf("retry should reset progress and error: %+v", retried)
			}
		}
	}

	// Budget exhausted.
	if _, err := fx.coord.Retry(ctx, job.ID, "key-a"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("retry past budget: %v", err)
	}
}

func TestRetryRejectsNonFailedJob(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Retry(ctx, job.ID, "key-a"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("retry on pending: %v", err)
	}
}

func TestDeleteRemovesJobAndOutput(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fx.coord.Drive(ctx, job.ID); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	done, _ := fx.store.GetByID(ctx, job.ID)

	if err := fx.coord.Delete(ctx, job.ID, "key-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if loaded, _ := fx.store.GetByID(ctx, job.ID); loaded != nil {
		t.Fatal("job record survived delete")
	}
	if _, err := os.Stat(done.OutputPath); !os.IsNotExist(err) {
		t.Fatal("output file survived delete")
	}

	if err := fx.coord.Delete(ctx, job.ID, "key-a"); !errors.Is(err, coordinator.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestSweepExpiredRemovesRecordsAndOutputs(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	job, err := fx.coord.Submit(ctx, "key-a", simpleRequest(""))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Begin(ctx, job.ID); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fx.coord.Drive(ctx, job.ID); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	done, _ := fx.store.GetByID(ctx, job.ID)

	// Force the job into the past.
	past := time.Now().UTC().Add(-time.Hour)
	done.ExpiresAt = &past
	if err := fx.store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	removed, err := fx.coord.SweepExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	if _, err := os.Stat(done.OutputPath); !os.IsNotExist(err) {
		t.Fatal("expired output survived sweep")
	}
}

func TestListScopedToOwner(t *testing.T) {
	fx := newFixture(t, stubCodec{})
	ctx := context.Background()

	if _, err := fx.coord.Submit(ctx, "key-a", simpleRequest("")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.coord.Submit(ctx, "key-b", simpleRequest("")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	listed, total, err := fx.coord.List(ctx, "key-a", jobs.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || total != 1 {
		t.Fatalf("list = %d jobs, total %d", len(listed), total)
	}
}
