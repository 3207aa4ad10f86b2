package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"scenecast/internal/jobs"
	"scenecast/internal/testsupport"
)

func newJob(owner string) *jobs.Job {
	return &jobs.Job{
		ID:          uuid.NewString(),
		OwnerKey:    owner,
		Title:       "Composition: Intro, Main",
		Status:      jobs.StatusPending,
		Priority:    jobs.PriorityNormal,
		RequestJSON: `{"scenes":{}}`,
		MaxRetries:  3,
	}
}

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("key-a")
	expires := time.Now().UTC().Add(7 * 24 * time.Hour)
	job.ExpiresAt = &expires
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded == nil {
		t.Fatal("GetByID returned nil for existing job")
	}
	if loaded.Title != job.Title || loaded.Status != jobs.StatusPending {
		t.Fatalf("unexpected job: %+v", loaded)
	}
	if loaded.ExpiresAt == nil || loaded.ExpiresAt.Sub(expires).Abs() > time.Second {
		t.Fatalf("expiry not persisted: %v", loaded.ExpiresAt)
	}

	if missing, err := store.GetByID(ctx, "does-not-exist"); err != nil || missing != nil {
		t.Fatalf("missing job: got %v, %v", missing, err)
	}
}

func TestGetForOwnerScopesByKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("key-a")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if found, err := store.GetForOwner(ctx, job.ID, "key-a"); err != nil || found == nil {
		t.Fatalf("owner lookup failed: %v, %v", found, err)
	}
	if found, err := store.GetForOwner(ctx, job.ID, "key-b"); err != nil || found != nil {
		t.Fatalf("foreign owner should not see job: %v, %v", found, err)
	}
}

func TestTransitionGuards(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("key-a")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Illegal by the table.
	if _, err := store.Transition(ctx, job.ID, jobs.StatusPending, jobs.StatusCompleted, nil); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("pending->completed should be invalid, got %v", err)
	}

	// Legal claim.
	claimed, err := store.Transition(ctx, job.ID, jobs.StatusPending, jobs.StatusProcessing, func(j *jobs.Job) {
		now := time.Now().UTC()
		j.StartedAt = &now
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != jobs.StatusProcessing || claimed.StartedAt == nil {
		t.Fatalf("claim result: %+v", claimed)
	}

	// Second claim loses: the row is no longer pending.
	if _, err := store.Transition(ctx, job.ID, jobs.StatusPending, jobs.StatusProcessing, nil); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("stale claim should be invalid, got %v", err)
	}

	// Finish.
	done, err := store.Transition(ctx, job.ID, jobs.StatusProcessing, jobs.StatusCompleted, func(j *jobs.Job) {
		j.Progress = 100
		j.OutputPath = "/tmp/out.mp4"
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Progress != 100 || done.OutputPath != "/tmp/out.mp4" {
		t.Fatalf("mutation not persisted: %+v", done)
	}
}

func TestUpdateProgressIsMonotonicAndProcessingOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("key-a")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Not processing: the write must not land.
	if err := store.UpdateProgress(ctx, job.ID, 50, "early"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	loaded, _ := store.GetByID(ctx, job.ID)
	if loaded.Progress != 0 {
		t.Fatalf("progress written outside processing: %v", loaded.Progress)
	}

	if _, err := store.Transition(ctx, job.ID, jobs.StatusPending, jobs.StatusProcessing, nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.UpdateProgress(ctx, job.ID, 70, "Applying transitions"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 10, "stale checkpoint"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	loaded, _ = store.GetByID(ctx, job.ID)
	if loaded.Progress != 70 {
		t.Fatalf("progress moved backwards: %v", loaded.Progress)
	}
	if loaded.CurrentStep != "stale checkpoint" {
		t.Fatalf("current step should track the latest write: %q", loaded.CurrentStep)
	}
}

func TestNextPendingOrdersByPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	older := newJob("key-a")
	if err := store.Create(ctx, older); err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	urgent := newJob("key-a")
	urgent.Priority = jobs.PriorityUrgent
	if err := store.Create(ctx, urgent); err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != urgent.ID {
		t.Fatalf("urgent job should be claimed first, got %+v", next)
	}

	if _, err := store.Transition(ctx, urgent.ID, jobs.StatusPending, jobs.StatusProcessing, nil); err != nil {
		t.Fatalf("claim urgent: %v", err)
	}
	next, err = store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next == nil || next.ID != older.ID {
		t.Fatalf("older normal job should follow, got %+v", next)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := newJob("key-a")
		job.Title = fmt.Sprintf("job %d", i)
		if i%2 == 1 {
			job.Status = jobs.StatusCompleted
		}
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	other := newJob("key-b")
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create: %v", err)
	}

	all, err := store.List(ctx, "key-a", jobs.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 jobs for owner, got %d", len(all))
	}

	completed, err := store.List(ctx, "key-a", jobs.Filter{Status: jobs.StatusCompleted})
	if err != nil {
		t.Fatalf("List completed: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("expected 2 completed jobs, got %d", len(completed))
	}

	page, err := store.List(ctx, "key-a", jobs.Filter{Page: 2, PerPage: 2, SortBy: "created_at"})
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 jobs on page 2, got %d", len(page))
	}
	if page[0].Title != "job 2" {
		t.Fatalf("pagination window wrong, got %q", page[0].Title)
	}

	count, err := store.CountForOwner(ctx, "key-a", jobs.Filter{Status: jobs.StatusCompleted})
	if err != nil {
		t.Fatalf("CountForOwner: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	everyone, err := store.ListAll(ctx, jobs.Filter{})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(everyone) != 6 {
		t.Fatalf("expected 6 jobs across owners, got %d", len(everyone))
	}
}

func TestDeleteScopedToOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := newJob("key-a")
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if ok, err := store.Delete(ctx, job.ID, "key-b"); err != nil || ok {
		t.Fatalf("foreign delete should be a no-op: %t, %v", ok, err)
	}
	if ok, err := store.Delete(ctx, job.ID, "key-a"); err != nil || !ok {
		t.Fatalf("owner delete failed: %t, %v", ok, err)
	}
	if loaded, _ := store.GetByID(ctx, job.ID); loaded != nil {
		t.Fatal("job survived delete")
	}
}

func TestExpirySweep(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	expired := newJob("key-a")
	past := time.Now().UTC().Add(-time.Hour)
	expired.ExpiresAt = &past
	expired.OutputPath = "/tmp/expired.mp4"
	if err := store.Create(ctx, expired); err != nil {
		t.Fatalf("Create: %v", err)
	}

	fresh := newJob("key-a")
	future := time.Now().UTC().Add(time.Hour)
	fresh.ExpiresAt = &future
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("Create: %v", err)
	}

	paths, err := store.ExpiredOutputPaths(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpiredOutputPaths: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/tmp/expired.mp4" {
		t.Fatalf("unexpected expired outputs: %v", paths)
	}

	removed, err := store.DeleteExpired(ctx, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if survivor, _ := store.GetByID(ctx, fresh.ID); survivor == nil {
		t.Fatal("unexpired job was swept")
	}
}

func TestStatsAndCountActive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pending := newJob("key-a")
	if err := store.Create(ctx, pending); err != nil {
		t.Fatalf("Create: %v", err)
	}
	done := newJob("key-a")
	done.Status = jobs.StatusCompleted
	if err := store.Create(ctx, done); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[jobs.StatusPending] != 1 || stats[jobs.StatusCompleted] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	active, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected 1 active job, got %d", active)
	}
}
