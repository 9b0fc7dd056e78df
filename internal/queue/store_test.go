package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenPath(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func enqueueTestJob(t *testing.T, store *Store, client, source, target string) *Job {
	t.Helper()
	job, err := store.NewJob(context.Background(), NewJobParams{
		ClientID:     client,
		SourcePath:   "/work/inbox/" + source,
		SourceName:   source,
		SourceFormat: "png",
		Category:     "image",
		TargetFormat: target,
		InputSize:    2048,
		Fingerprint:  "fp-" + source + "-" + target,
	})
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func TestNewJobStartsPending(t *testing.T) {
	store := newTestStore(t)
	job := enqueueTestJob(t, store, "client-1", "photo.png", "jpg")

	if job.ID == 0 {
		t.Fatal("expected job to receive an id")
	}
	if job.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}
	if job.TargetFormat != "jpg" {
		t.Fatalf("expected normalized target format, got %q", job.TargetFormat)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	job, err := store.GetByID(context.Background(), 9999)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %+v", job)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := enqueueTestJob(t, store, "client-1", "photo.png", "webp")

	job.Status = StatusConverting
	job.OutputPath = "/work/output/photo.webp"
	job.SetProgress("Converting", "encoding", 42.5)
	heartbeat := time.Now().UTC()
	job.LastHeartbeat = &heartbeat

	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Status != StatusConverting {
		t.Fatalf("expected converting, got %s", loaded.Status)
	}
	if loaded.OutputPath != "/work/output/photo.webp" {
		t.Fatalf("unexpected output path %q", loaded.OutputPath)
	}
	if loaded.ProgressPercent != 42.5 {
		t.Fatalf("unexpected progress %v", loaded.ProgressPercent)
	}
	if loaded.LastHeartbeat == nil {
		t.Fatal("expected heartbeat to persist")
	}
}

func TestFindByFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := enqueueTestJob(t, store, "client-1", "photo.png", "jpg")

	found, err := store.FindByFingerprint(ctx, job.Fingerprint, "jpg")
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if found == nil || found.ID != job.ID {
		t.Fatalf("expected to find job %d, got %+v", job.ID, found)
	}

	missing, err := store.FindByFingerprint(ctx, job.Fingerprint, "webp")
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected no match for different target, got %+v", missing)
	}
}

func TestFindByFingerprintFiltersStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	done := enqueueTestJob(t, store, "client-1", "photo.png", "jpg")
	done.Status = StatusCompleted
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// A newer pending duplicate must not shadow the completed row.
	pending := enqueueTestJob(t, store, "client-2", "photo.png", "jpg")

	found, err := store.FindByFingerprint(ctx, pending.Fingerprint, "jpg", StatusCompleted)
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if found == nil || found.ID != done.ID {
		t.Fatalf("expected completed job %d, got %+v", done.ID, found)
	}

	none, err := store.FindByFingerprint(ctx, pending.Fingerprint, "jpg", StatusFailed)
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no failed match, got %+v", none)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	second := enqueueTestJob(t, store, "client-2", "b.png", "jpg")

	second.Status = StatusCompleted
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pending, err := store.List(ctx, StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("expected only the pending job, got %d entries", len(pending))
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	time.Sleep(5 * time.Millisecond)
	enqueueTestJob(t, store, "client-2", "b.png", "jpg")

	next, err := store.NextForStatuses(ctx, StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending job %d, got %+v", first.ID, next)
	}
}

func TestPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	time.Sleep(5 * time.Millisecond)
	second := enqueueTestJob(t, store, "client-2", "b.png", "jpg")

	pos, err := store.Position(ctx, first.ID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected position 1 for oldest job, got %d", pos)
	}

	pos, err = store.Position(ctx, second.ID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}

	second.Status = StatusCompleted
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update: %v", err)
	}
	pos, err = store.Position(ctx, second.ID)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected position 0 for finished job, got %d", pos)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := enqueueTestJob(t, store, "client-1", "a.png", "jpg")

	job.Status = StatusConverting
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset job, got %d", reset)
	}

	loaded, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Status != StatusPending {
		t.Fatalf("expected pending after reset, got %s", loaded.Status)
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	stale.Status = StatusConverting
	old := time.Now().UTC().Add(-10 * time.Minute)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update stale: %v", err)
	}

	fresh := enqueueTestJob(t, store, "client-2", "b.png", "jpg")
	fresh.Status = StatusConverting
	now := time.Now().UTC()
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update fresh: %v", err)
	}

	reclaimed, err := store.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", reclaimed)
	}

	loadedStale, err := store.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loadedStale.Status != StatusPending {
		t.Fatalf("expected stale job back to pending, got %s", loadedStale.Status)
	}

	loadedFresh, err := store.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loadedFresh.Status != StatusConverting {
		t.Fatalf("expected fresh job untouched, got %s", loadedFresh.Status)
	}
}

func TestRetryFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	failed := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	failed.SetFailed("encoder crashed")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	retried, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried job, got %d", retried)
	}

	loaded, err := store.GetByID(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loaded.Status != StatusPending {
		t.Fatalf("expected pending after retry, got %s", loaded.Status)
	}
	if loaded.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", loaded.ErrorMessage)
	}
}

func TestRetryFailedSelectedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	first.SetFailed("boom")
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	second := enqueueTestJob(t, store, "client-2", "b.png", "jpg")
	second.SetFailed("boom")
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	retried, err := store.RetryFailed(ctx, first.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried job, got %d", retried)
	}

	loadedSecond, err := store.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if loadedSecond.Status != StatusFailed {
		t.Fatalf("expected second job still failed, got %s", loadedSecond.Status)
	}
}

func TestStatsAndHealth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	completed := enqueueTestJob(t, store, "client-2", "b.png", "jpg")
	completed.Status = StatusCompleted
	if err := store.Update(ctx, completed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	converting := enqueueTestJob(t, store, "client-3", "c.png", "jpg")
	converting.Status = StatusConverting
	if err := store.Update(ctx, converting); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[StatusPending] != 1 || stats[StatusCompleted] != 1 || stats[StatusConverting] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Processing != 1 || health.Completed != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}

func TestCheckHealth(t *testing.T) {
	store := newTestStore(t)
	enqueueTestJob(t, store, "client-1", "a.png", "jpg")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("expected no missing columns, got %v", health.MissingColumns)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.TotalJobs != 1 {
		t.Fatalf("expected 1 job, got %d", health.TotalJobs)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := enqueueTestJob(t, store, "client-1", "a.png", "jpg")
	removed, err := store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected job to be removed")
	}
	removed, err = store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if removed {
		t.Fatal("expected second remove to be a no-op")
	}

	enqueueTestJob(t, store, "client-1", "b.png", "jpg")
	completed := enqueueTestJob(t, store, "client-2", "c.png", "jpg")
	completed.Status = StatusCompleted
	if err := store.Update(ctx, completed); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cleared, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cleared job, got %d", cleared)
	}

	cleared, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 remaining job cleared, got %d", cleared)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus("  Converting ")
	if !ok || status != StatusConverting {
		t.Fatalf("expected converting, got %q ok=%v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestRemoveCompletedBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := enqueueTestJob(t, store, "client-1", "old.png", "jpg")
	old.Status = StatusCompleted
	if err := store.Update(ctx, old); err != nil {
		t.Fatalf("Update: %v", err)
	}
	fresh := enqueueTestJob(t, store, "client-1", "fresh.png", "jpg")
	fresh.Status = StatusCompleted
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	removed, err := store.RemoveCompletedBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("RemoveCompletedBefore: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected no removals for old cutoff, got %d", removed)
	}

	removed, err = store.RemoveCompletedBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("RemoveCompletedBefore: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removals, got %d", removed)
	}
}
