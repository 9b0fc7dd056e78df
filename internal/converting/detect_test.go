package converting

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"morph/internal/config"
	"morph/internal/history"
	"morph/internal/logging"
	"morph/internal/media/ffprobe"
	"morph/internal/queue"
	"morph/internal/services"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "work", "morph.sock")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return &cfg
}

func newTestStores(t *testing.T, cfg *config.Config) (*queue.Store, *history.Store) {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(cfg.Paths.WorkDir, "queue.db"))
	if err != nil {
		t.Fatalf("queue.OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	historyStore, err := history.OpenPath(filepath.Join(cfg.Paths.WorkDir, "history.db"))
	if err != nil {
		t.Fatalf("history.OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = historyStore.Close() })
	return store, historyStore
}

func stageFile(t *testing.T, cfg *config.Config, name string, size int) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.WorkDir, name)
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o644); err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	return path
}

func enqueue(t *testing.T, store *queue.Store, params queue.NewJobParams) *queue.Job {
	t.Helper()
	job, err := store.NewJob(context.Background(), params)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func stubProbe(result ffprobe.Result, err error) ProbeFunc {
	return func(context.Context, string, string) (ffprobe.Result, error) {
		return result, err
	}
}

func videoProbeResult(t *testing.T) ffprobe.Result {
	t.Helper()
	payload := `{"streams":[{"index":0,"codec_type":"video","codec_name":"h264"},{"index":1,"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"42.0","size":"2048"}}`
	result, err := ffprobe.Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse probe payload: %v", err)
	}
	return result
}

func TestDetectorExecuteImage(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	source := stageFile(t, cfg, "photo.png", 64)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})

	if err := detector.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := detector.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusDetected {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	if job.Category != "image" {
		t.Fatalf("unexpected category: %s", job.Category)
	}
	if job.Fingerprint == "" {
		t.Fatal("expected fingerprint")
	}
	if job.InputSize != 64 {
		t.Fatalf("unexpected input size: %d", job.InputSize)
	}
	if job.ProbeJSON != "" {
		t.Fatal("image jobs must not be probed")
	}

	client, err := historyStore.GetClient(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if client == nil {
		t.Fatal("expected client to be registered")
	}
}

func TestDetectorExecuteVideoStoresProbe(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(videoProbeResult(t), nil))

	source := stageFile(t, cfg, "clip.mp4", 128)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "bob",
		SourcePath:   source,
		SourceName:   "clip.mp4",
		SourceFormat: "mp4",
		TargetFormat: "gif",
	})

	if err := detector.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.ProbeJSON == "" {
		t.Fatal("expected probe json to be stored")
	}
	if job.Category != "video" {
		t.Fatalf("unexpected category: %s", job.Category)
	}
}

func TestDetectorReusesCompletedDuplicate(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))
	ctx := context.Background()

	source := stageFile(t, cfg, "photo.png", 64)
	first := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	if err := detector.Execute(ctx, first); err != nil {
		t.Fatalf("Execute first: %v", err)
	}

	delivered := stageFile(t, cfg, "photo.jpg", 32)
	first.Status = queue.StatusCompleted
	first.OutputPath = delivered
	first.OutputSize = 32
	first.DeliveredPath = delivered
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update first: %v", err)
	}

	// Same file dropped again, as after a daemon restart rescans the inbox.
	second := enqueue(t, store, queue.NewJobParams{
		ClientID:     "inbox",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	if err := detector.Execute(ctx, second); err != nil {
		t.Fatalf("Execute second: %v", err)
	}
	if second.Status != queue.StatusCompleted {
		t.Fatalf("expected duplicate to complete immediately, got %s", second.Status)
	}
	if second.DeliveredPath != delivered {
		t.Fatalf("expected delivered path %q, got %q", delivered, second.DeliveredPath)
	}
	if second.OutputSize != 32 {
		t.Fatalf("unexpected output size: %d", second.OutputSize)
	}
}

func TestDetectorIgnoresDuplicateWithMissingOutput(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))
	ctx := context.Background()

	source := stageFile(t, cfg, "photo.png", 64)
	first := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	if err := detector.Execute(ctx, first); err != nil {
		t.Fatalf("Execute first: %v", err)
	}
	first.Status = queue.StatusCompleted
	first.DeliveredPath = filepath.Join(cfg.Paths.OutputDir, "gone.jpg")
	if err := store.Update(ctx, first); err != nil {
		t.Fatalf("Update first: %v", err)
	}

	second := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	if err := detector.Execute(ctx, second); err != nil {
		t.Fatalf("Execute second: %v", err)
	}
	if second.Status != queue.StatusDetected {
		t.Fatalf("expected fresh detection when prior output is gone, got %s", second.Status)
	}
}

func TestDetectorRejectsBannedClient(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	if err := historyStore.SetBanned(context.Background(), "mallory", true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	source := stageFile(t, cfg, "photo.png", 64)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "mallory",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})

	err := detector.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for banned client")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if services.FailureStatus(err) != queue.StatusReview {
		t.Fatal("banned clients must land in review")
	}
}

func TestDetectorRejectsMissingFile(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   filepath.Join(cfg.Paths.WorkDir, "missing.png"),
		SourceName:   "missing.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})

	err := detector.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestDetectorRejectsOversizedFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Limits.MaxFileSizeMB = 1
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	source := stageFile(t, cfg, "huge.png", 2*1024*1024)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "huge.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})

	err := detector.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDetectorRejectsIllegalConversion(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	source := stageFile(t, cfg, "photo.png", 64)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "mp3",
	})

	err := detector.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDetectorRejectsVideoWithoutVideoStream(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	payload := `{"streams":[{"index":0,"codec_type":"audio","codec_name":"aac"}],"format":{}}`
	result, err := ffprobe.Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse probe payload: %v", err)
	}
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(result, nil))

	source := stageFile(t, cfg, "clip.mp4", 128)
	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "clip.mp4",
		SourceFormat: "mp4",
		TargetFormat: "mkv",
	})

	if err := detector.Execute(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDetectorHealthCheck(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	detector := NewDetectorWithProbe(cfg, store, historyStore, logging.NewNop(), stubProbe(ffprobe.Result{}, nil))

	health := detector.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy stage: %s", health.Detail)
	}
}
