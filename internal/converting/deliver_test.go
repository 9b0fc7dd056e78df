package converting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"morph/internal/logging"
	"morph/internal/notifications"
	"morph/internal/queue"
	"morph/internal/services"
	"morph/internal/services/ghostscript"
)

type fakeUploader struct {
	uploads []string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, localPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, localPath)
	return "outputs/abc/" + filepath.Base(localPath), nil
}

type recordingNotifier struct {
	notifications.Service
	completed []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{Service: noopNotifier{}}
}

func (r *recordingNotifier) NotifyJobCompleted(_ context.Context, sourceName, _ string) error {
	r.completed = append(r.completed, sourceName)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyJobQueued(context.Context, string, string, int) error        { return nil }
func (noopNotifier) NotifyJobCompleted(context.Context, string, string) error          { return nil }
func (noopNotifier) NotifyJobFailed(context.Context, string, string, string) error     { return nil }
func (noopNotifier) NotifyReviewRequired(context.Context, string, string) error        { return nil }
func (noopNotifier) NotifyQueueDrained(context.Context, int, int, time.Duration) error { return nil }
func (noopNotifier) NotifyError(context.Context, error, string) error                  { return nil }
func (noopNotifier) TestNotification(context.Context) error                            { return nil }

func TestDelivererExecuteMovesOutput(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	notifier := newRecordingNotifier()
	uploader := &fakeUploader{}
	gsClient, err := ghostscript.New("gs")
	if err != nil {
		t.Fatalf("ghostscript.New: %v", err)
	}
	deliverer := NewDelivererWithDependencies(cfg, store, historyStore, logging.NewNop(), notifier, uploader, gsClient)

	source := stageFile(t, cfg, "photo.png", 64)
	outputDir := filepath.Join(cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir outputs: %v", err)
	}
	outputPath := filepath.Join(outputDir, "photo.jpg")
	if err := os.WriteFile(outputPath, []byte("jpg-bytes"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
		InputSize:    64,
	})
	job.OutputPath = outputPath
	job.Status = queue.StatusConverted

	if err := deliverer.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := deliverer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if job.Status != queue.StatusCompleted {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	wantPath := filepath.Join(cfg.Paths.OutputDir, "photo.jpg")
	if job.DeliveredPath != wantPath {
		t.Fatalf("unexpected delivered path: %s", job.DeliveredPath)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("delivered file missing: %v", err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatal("expected staged source to be removed")
	}
	if job.RemoteObject == "" {
		t.Fatal("expected remote object key")
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("expected 1 completion notification, got %d", len(notifier.completed))
	}

	entries, err := historyStore.ForClient(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("ForClient: %v", err)
	}
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("expected one successful history row, got %+v", entries)
	}
}

func TestDelivererCollisionSafePaths(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	gsClient, err := ghostscript.New("gs")
	if err != nil {
		t.Fatalf("ghostscript.New: %v", err)
	}
	deliverer := NewDelivererWithDependencies(cfg, store, historyStore, logging.NewNop(), noopNotifier{}, nil, gsClient)

	if err := os.WriteFile(filepath.Join(cfg.Paths.OutputDir, "photo.jpg"), []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	outputDir := filepath.Join(cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir outputs: %v", err)
	}
	outputPath := filepath.Join(outputDir, "photo.jpg")
	if err := os.WriteFile(outputPath, []byte("jpg-bytes"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	job.OutputPath = outputPath

	if err := deliverer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.DeliveredPath != filepath.Join(cfg.Paths.OutputDir, "photo (1).jpg") {
		t.Fatalf("expected collision-safe path, got %s", job.DeliveredPath)
	}
}

func TestDelivererRejectsOversizedNonPDF(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Limits.MaxOutputSizeMB = 1
	store, historyStore := newTestStores(t, cfg)
	gsClient, err := ghostscript.New("gs")
	if err != nil {
		t.Fatalf("ghostscript.New: %v", err)
	}
	deliverer := NewDelivererWithDependencies(cfg, store, historyStore, logging.NewNop(), noopNotifier{}, nil, gsClient)

	outputDir := filepath.Join(cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir outputs: %v", err)
	}
	outputPath := filepath.Join(outputDir, "huge.jpg")
	if err := os.WriteFile(outputPath, make([]byte, 2*1024*1024), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	job := enqueue(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourceName:   "huge.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	})
	job.OutputPath = outputPath

	if err := deliverer.Execute(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDelivererRequiresOutput(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	gsClient, err := ghostscript.New("gs")
	if err != nil {
		t.Fatalf("ghostscript.New: %v", err)
	}
	deliverer := NewDelivererWithDependencies(cfg, store, historyStore, logging.NewNop(), noopNotifier{}, nil, gsClient)

	job := enqueue(t, store, queue.NewJobParams{ClientID: "alice", SourceName: "a.png", SourceFormat: "png", TargetFormat: "jpg"})
	if err := deliverer.Execute(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDelivererUploadFailureIsTransient(t *testing.T) {
	cfg := newTestConfig(t)
	store, historyStore := newTestStores(t, cfg)
	gsClient, err := ghostscript.New("gs")
	if err != nil {
		t.Fatalf("ghostscript.New: %v", err)
	}
	uploader := &fakeUploader{err: errors.New("connection refused")}
	deliverer := NewDelivererWithDependencies(cfg, store, historyStore, logging.NewNop(), noopNotifier{}, uploader, gsClient)

	outputDir := filepath.Join(cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("mkdir outputs: %v", err)
	}
	outputPath := filepath.Join(outputDir, "photo.jpg")
	if err := os.WriteFile(outputPath, []byte("jpg-bytes"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}

	job := enqueue(t, store, queue.NewJobParams{ClientID: "alice", SourceName: "photo.png", SourceFormat: "png", TargetFormat: "jpg"})
	job.OutputPath = outputPath

	err = deliverer.Execute(context.Background(), job)
	if err == nil {
		t.Fatal("expected upload failure to propagate")
	}
	if services.FailureStatus(err) != queue.StatusFailed {
		t.Fatal("upload failures must be retryable")
	}
}
