package converting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/services"
)

func detectedJob(t *testing.T, store *queue.Store, params queue.NewJobParams, category string) *queue.Job {
	t.Helper()
	job := enqueue(t, store, params)
	job.Category = category
	job.Status = queue.StatusDetected
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return job
}

func TestConverterExecuteProducesOutput(t *testing.T) {
	cfg := newTestConfig(t)
	store, _ := newTestStores(t, cfg)
	router := newTestRouter(t, lastArgWriter(t, "jpg-bytes"))
	converter := NewConverterWithRouter(cfg, store, logging.NewNop(), router)

	source := stageFile(t, cfg, "photo.png", 64)
	job := detectedJob(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	}, "image")

	if err := converter.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := converter.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusConverted {
		t.Fatalf("unexpected status: %s", job.Status)
	}
	if job.OutputPath == "" {
		t.Fatal("expected output path")
	}
	if filepath.Dir(job.OutputPath) != filepath.Join(cfg.Paths.WorkDir, "outputs") {
		t.Fatalf("output not staged under work dir: %s", job.OutputPath)
	}
	if job.OutputSize == 0 {
		t.Fatal("expected nonzero output size")
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		t.Fatalf("stat output: %v", err)
	}
}

func TestConverterExecuteRequiresSourcePath(t *testing.T) {
	cfg := newTestConfig(t)
	store, _ := newTestStores(t, cfg)
	router := newTestRouter(t, scriptedExecutor{})
	converter := NewConverterWithRouter(cfg, store, logging.NewNop(), router)

	job := &queue.Job{ID: 1, TargetFormat: "jpg"}
	if err := converter.Execute(context.Background(), job); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConverterExecuteSurfacesToolFailure(t *testing.T) {
	cfg := newTestConfig(t)
	store, _ := newTestStores(t, cfg)
	router := newTestRouter(t, scriptedExecutor{run: func(string, []string) error {
		return errors.New("boom")
	}})
	converter := NewConverterWithRouter(cfg, store, logging.NewNop(), router)

	source := stageFile(t, cfg, "photo.png", 64)
	job := detectedJob(t, store, queue.NewJobParams{
		ClientID:     "alice",
		SourcePath:   source,
		SourceName:   "photo.png",
		SourceFormat: "png",
		TargetFormat: "jpg",
	}, "image")

	if err := converter.Execute(context.Background(), job); err == nil {
		t.Fatal("expected tool failure to propagate")
	}
	if job.Status == queue.StatusConverted {
		t.Fatal("job must not advance on failure")
	}
}

func TestConverterHealthCheck(t *testing.T) {
	cfg := newTestConfig(t)
	store, _ := newTestStores(t, cfg)
	converter := NewConverterWithRouter(cfg, store, logging.NewNop(), newTestRouter(t, scriptedExecutor{}))

	health := converter.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy stage: %s", health.Detail)
	}
}
