package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"morph/internal/config"
	"morph/internal/format"
	"morph/internal/history"
	"morph/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.OpenPath(filepath.Join(cfg.Paths.WorkDir, "queue.db"))
	if err != nil {
		t.Fatalf("queue.OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenHistory opens a history.Store for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.OpenPath(filepath.Join(cfg.Paths.WorkDir, "history.db"))
	if err != nil {
		t.Fatalf("history.OpenPath: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a pending conversion job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, clientID, sourceName, sourceFormat, targetFormat string) *queue.Job {
	t.Helper()

	category, _ := format.CategoryOf(sourceFormat)
	job, err := store.NewJob(context.Background(), queue.NewJobParams{
		ClientID:     clientID,
		SourceName:   sourceName,
		SourceFormat: sourceFormat,
		Category:     string(category),
		TargetFormat: targetFormat,
		InputSize:    1024,
	})
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
