package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"morph/internal/config"
)

type capturedRequest struct {
	title   string
	message string
	tags    string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			title:   r.Header.Get("Title"),
			message: string(body),
			tags:    r.Header.Get("Tags"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func testConfig(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.JobQueued = true
	cfg.Notifications.JobCompleted = true
	cfg.Notifications.JobFailed = true
	cfg.Notifications.Review = true
	cfg.Notifications.Errors = true
	cfg.Notifications.DedupWindowSeconds = 0
	return &cfg
}

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	service := NewService(&cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.NotifyJobCompleted(context.Background(), "file.png", "png -> jpg"); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}

func TestNotifyJobCompleted(t *testing.T) {
	server, captured := newCaptureServer(t)
	service := NewService(testConfig(server.URL))

	if err := service.NotifyJobCompleted(context.Background(), "photo.png", "png -> jpg"); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}

	requests := captured()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	if requests[0].title != "Morph - Conversion Complete" {
		t.Fatalf("unexpected title: %q", requests[0].title)
	}
	if requests[0].tags != "morph,convert,completed" {
		t.Fatalf("unexpected tags: %q", requests[0].tags)
	}
}

func TestEventTogglesSuppressSends(t *testing.T) {
	server, captured := newCaptureServer(t)
	cfg := testConfig(server.URL)
	cfg.Notifications.JobQueued = false
	cfg.Notifications.JobFailed = false
	service := NewService(cfg)

	ctx := context.Background()
	if err := service.NotifyJobQueued(ctx, "a.png", "png -> jpg", 1); err != nil {
		t.Fatalf("NotifyJobQueued: %v", err)
	}
	if err := service.NotifyJobFailed(ctx, "a.png", "png -> jpg", "boom"); err != nil {
		t.Fatalf("NotifyJobFailed: %v", err)
	}
	if err := service.NotifyReviewRequired(ctx, "a.png", "unsupported"); err != nil {
		t.Fatalf("NotifyReviewRequired: %v", err)
	}

	requests := captured()
	if len(requests) != 1 {
		t.Fatalf("expected only the review notification, got %d", len(requests))
	}
	if requests[0].title != "Morph - Review Required" {
		t.Fatalf("unexpected title: %q", requests[0].title)
	}
}

func TestDedupWindowSuppressesRepeats(t *testing.T) {
	server, captured := newCaptureServer(t)
	cfg := testConfig(server.URL)
	cfg.Notifications.DedupWindowSeconds = 600
	service := NewService(cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := service.NotifyJobCompleted(ctx, "same.png", "png -> jpg"); err != nil {
			t.Fatalf("NotifyJobCompleted: %v", err)
		}
	}
	if err := service.NotifyJobCompleted(ctx, "other.png", "png -> jpg"); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}

	requests := captured()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests after dedup, got %d", len(requests))
	}
}

func TestDedupWindowExpires(t *testing.T) {
	server, captured := newCaptureServer(t)
	cfg := testConfig(server.URL)
	cfg.Notifications.DedupWindowSeconds = 600
	service := NewService(cfg).(*ntfyService)

	current := time.Now()
	service.now = func() time.Time { return current }

	ctx := context.Background()
	if err := service.NotifyJobCompleted(ctx, "same.png", "png -> jpg"); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}
	current = current.Add(11 * time.Minute)
	if err := service.NotifyJobCompleted(ctx, "same.png", "png -> jpg"); err != nil {
		t.Fatalf("NotifyJobCompleted: %v", err)
	}

	if requests := captured(); len(requests) != 2 {
		t.Fatalf("expected 2 requests after window expiry, got %d", len(requests))
	}
}

func TestNotifyQueueDrained(t *testing.T) {
	server, captured := newCaptureServer(t)
	service := NewService(testConfig(server.URL))

	if err := service.NotifyQueueDrained(context.Background(), 4, 1, 95*time.Second); err != nil {
		t.Fatalf("NotifyQueueDrained: %v", err)
	}

	requests := captured()
	if len(requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(requests))
	}
	if requests[0].title != "Morph - Queue Drained (with errors)" {
		t.Fatalf("unexpected title: %q", requests[0].title)
	}
	if requests[0].message != "Queue drained: 4 succeeded, 1 failed in 1m35s" {
		t.Fatalf("unexpected message: %q", requests[0].message)
	}
}

func TestNtfyErrorStatusReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	service := NewService(testConfig(server.URL))
	if err := service.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
