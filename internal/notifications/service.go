package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"morph/internal/config"
)

const userAgent = "Morph-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobQueued(ctx context.Context, sourceName, conversion string, position int) error
	NotifyJobCompleted(ctx context.Context, sourceName, conversion string) error
	NotifyJobFailed(ctx context.Context, sourceName, conversion, reason string) error
	NotifyReviewRequired(ctx context.Context, sourceName, reason string) error
	NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dedup := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second
	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		events:      cfg.Notifications,
		dedupWindow: dedup,
		recent:      make(map[string]time.Time),
		now:         time.Now,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	events      config.Notifications
	dedupWindow time.Duration
	now         func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

func (n *ntfyService) NotifyJobQueued(ctx context.Context, sourceName, conversion string, position int) error {
	if !n.events.JobQueued {
		return nil
	}
	data := payload{
		title:   "Morph - Job Queued",
		message: fmt.Sprintf("Queued %s (%s) at position %d", strings.TrimSpace(sourceName), conversion, position),
		tags:    []string{"morph", "queue", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, sourceName, conversion string) error {
	if !n.events.JobCompleted {
		return nil
	}
	data := payload{
		title:   "Morph - Conversion Complete",
		message: fmt.Sprintf("Converted %s (%s)", strings.TrimSpace(sourceName), conversion),
		tags:    []string{"morph", "convert", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, sourceName, conversion, reason string) error {
	if !n.events.JobFailed {
		return nil
	}
	message := fmt.Sprintf("Conversion failed: %s (%s)", strings.TrimSpace(sourceName), conversion)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "Morph - Conversion Failed",
		message:  message,
		tags:     []string{"morph", "convert", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyReviewRequired(ctx context.Context, sourceName, reason string) error {
	if !n.events.Review {
		return nil
	}
	message := fmt.Sprintf("Needs review: %s", strings.TrimSpace(sourceName))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:   "Morph - Review Required",
		message: message,
		tags:    []string{"morph", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Morph - Queue Drained"
		message = fmt.Sprintf("Queue drained: %d jobs processed in %s", processed, durationText)
	} else {
		title = "Morph - Queue Drained (with errors)"
		message = fmt.Sprintf("Queue drained: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"morph", "queue", "drained"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.events.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Morph - Error",
		message:  builder.String(),
		tags:     []string{"morph", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Morph - Test",
		message:  "Notification system test",
		tags:     []string{"morph", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if n.suppressed(data) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// suppressed reports whether an identical notification was sent within the
// dedup window and records the send time otherwise.
func (n *ntfyService) suppressed(data payload) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := data.title + "\x00" + data.message
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()

	if last, ok := n.recent[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.recent[key] = now
	for k, when := range n.recent {
		if now.Sub(when) >= n.dedupWindow {
			delete(n.recent, k)
		}
	}
	return false
}

type noopService struct{}

func (noopService) NotifyJobQueued(context.Context, string, string, int) error        { return nil }
func (noopService) NotifyJobCompleted(context.Context, string, string) error          { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error     { return nil }
func (noopService) NotifyReviewRequired(context.Context, string, string) error        { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
