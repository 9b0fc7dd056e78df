package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"morph/internal/services"
)

func TestPrettyHandlerFormatsComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	handler := newPrettyHandler(&buf, levelVar, false)
	logger := slog.New(handler).With(String(FieldComponent, "workflow"))

	logger.Info("job started", Int64(FieldJobID, 42), String("target", "jpg"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, " INFO workflow: job started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "job_id=42") {
		t.Fatalf("expected job_id attr in %q", line)
	}
	if !strings.Contains(line, "target=jpg") {
		t.Fatalf("expected target attr in %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger.Warn("conversion slow", String("reason", "encoder busy"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `reason="encoder busy"`) {
		t.Fatalf("expected quoted value in %q", line)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	logger.Error("should appear")
	if !strings.Contains(buf.String(), "ERROR") {
		t.Fatalf("expected error output, got %q", buf.String())
	}
}

func TestJSONHandlerShapesFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newJSONHandler(&buf, levelVar, false))

	logger.Info("delivered", String("path", "/out/file.jpg"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if payload["msg"] != "delivered" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	ts, ok := payload["ts"].(string)
	if !ok {
		t.Fatalf("expected ts string, got %T", payload["ts"])
	}
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", ts)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithStage(ctx, "convert")
	ctx = services.WithWorker(ctx, "worker-2")

	WithContext(ctx, logger).Info("progress")

	line := strings.TrimSpace(buf.String())
	for _, want := range []string{"job_id=7", "stage=convert", "worker=worker-2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	WarnWithContext(logger, "cleanup failed", "cleanup_failed", String("path", "/tmp/x"))

	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "event_type=cleanup_failed") {
		t.Fatalf("expected event_type in %q", line)
	}
	if !strings.Contains(line, "error_hint=") {
		t.Fatalf("expected error_hint default in %q", line)
	}
}
