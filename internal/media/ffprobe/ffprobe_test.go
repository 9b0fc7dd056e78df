package ffprobe

import (
	"context"
	"testing"
)

const samplePayload = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "sample_rate": "48000"}
  ],
  "format": {
    "filename": "clip.mp4",
    "nb_streams": 2,
    "duration": "12.500000",
    "size": "1048576",
    "bit_rate": "670000",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2"
  }
}`

func TestParseAndAccessors(t *testing.T) {
	result, err := Parse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !result.HasVideo() {
		t.Fatal("expected video stream")
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if result.DurationSeconds() != 12.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1048576 {
		t.Fatalf("unexpected size: %v", result.SizeBytes())
	}
	if len(result.RawJSON()) == 0 {
		t.Fatal("expected raw payload to round-trip")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAccessorsTolerateMissingFields(t *testing.T) {
	result, err := Parse([]byte(`{"streams": [], "format": {}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.HasVideo() || result.HasAudio() {
		t.Fatal("expected no streams")
	}
	if result.DurationSeconds() != 0 {
		t.Fatalf("expected 0 duration, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected 0 size, got %v", result.SizeBytes())
	}
}

func TestInspectRequiresPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
