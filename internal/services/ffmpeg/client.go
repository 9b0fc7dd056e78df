package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"morph/internal/services"
)

// ProgressUpdate captures FFmpeg progress output.
type ProgressUpdate struct {
	Percent float64
	Message string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps FFmpeg CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs an FFmpeg client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{
		binary: binary,
		exec:   services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// AudioRequest describes an audio conversion or extraction.
type AudioRequest struct {
	Input        string
	Output       string
	TargetFormat string
	Bitrate      string
}

// ConvertAudio transcodes an audio source (or extracts the audio track from
// a video source) into the requested format.
func (c *Client) ConvertAudio(ctx context.Context, req AudioRequest) error {
	if req.Input == "" || req.Output == "" {
		return errors.New("input and output paths required")
	}

	args := []string{"-i", req.Input, "-y", "-vn"}
	switch strings.ToLower(req.TargetFormat) {
	case "mp3":
		args = append(args, "-codec:a", "libmp3lame", "-b:a", req.Bitrate)
	case "wav":
		args = append(args, "-codec:a", "pcm_s16le")
	case "aac", "m4a":
		args = append(args, "-codec:a", "aac", "-b:a", req.Bitrate)
	case "ogg":
		args = append(args, "-codec:a", "libvorbis", "-b:a", req.Bitrate)
	case "flac":
		args = append(args, "-codec:a", "flac")
	default:
		return fmt.Errorf("unsupported audio target %q", req.TargetFormat)
	}
	args = append(args, req.Output)

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("ffmpeg audio convert: %w", err)
	}
	return nil
}

// VideoRequest describes a video transcode.
type VideoRequest struct {
	Input           string
	Output          string
	CRF             int
	Preset          string
	DurationSeconds float64
	OnProgress      func(ProgressUpdate)
}

// ConvertVideo transcodes a video into the container implied by the output
// file extension. WebM requires VP9/Opus; everything else re-encodes with
// libx264 and AAC audio.
func (c *Client) ConvertVideo(ctx context.Context, req VideoRequest) error {
	if req.Input == "" || req.Output == "" {
		return errors.New("input and output paths required")
	}

	args := []string{"-i", req.Input, "-y"}
	switch {
	case strings.EqualFold(filepath.Ext(req.Output), ".webm"):
		args = append(args,
			"-c:v", "libvpx-vp9",
			"-crf", strconv.Itoa(req.CRF),
			"-b:v", "0",
			"-c:a", "libopus",
		)
	default:
		args = append(args,
			"-c:v", "libx264",
			"-crf", strconv.Itoa(req.CRF),
			"-preset", req.Preset,
			"-c:a", "aac",
			"-pix_fmt", "yuv420p",
		)
		if strings.EqualFold(filepath.Ext(req.Output), ".mp4") {
			args = append(args, "-movflags", "+faststart")
		}
	}
	if req.OnProgress != nil {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}
	args = append(args, req.Output)

	onStdout := func(line string) {
		if req.OnProgress == nil {
			return
		}
		if update, ok := parseProgressLine(line, req.DurationSeconds); ok {
			req.OnProgress(update)
		}
	}

	if err := c.exec.Run(ctx, c.binary, args, onStdout); err != nil {
		return fmt.Errorf("ffmpeg video convert: %w", err)
	}
	return nil
}

// GIFRequest describes an animated GIF render.
type GIFRequest struct {
	Input           string
	Output          string
	FPS             int
	Width           int
	DurationSeconds float64
}

// CreateGIF renders an animated GIF from a video source using a generated
// palette for acceptable colour quality.
func (c *Client) CreateGIF(ctx context.Context, req GIFRequest) error {
	if req.Input == "" || req.Output == "" {
		return errors.New("input and output paths required")
	}
	fps := req.FPS
	if fps <= 0 {
		fps = 12
	}
	width := req.Width
	if width <= 0 {
		width = 480
	}

	filter := fmt.Sprintf(
		"fps=%d,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		fps, width,
	)
	args := []string{"-i", req.Input, "-y"}
	if req.DurationSeconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(req.DurationSeconds, 'f', -1, 64))
	}
	args = append(args, "-vf", filter, "-loop", "0", req.Output)

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("ffmpeg gif render: %w", err)
	}
	return nil
}

// parseProgressLine interprets one key=value line from "-progress pipe:1"
// output. Percent is derived from out_time_us against the known duration.
func parseProgressLine(line string, durationSeconds float64) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	key, value, found := strings.Cut(line, "=")
	if !found {
		return ProgressUpdate{}, false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		if durationSeconds <= 0 {
			return ProgressUpdate{}, false
		}
		micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || micros < 0 {
			return ProgressUpdate{}, false
		}
		percent := float64(micros) / 1e6 / durationSeconds * 100
		if percent > 100 {
			percent = 100
		}
		return ProgressUpdate{Percent: percent}, true
	case "progress":
		if strings.TrimSpace(value) == "end" {
			return ProgressUpdate{Percent: 100, Message: "finalizing"}, true
		}
	}
	return ProgressUpdate{}, false
}
