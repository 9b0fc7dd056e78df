package ghostscript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"morph/internal/services"
)

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

// Client wraps Ghostscript CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a Ghostscript client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ghostscript binary required")
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

// presetSettings maps compression presets to Ghostscript PDFSETTINGS values.
var presetSettings = map[string]string{
	"low":    "/printer",
	"medium": "/ebook",
	"high":   "/screen",
}

// Compress rewrites a PDF with downsampled images. Preset is one of low,
// medium, or high (defaults to medium).
func (c *Client) Compress(ctx context.Context, input, output, preset string) error {
	if input == "" || output == "" {
		return errors.New("input and output paths required")
	}
	setting, ok := presetSettings[strings.ToLower(strings.TrimSpace(preset))]
	if !ok {
		setting = presetSettings["medium"]
	}

	args := []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=" + setting,
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile=" + output,
		input,
	}

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("ghostscript compress: %w", err)
	}
	return nil
}
