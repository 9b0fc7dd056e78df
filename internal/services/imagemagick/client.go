package imagemagick

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
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

// Client wraps ImageMagick CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs an ImageMagick client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("imagemagick binary required")
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

// Convert transcodes an image into the format implied by the output
// extension. JPEG targets are flattened onto a white background because the
// format has no alpha channel.
func (c *Client) Convert(ctx context.Context, input, output string, quality int) error {
	if input == "" || output == "" {
		return errors.New("input and output paths required")
	}

	args := []string{input, "-auto-orient"}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(output), "."))
	if ext == "jpg" || ext == "jpeg" {
		args = append(args, "-background", "white", "-flatten")
	}
	if quality > 0 {
		args = append(args, "-quality", strconv.Itoa(quality))
	}
	args = append(args, output)

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("imagemagick convert: %w", err)
	}
	return nil
}

// ImagesToPDF renders one or more images into a single PDF document.
func (c *Client) ImagesToPDF(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("at least one input image required")
	}
	if output == "" {
		return errors.New("output path required")
	}

	args := make([]string, 0, len(inputs)+3)
	args = append(args, inputs...)
	args = append(args, "-auto-orient", output)

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("imagemagick images to pdf: %w", err)
	}
	return nil
}
