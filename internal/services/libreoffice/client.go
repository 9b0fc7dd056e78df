package libreoffice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
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

// Client wraps headless LibreOffice conversions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a LibreOffice client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("libreoffice binary required")
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

// Convert runs soffice --headless --convert-to and returns the produced file
// path. Each invocation gets its own user profile directory so concurrent
// conversions don't contend for the profile lock.
func (c *Client) Convert(ctx context.Context, input, outputDir, targetFormat string) (string, error) {
	if input == "" {
		return "", errors.New("input path required")
	}
	if outputDir == "" {
		return "", errors.New("output directory required")
	}
	targetFormat = strings.ToLower(strings.TrimSpace(targetFormat))
	if targetFormat == "" {
		return "", errors.New("target format required")
	}

	profileDir, err := os.MkdirTemp("", "morph-soffice-*")
	if err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	defer os.RemoveAll(profileDir)

	args := []string{
		"--headless",
		"--norestore",
		"-env:UserInstallation=file://" + profileDir,
		"--convert-to", targetFormat,
		"--outdir", outputDir,
		input,
	}

	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return "", fmt.Errorf("libreoffice convert: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	produced := filepath.Join(outputDir, base+"."+targetFormat)
	if _, err := os.Stat(produced); err != nil {
		return "", fmt.Errorf("libreoffice produced no output at %s: %w", produced, err)
	}
	return produced, nil
}
