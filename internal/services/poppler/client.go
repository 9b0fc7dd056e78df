package poppler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
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

// Client wraps the Poppler CLI utilities.
type Client struct {
	ppmBinary  string
	textBinary string
	exec       Executor
}

// New constructs a Poppler client from the pdftoppm and pdftotext binaries.
func New(ppmBinary, textBinary string, opts ...Option) (*Client, error) {
	ppmBinary = strings.TrimSpace(ppmBinary)
	textBinary = strings.TrimSpace(textBinary)
	if ppmBinary == "" || textBinary == "" {
		return nil, errors.New("pdftoppm and pdftotext binaries required")
	}
	client := &Client{
		ppmBinary:  ppmBinary,
		textBinary: textBinary,
		exec:       services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// RenderPages rasterizes every page of a PDF into the requested image format
// under outputDir, returning the produced files in page order. The webp
// target renders via png; callers convert the intermediate afterwards.
func (c *Client) RenderPages(ctx context.Context, input, outputDir, imageFormat string, dpi int) ([]string, error) {
	if input == "" {
		return nil, errors.New("input path required")
	}
	if outputDir == "" {
		return nil, errors.New("output directory required")
	}

	var formatFlag string
	switch strings.ToLower(imageFormat) {
	case "jpg", "jpeg":
		formatFlag = "-jpeg"
	case "png", "webp":
		formatFlag = "-png"
	default:
		return nil, fmt.Errorf("unsupported raster format %q", imageFormat)
	}
	if dpi <= 0 {
		dpi = 300
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	prefix := filepath.Join(outputDir, base)

	args := []string{formatFlag, "-r", strconv.Itoa(dpi), input, prefix}
	if err := c.exec.Run(ctx, c.ppmBinary, args, nil); err != nil {
		return nil, fmt.Errorf("pdftoppm render: %w", err)
	}

	pages, err := collectRenderedPages(outputDir, filepath.Base(prefix))
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, errors.New("pdftoppm produced no pages")
	}
	return pages, nil
}

// ExtractText extracts the text content of a PDF into output.
func (c *Client) ExtractText(ctx context.Context, input, output string) error {
	if input == "" || output == "" {
		return errors.New("input and output paths required")
	}
	args := []string{"-layout", input, output}
	if err := c.exec.Run(ctx, c.textBinary, args, nil); err != nil {
		return fmt.Errorf("pdftotext extract: %w", err)
	}
	return nil
}

func collectRenderedPages(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("inspect render outputs: %w", err)
	}
	var pages []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") && !strings.HasPrefix(name, prefix+".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			continue
		}
		pages = append(pages, filepath.Join(dir, name))
	}
	sort.Strings(pages)
	return pages, nil
}
