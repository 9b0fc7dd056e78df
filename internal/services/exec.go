package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Executor abstracts command execution so tool clients stay testable.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// CommandExecutor runs commands with exec.CommandContext and streams stdout
// lines to the supplied callback. Stderr is captured for error reporting.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if onStdout != nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start %s: %w", binary, err)
		}
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			onStdout(scanner.Text())
		}
		if err := cmd.Wait(); err != nil {
			return commandError(ctx, binary, err, stderr.String())
		}
		return nil
	}

	if err := cmd.Run(); err != nil {
		return commandError(ctx, binary, err, stderr.String())
	}
	return nil
}

func commandError(ctx context.Context, binary string, err error, stderr string) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s did not finish in time", ErrTimeout, binary)
	}
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		return fmt.Errorf("%s: %w", binary, err)
	}
	// Keep the tail of long tool output; the useful diagnostics come last.
	const maxDetail = 512
	if len(detail) > maxDetail {
		detail = "..." + detail[len(detail)-maxDetail:]
	}
	return fmt.Errorf("%s: %w: %s", binary, err, detail)
}
