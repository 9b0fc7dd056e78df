package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"morph/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()

	result := CheckDirectoryAccess("Work directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for %s: %s", dir, result.Detail)
	}

	result = CheckDirectoryAccess("Missing directory", filepath.Join(dir, "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing directory")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccessRejectsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	writeFile(t, path, "data")

	result := CheckDirectoryAccess("Inbox directory", path)
	if result.Passed {
		t.Fatal("expected failure for regular file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()

	result := CheckFreeSpace("Work directory space", dir, 1)
	if !result.Passed {
		t.Fatalf("expected pass with 1 byte minimum: %s", result.Detail)
	}

	result = CheckFreeSpace("Work directory space", filepath.Join(dir, "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestRunAllAndPassed(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "work", "morph.sock")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if !Passed(results) {
		for _, result := range results {
			t.Logf("%s: passed=%v detail=%s", result.Name, result.Passed, result.Detail)
		}
		t.Fatal("expected all checks to pass")
	}

	cfg.Paths.InboxDir = filepath.Join(base, "missing")
	results = RunAll(context.Background(), &cfg)
	if Passed(results) {
		t.Fatal("expected failure with missing inbox")
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}
