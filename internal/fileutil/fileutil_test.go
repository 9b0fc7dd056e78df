package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "src.bin", "hello world")
	dst := filepath.Join(dir, "dst.bin")

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected contents: %q", data)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := writeTempFile(t, dir, "src.bin", "payload")
	dst := filepath.Join(dir, "moved.bin")

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected source to be gone")
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected contents: %q", data)
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.txt", "abc")

	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	got, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if got != want {
		t.Fatalf("fingerprint mismatch: got %s", got)
	}

	if _, err := Fingerprint(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")

	if got := UniquePath(path); got != path {
		t.Fatalf("expected original path, got %s", got)
	}

	writeTempFile(t, dir, "report.pdf", "x")
	if got := UniquePath(path); got != filepath.Join(dir, "report (1).pdf") {
		t.Fatalf("unexpected unique path: %s", got)
	}

	writeTempFile(t, dir, "report (1).pdf", "x")
	if got := UniquePath(path); got != filepath.Join(dir, "report (2).pdf") {
		t.Fatalf("unexpected unique path: %s", got)
	}
}

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpace: %v", err)
	}
	if free == 0 {
		t.Fatal("expected nonzero free space")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"  spaced name.MP3", "spaced name.mp3"},
		{"über café.png", "uber cafe.png"},
		{"../../etc/passwd", "passwd"},
		{"bad:file*name?.docx", "bad_file_name_.docx"},
		{"", "file"},
		{"...", "file"},
		{"trailing dots...txt", "trailing dots...txt"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "a"
	}
	got := SanitizeFilename(long + ".txt")
	if len(got) > maxFilenameLength+len(".txt") {
		t.Fatalf("expected truncated name, got %d chars", len(got))
	}
	if filepath.Ext(got) != ".txt" {
		t.Fatalf("expected extension preserved, got %s", got)
	}
}
