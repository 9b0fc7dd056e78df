package main

import (
	"os"
	"path/filepath"
	"testing"

	"morph/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate", "--path", configPath}, filepath.Join(base, "missing.sock"), "")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, cfg.Paths.InboxDir)

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	socket := filepath.Join(base, "missing.sock")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, socket, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, socket, ""); err == nil {
		t.Fatal("expected error without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, socket, "")
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
}
