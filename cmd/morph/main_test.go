package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"morph/internal/config"
	"morph/internal/daemon"
	"morph/internal/history"
	"morph/internal/ipc"
	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/stage"
	"morph/internal/testsupport"
	"morph/internal/workflow"
)

type noopStage struct{ name string }

func (s noopStage) Prepare(ctx context.Context, job *queue.Job) error { return nil }
func (s noopStage) Execute(ctx context.Context, job *queue.Job) error { return nil }
func (s noopStage) HealthCheck(ctx context.Context) stage.Health      { return stage.Healthy(s.name) }

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	history    *history.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	base := testsupport.BaseDir(cfg)

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	historyStore := testsupport.MustOpenHistory(t, cfg)
	logger := logging.NewNop()

	mgr := workflow.NewManager(cfg, store, logger, workflow.StageSet{
		Detector:  noopStage{name: "detect"},
		Converter: noopStage{name: "convert"},
		Deliverer: noopStage{name: "deliver"},
	})

	d, err := daemon.New(cfg, store, historyStore, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		history:    historyStore,
		daemon:     d,
		server:     srv,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
		baseDir:    base,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
inbox_dir = %q
work_dir = %q
output_dir = %q
log_dir = %q
socket_path = %q

[watch]
enabled = false
`,
		cfg.Paths.InboxDir,
		cfg.Paths.WorkDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.Paths.SocketPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got %q", needle, haystack)
	}
}

func TestCLIConvertAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	source := filepath.Join(env.cfg.Paths.InboxDir, "photo.png")
	testsupport.WriteFile(t, source, 2048)

	out, _, err := runCLI(t, []string{"convert", source, "--to", "jpg"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	requireContains(t, out, "png -> jpg")

	out, _, err = runCLI(t, []string{"show", "1"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "photo.png")
	requireContains(t, out, "png -> jpg")
}

func TestCLIFormatsCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"formats", "--input", "png"}, "/nonexistent.sock", "")
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	requireContains(t, out, "png (image)")
	requireContains(t, out, "jpg")

	if _, _, err := runCLI(t, []string{"formats", "--input", "nope"}, "/nonexistent.sock", ""); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestCLIClientsBanUnban(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"clients", "ban", "client-x"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("clients ban: %v", err)
	}
	requireContains(t, out, "Client client-x banned")

	out, _, err = runCLI(t, []string{"clients", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("clients list: %v", err)
	}
	requireContains(t, out, "client-x")
	requireContains(t, out, "yes")

	out, _, err = runCLI(t, []string{"clients", "unban", "client-x"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("clients unban: %v", err)
	}
	requireContains(t, out, "Client client-x unbanned")
}

func TestCLILogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	logPath := env.daemon.LogPath()
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "third")
	if strings.Contains(out, "first") {
		t.Fatalf("expected only trailing lines, got %q", out)
	}
}
