package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"morph/internal/config"
	"morph/internal/converting"
	"morph/internal/daemon"
	"morph/internal/history"
	"morph/internal/ipc"
	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/storage"
	"morph/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the morph daemon runtime loop and blocks until the context is
// canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, "morph.log")
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logToolSnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "morph-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "morphd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	historyStore, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer historyStore.Close()

	var uploader storage.Uploader
	if cfg.Storage.Enabled {
		client, storageErr := storage.New(cfg)
		if storageErr != nil {
			return fmt.Errorf("init storage client: %w", storageErr)
		}
		uploader = client
	}

	converter, err := converting.NewConverter(cfg, store, logger)
	if err != nil {
		return fmt.Errorf("init converter: %w", err)
	}
	deliverer, err := converting.NewDeliverer(cfg, store, historyStore, logger, uploader)
	if err != nil {
		return fmt.Errorf("init deliverer: %w", err)
	}

	workflowManager := workflow.NewManager(cfg, store, logger, workflow.StageSet{
		Detector:  converting.NewDetector(cfg, store, historyStore, logger),
		Converter: converter,
		Deliverer: deliverer,
	})

	d, err := daemon.New(cfg, store, historyStore, logger, workflowManager)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
		)
	}

	<-signalCtx.Done()
	logger.Info("morph daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logToolSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("tool snapshot",
		logging.String(logging.FieldEventType, "tool_snapshot"),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Tools.FFmpeg)),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Tools.FFprobe)),
		logging.Bool("imagemagick_available", binaryAvailable(cfg.Tools.ImageMagick)),
		logging.Bool("libreoffice_available", binaryAvailable(cfg.Tools.LibreOffice)),
		logging.Bool("poppler_available", binaryAvailable(cfg.Tools.PdfToPpm)),
		logging.Bool("ghostscript_available", binaryAvailable(cfg.Tools.Ghostscript)),
		logging.Bool("storage_enabled", cfg.Storage.Enabled),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
