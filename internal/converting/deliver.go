package converting

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"morph/internal/config"
	"morph/internal/fileutil"
	"morph/internal/history"
	"morph/internal/logging"
	"morph/internal/notifications"
	"morph/internal/preflight"
	"morph/internal/queue"
	"morph/internal/services"
	"morph/internal/services/ghostscript"
	"morph/internal/stage"
	"morph/internal/storage"
)

// Deliverer moves converted outputs into the output directory, optionally
// uploads them, records history, and cleans up the staged source.
type Deliverer struct {
	store    *queue.Store
	history  *history.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service
	uploader storage.Uploader
	gs       *ghostscript.Client
}

// NewDeliverer constructs the deliver stage handler. The uploader may be nil
// when remote storage is disabled.
func NewDeliverer(cfg *config.Config, store *queue.Store, historyStore *history.Store, logger *slog.Logger, uploader storage.Uploader) (*Deliverer, error) {
	gsClient, err := ghostscript.New(cfg.Tools.Ghostscript)
	if err != nil {
		return nil, fmt.Errorf("ghostscript client: %w", err)
	}
	return NewDelivererWithDependencies(cfg, store, historyStore, logger, notifications.NewService(cfg), uploader, gsClient), nil
}

// NewDelivererWithDependencies allows injecting collaborators (used in tests).
func NewDelivererWithDependencies(cfg *config.Config, store *queue.Store, historyStore *history.Store, logger *slog.Logger, notifier notifications.Service, uploader storage.Uploader, gsClient *ghostscript.Client) *Deliverer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "deliverer"))
	}
	return &Deliverer{
		store:    store,
		history:  historyStore,
		cfg:      cfg,
		logger:   stageLogger,
		notifier: notifier,
		uploader: uploader,
		gs:       gsClient,
	}
}

// Prepare initializes progress messaging prior to Execute.
func (d *Deliverer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)
	if job.ProgressStage == "" {
		job.ProgressStage = "Delivering"
	}
	job.ProgressMessage = "Preparing delivery"
	job.ProgressPercent = 0
	job.ErrorMessage = ""
	logger.Info("starting delivery", logging.String("output", strings.TrimSpace(job.OutputPath)))
	return nil
}

// Execute finalizes the job: size check, move to output_dir, optional upload,
// history row, staged input cleanup, and completion notification.
func (d *Deliverer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)

	output := strings.TrimSpace(job.OutputPath)
	if output == "" {
		return services.Wrap(services.ErrValidation, "delivering", "validate inputs",
			"No output file present; run conversion before delivery", nil)
	}
	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "delivering", "validate inputs",
			fmt.Sprintf("Output file %s is missing", output), err)
	}

	if info.Size() > d.cfg.MaxOutputSizeBytes() {
		output, info, err = d.shrink(ctx, job, output, info)
		if err != nil {
			return err
		}
	}

	job.SetProgress("Delivering", "Moving output into place", 30)
	finalPath := fileutil.UniquePath(filepath.Join(d.cfg.Paths.OutputDir, filepath.Base(output)))
	if err := fileutil.MoveFile(output, finalPath); err != nil {
		return services.Wrap(services.ErrTransient, "delivering", "move output",
			"Could not move output into output directory", err)
	}
	job.DeliveredPath = finalPath
	job.OutputPath = finalPath
	job.OutputSize = info.Size()

	if d.uploader != nil {
		job.SetProgress("Delivering", "Uploading to remote storage", 60)
		key, err := d.uploader.Upload(ctx, finalPath)
		if err != nil {
			return services.Wrap(services.ErrTransient, "delivering", "upload", "Remote upload failed", err)
		}
		job.RemoteObject = key
		logger.Info("uploaded output", logging.String("object_key", key))
	}

	if err := d.recordHistory(ctx, job); err != nil {
		logger.Warn("history record failed", logging.Error(err))
	}

	d.cleanupSource(job, logger)

	job.Status = queue.StatusCompleted
	job.SetProgressComplete("Completed", fmt.Sprintf("Delivered %s", filepath.Base(finalPath)))
	logger.Info(
		"delivery complete",
		logging.String("delivered_path", finalPath),
		logging.Int64("output_size", job.OutputSize),
	)

	if d.notifier != nil {
		if err := d.notifier.NotifyJobCompleted(ctx, job.SourceName, job.Conversion()); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck verifies the output directory is writable.
func (d *Deliverer) HealthCheck(_ context.Context) stage.Health {
	result := preflight.CheckDirectoryAccess("Output directory", d.cfg.Paths.OutputDir)
	if !result.Passed {
		return stage.Unhealthy("deliver", result.Detail)
	}
	return stage.Healthy("deliver")
}

// shrink attempts a Ghostscript compression pass for oversized PDF outputs.
// Anything else over the limit is a validation failure.
func (d *Deliverer) shrink(ctx context.Context, job *queue.Job, output string, info os.FileInfo) (string, os.FileInfo, error) {
	logger := logging.WithContext(ctx, d.logger)
	limit := d.cfg.MaxOutputSizeBytes()

	if !strings.EqualFold(filepath.Ext(output), ".pdf") || d.gs == nil {
		return "", nil, services.Wrap(services.ErrValidation, "delivering", "size check",
			fmt.Sprintf("Output is %d bytes, above the %d MiB limit", info.Size(), d.cfg.Limits.MaxOutputSizeMB), nil)
	}

	job.SetProgress("Delivering", "Compressing oversized PDF", 15)
	compressed := strings.TrimSuffix(output, filepath.Ext(output)) + ".compressed.pdf"
	if err := d.gs.Compress(ctx, output, compressed, "low"); err != nil {
		return "", nil, services.Wrap(services.ErrExternalTool, "delivering", "compress", "PDF compression failed", err)
	}

	compressedInfo, err := os.Stat(compressed)
	if err != nil {
		return "", nil, services.Wrap(services.ErrExternalTool, "delivering", "compress", "Compressed output missing", err)
	}
	if compressedInfo.Size() > limit {
		_ = os.Remove(compressed)
		return "", nil, services.Wrap(services.ErrValidation, "delivering", "size check",
			fmt.Sprintf("Output is still %d bytes after compression, above the %d MiB limit",
				compressedInfo.Size(), d.cfg.Limits.MaxOutputSizeMB), nil)
	}

	_ = os.Remove(output)
	logger.Info(
		"compressed oversized pdf",
		logging.Int64("original_size", info.Size()),
		logging.Int64("compressed_size", compressedInfo.Size()),
	)
	return compressed, compressedInfo, nil
}

func (d *Deliverer) recordHistory(ctx context.Context, job *queue.Job) error {
	if d.history == nil {
		return nil
	}
	duration := time.Since(job.CreatedAt)
	if duration < 0 {
		duration = 0
	}
	return d.history.RecordConversion(ctx, history.Entry{
		ClientID:     job.ClientID,
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		InputSize:    job.InputSize,
		OutputSize:   job.OutputSize,
		Duration:     duration,
		Success:      true,
	})
}

// cleanupSource removes the staged input file once its output is delivered.
// Sources outside the work directory (inbox drops) are left alone.
func (d *Deliverer) cleanupSource(job *queue.Job, logger *slog.Logger) {
	source := strings.TrimSpace(job.SourcePath)
	if source == "" {
		return
	}
	workDir := filepath.Clean(d.cfg.Paths.WorkDir) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(source), workDir) {
		return
	}
	if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
		logger.Warn("staged input cleanup failed", logging.Error(err))
	}
}
