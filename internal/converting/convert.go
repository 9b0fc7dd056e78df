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
	"morph/internal/format"
	"morph/internal/logging"
	"morph/internal/media/ffprobe"
	"morph/internal/queue"
	"morph/internal/services"
	"morph/internal/services/ffmpeg"
	"morph/internal/stage"
)

// Converter runs the external tool pipeline that turns a detected source into
// the requested target format.
type Converter struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	router *Router
}

// NewConverter constructs the convert stage handler.
func NewConverter(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Converter, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	return NewConverterWithRouter(cfg, store, logger, router), nil
}

// NewConverterWithRouter allows injecting the router (used in tests).
func NewConverterWithRouter(cfg *config.Config, store *queue.Store, logger *slog.Logger, router *Router) *Converter {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "converter"))
	}
	return &Converter{store: store, cfg: cfg, logger: stageLogger, router: router}
}

// Prepare initializes progress messaging prior to Execute.
func (c *Converter) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, c.logger)
	if job.ProgressStage == "" {
		job.ProgressStage = "Converting"
	}
	job.ProgressMessage = "Preparing conversion"
	job.ProgressPercent = 0
	job.ErrorMessage = ""
	logger.Info("starting conversion", logging.String("conversion", job.Conversion()))
	return nil
}

// Execute converts the source file into work_dir/outputs, honoring the
// per-category timeout.
func (c *Converter) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, c.logger)

	if strings.TrimSpace(job.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, "converting", "validate inputs",
			"No source path present; rerun detection", nil)
	}

	outputDir := filepath.Join(c.cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "converting", "prepare output dir",
			"Could not create outputs directory", err)
	}

	category := format.Category(job.Category)
	timeout := time.Duration(c.cfg.TimeoutForCategory(job.Category)) * time.Second
	convertCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		convertCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := Request{
		Input:           job.SourcePath,
		OutputDir:       outputDir,
		SourceFormat:    job.SourceFormat,
		TargetFormat:    job.TargetFormat,
		Category:        category,
		DurationSeconds: probedDuration(job),
		OnProgress:      c.progressCallback(ctx, job),
	}

	route, err := c.router.RouteName(job.SourceFormat, job.TargetFormat, category)
	if err == nil {
		logger.Info("routed conversion", logging.String("route", route))
	}

	started := time.Now()
	job.SetProgress("Converting", fmt.Sprintf("Running %s", job.Conversion()), 5)
	output, err := c.router.Execute(convertCtx, req)
	if err != nil {
		if convertCtx.Err() == context.DeadlineExceeded {
			return services.Wrap(services.ErrTimeout, "converting", route,
				fmt.Sprintf("Conversion exceeded the %s timeout", timeout), err)
		}
		return err
	}

	info, err := os.Stat(output)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "converting", route, "Output file vanished", err)
	}

	job.OutputPath = output
	job.OutputSize = info.Size()
	job.Status = queue.StatusConverted
	job.SetProgressComplete("Converted", fmt.Sprintf("Produced %s", filepath.Base(output)))
	logger.Info(
		"conversion complete",
		logging.String("output", output),
		logging.Int64("output_size", info.Size()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// HealthCheck verifies the outputs directory is writable.
func (c *Converter) HealthCheck(_ context.Context) stage.Health {
	outputDir := filepath.Join(c.cfg.Paths.WorkDir, "outputs")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return stage.Unhealthy("convert", err.Error())
	}
	return stage.Healthy("convert")
}

// progressCallback persists ffmpeg progress updates as they arrive. Updates
// are throttled to whole-percent changes to keep database writes down.
func (c *Converter) progressCallback(ctx context.Context, job *queue.Job) func(ffmpeg.ProgressUpdate) {
	lastPercent := -1.0
	return func(update ffmpeg.ProgressUpdate) {
		if update.Percent-lastPercent < 1 {
			return
		}
		lastPercent = update.Percent
		message := update.Message
		if message == "" {
			message = fmt.Sprintf("%.0f%% complete", update.Percent)
		}
		job.SetProgress("Converting", message, update.Percent)
		if c.store != nil {
			if err := c.store.Update(ctx, job); err != nil {
				logging.WithContext(ctx, c.logger).Warn("progress update failed", logging.Error(err))
			}
		}
	}
}

func probedDuration(job *queue.Job) float64 {
	if strings.TrimSpace(job.ProbeJSON) == "" {
		return 0
	}
	result, err := ffprobe.Parse([]byte(job.ProbeJSON))
	if err != nil {
		return 0
	}
	return result.DurationSeconds()
}
