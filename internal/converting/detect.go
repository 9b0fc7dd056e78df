package converting

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"morph/internal/config"
	"morph/internal/fileutil"
	"morph/internal/format"
	"morph/internal/history"
	"morph/internal/logging"
	"morph/internal/media/ffprobe"
	"morph/internal/queue"
	"morph/internal/services"
	"morph/internal/stage"
)

// ProbeFunc inspects a media file with ffprobe. Injectable for tests.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Detector validates a pending job's source file and classifies the
// conversion before it reaches the converter.
type Detector struct {
	store   *queue.Store
	history *history.Store
	cfg     *config.Config
	logger  *slog.Logger
	probe   ProbeFunc
}

// NewDetector constructs the detect stage handler.
func NewDetector(cfg *config.Config, store *queue.Store, historyStore *history.Store, logger *slog.Logger) *Detector {
	return NewDetectorWithProbe(cfg, store, historyStore, logger, ffprobe.Inspect)
}

// NewDetectorWithProbe allows injecting the ffprobe call (used in tests).
func NewDetectorWithProbe(cfg *config.Config, store *queue.Store, historyStore *history.Store, logger *slog.Logger, probe ProbeFunc) *Detector {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String("component", "detector"))
	}
	return &Detector{store: store, history: historyStore, cfg: cfg, logger: stageLogger, probe: probe}
}

// Prepare initializes progress messaging prior to Execute.
func (d *Detector) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)
	if job.ProgressStage == "" {
		job.ProgressStage = "Detecting"
	}
	job.ProgressMessage = "Validating source file"
	job.ProgressPercent = 0
	job.ErrorMessage = ""
	logger.Info(
		"starting detection",
		logging.String("source_name", strings.TrimSpace(job.SourceName)),
		logging.String("target_format", job.TargetFormat),
	)
	return nil
}

// Execute validates the source, resolves its category, fingerprints it, and
// probes audio/video inputs.
func (d *Detector) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, d.logger)

	banned, err := d.history.IsBanned(ctx, job.ClientID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detecting", "banned check", "could not query client record", err)
	}
	if banned {
		return services.Wrap(services.ErrValidation, "detecting", "banned check",
			fmt.Sprintf("Client %s is banned", job.ClientID), nil)
	}

	source := strings.TrimSpace(job.SourcePath)
	if source == "" {
		return services.Wrap(services.ErrValidation, "detecting", "validate inputs", "Job has no source path", nil)
	}
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, "detecting", "validate inputs",
				fmt.Sprintf("Source file %s is missing", source), err)
		}
		return services.Wrap(services.ErrTransient, "detecting", "validate inputs", "Could not stat source file", err)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "detecting", "validate inputs", "Source file is empty", nil)
	}
	if info.Size() > d.cfg.MaxFileSizeBytes() {
		return services.Wrap(services.ErrValidation, "detecting", "validate inputs",
			fmt.Sprintf("Source file is %d bytes, above the %d MiB limit", info.Size(), d.cfg.Limits.MaxFileSizeMB), nil)
	}
	job.InputSize = info.Size()

	sourceFormat := format.Normalize(job.SourceFormat)
	if sourceFormat == "" {
		sourceFormat = format.Normalize(filepath.Ext(job.SourceName))
	}
	category, ok := format.CategoryOf(sourceFormat)
	if !ok {
		return services.Wrap(services.ErrValidation, "detecting", "classify",
			fmt.Sprintf("Unsupported source format %q", sourceFormat), nil)
	}
	target := format.Normalize(job.TargetFormat)
	if !format.CanConvert(sourceFormat, target) {
		return services.Wrap(services.ErrValidation, "detecting", "classify",
			fmt.Sprintf("Cannot convert %s to %s", sourceFormat, target), nil)
	}
	job.SourceFormat = sourceFormat
	job.TargetFormat = target
	job.Category = string(category)

	job.SetProgress("Detecting", "Fingerprinting source", 40)
	fingerprint, err := fileutil.Fingerprint(source)
	if err != nil {
		return services.Wrap(services.ErrTransient, "detecting", "fingerprint", "Could not hash source file", err)
	}
	job.Fingerprint = fingerprint

	prior, err := d.store.FindByFingerprint(ctx, fingerprint, target, queue.StatusCompleted)
	if err != nil {
		logger.Warn("duplicate lookup failed", logging.Error(err))
	} else if prior != nil && prior.ID != job.ID && reusableDelivery(prior) {
		job.OutputPath = prior.OutputPath
		job.OutputSize = prior.OutputSize
		job.DeliveredPath = prior.DeliveredPath
		job.RemoteObject = prior.RemoteObject
		job.Status = queue.StatusCompleted
		job.SetProgressComplete("Completed", fmt.Sprintf("Already converted as job %d", prior.ID))
		logger.Info(
			"duplicate source detected",
			logging.Int64("duplicate_of", prior.ID),
			logging.String("fingerprint", fingerprint),
		)
		return nil
	}

	if category == format.CategoryAudio || category == format.CategoryVideo {
		job.SetProgress("Detecting", "Probing media streams", 70)
		result, err := d.probe(ctx, d.cfg.Tools.FFprobe, source)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "detecting", "probe", "ffprobe failed on source file", err)
		}
		if category == format.CategoryVideo && !result.HasVideo() {
			return services.Wrap(services.ErrValidation, "detecting", "probe", "File has no video stream", nil)
		}
		if category == format.CategoryAudio && !result.HasAudio() {
			return services.Wrap(services.ErrValidation, "detecting", "probe", "File has no audio stream", nil)
		}
		job.ProbeJSON = string(result.RawJSON())
		logger.Info(
			"probed media source",
			logging.Float64("duration_seconds", result.DurationSeconds()),
			logging.Bool("has_audio", result.HasAudio()),
		)
	}

	if err := d.history.EnsureClient(ctx, job.ClientID); err != nil {
		logger.Warn("could not register client", logging.Error(err))
	}

	job.Status = queue.StatusDetected
	job.SetProgressComplete("Detected", fmt.Sprintf("Ready to convert %s", job.Conversion()))
	logger.Info(
		"detection complete",
		logging.String("category", job.Category),
		logging.String("fingerprint", job.Fingerprint),
	)
	return nil
}

// reusableDelivery reports whether a completed job's output can still be
// served, so a duplicate submission can reuse it instead of reconverting.
func reusableDelivery(prior *queue.Job) bool {
	if prior.DeliveredPath != "" {
		if _, err := os.Stat(prior.DeliveredPath); err == nil {
			return true
		}
	}
	return prior.RemoteObject != ""
}

// HealthCheck verifies the stores backing detection are reachable.
func (d *Detector) HealthCheck(ctx context.Context) stage.Health {
	if d.history == nil {
		return stage.Unhealthy("detect", "history store unavailable")
	}
	if _, err := d.history.Stats(ctx); err != nil {
		return stage.Unhealthy("detect", err.Error())
	}
	return stage.Healthy("detect")
}
