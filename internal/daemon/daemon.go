package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"morph/internal/config"
	"morph/internal/deps"
	"morph/internal/fileutil"
	"morph/internal/format"
	"morph/internal/history"
	"morph/internal/logging"
	"morph/internal/notifications"
	"morph/internal/preflight"
	"morph/internal/queue"
	"morph/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	history  *history.Store
	workflow *workflow.Manager
	logPath  string

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer
	watcher   *Watcher

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, historyStore *history.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || historyStore == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, stores, logger, and workflow manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "morphd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String("component", "daemon")),
		store:    store,
		history:  historyStore,
		workflow: wf,
		logPath:  filepath.Join(cfg.Paths.LogDir, "morph.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server

	if cfg.Watch.Enabled {
		watcher, err := NewWatcher(cfg, d, logger)
		if err != nil {
			return nil, fmt.Errorf("create inbox watcher: %w", err)
		}
		d.watcher = watcher
	}
	return d, nil
}

// Start acquires the daemon lock and launches background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another morph daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.logPreflight(d.ctx)

	if reset, err := d.store.ResetStuckProcessing(d.ctx); err != nil {
		d.logger.Warn("failed to reset stuck jobs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset stuck processing jobs", logging.Int64("count", reset))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.apiServer.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	if d.watcher != nil {
		d.watcher.Start(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("morph daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.apiServer.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("morph daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.history != nil {
		errs = append(errs, d.history.Close())
	}
	return errors.Join(errs...)
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Debug("preflight check passed", logging.String("check", result.Name))
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	for _, dep := range d.Dependencies() {
		if dep.Available {
			d.logger.Debug("tool available", logging.String("tool", dep.Name))
			continue
		}
		level := d.logger.Warn
		if dep.Optional {
			level = d.logger.Info
		}
		level("tool unavailable",
			logging.String("tool", dep.Name),
			logging.String("command", dep.Command),
			logging.String("detail", dep.Detail),
		)
	}
}

// Dependencies reports availability of the external conversion tools.
func (d *Daemon) Dependencies() []deps.Status {
	return deps.CheckBinaries(deps.Required(d.cfg))
}

// EnqueueParams carries the fields required to submit a conversion.
type EnqueueParams struct {
	ClientID     string
	SourcePath   string
	SourceName   string
	TargetFormat string
}

// Enqueue validates a conversion request and inserts a pending job. The
// returned position is the job's place in the pending queue.
func (d *Daemon) Enqueue(ctx context.Context, params EnqueueParams) (*queue.Job, int, error) {
	clientID := strings.TrimSpace(params.ClientID)
	if clientID == "" {
		clientID = "anonymous"
	}
	sourcePath := strings.TrimSpace(params.SourcePath)
	if sourcePath == "" {
		return nil, 0, errors.New("source path is required")
	}
	sourceName := strings.TrimSpace(params.SourceName)
	if sourceName == "" {
		sourceName = filepath.Base(sourcePath)
	}

	sourceFormat := format.Normalize(strings.TrimPrefix(filepath.Ext(sourceName), "."))
	targetFormat := format.Normalize(params.TargetFormat)
	if !format.CanConvert(sourceFormat, targetFormat) {
		return nil, 0, fmt.Errorf("cannot convert %s to %s", sourceFormat, targetFormat)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, 0, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("source path %q is a directory", sourcePath)
	}

	category := ""
	if cat, ok := format.CategoryOf(sourceFormat); ok {
		category = string(cat)
	}
	job, err := d.store.NewJob(ctx, queue.NewJobParams{
		ClientID:     clientID,
		SourcePath:   sourcePath,
		SourceName:   sourceName,
		SourceFormat: sourceFormat,
		Category:     category,
		TargetFormat: targetFormat,
		InputSize:    info.Size(),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("enqueue job: %w", err)
	}

	position, err := d.store.Position(ctx, job.ID)
	if err != nil {
		position = 0
	}

	d.logger.Info("job queued",
		logging.Int64("job_id", job.ID),
		logging.String("client_id", clientID),
		logging.String("conversion", job.Conversion()),
		logging.Int("position", position),
	)
	notifier := notifications.NewService(d.cfg)
	if err := notifier.NotifyJobQueued(ctx, job.SourceName, job.Conversion(), position); err != nil {
		d.logger.Warn("queued notification failed", logging.Error(err))
	}
	return job, position, nil
}

// AddFile enqueues a local file for conversion on behalf of the CLI.
func (d *Daemon) AddFile(ctx context.Context, sourcePath, targetFormat string) (*queue.Job, int, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(sourcePath))
	if err != nil {
		return nil, 0, fmt.Errorf("resolve source path: %w", err)
	}
	return d.Enqueue(ctx, EnqueueParams{
		ClientID:     "local",
		SourcePath:   absPath,
		TargetFormat: targetFormat,
	})
}

// StageUpload copies an uploaded stream into the daemon's work directory and
// returns the staged path. The name is sanitized before use.
func (d *Daemon) StageUpload(name string) (string, error) {
	uploadDir := filepath.Join(d.cfg.Paths.WorkDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	staged := fileutil.UniquePath(filepath.Join(uploadDir, fileutil.SanitizeFilename(name)))
	return staged, nil
}

// ListQueue returns jobs filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// ListQueueForClient returns a client's most recent jobs.
func (d *Daemon) ListQueueForClient(ctx context.Context, clientID string, limit int) ([]*queue.Job, error) {
	return d.store.ListForClient(ctx, clientID, limit)
}

// GetJob fetches a single job by id.
func (d *Daemon) GetJob(ctx context.Context, id int64) (*queue.Job, error) {
	return d.store.GetByID(ctx, id)
}

// RemoveJob deletes a job row.
func (d *Daemon) RemoveJob(ctx context.Context, id int64) (bool, error) {
	return d.store.Remove(ctx, id)
}

// ClearQueue removes all jobs.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed jobs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed jobs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight jobs back to their stage start for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed jobs (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// History returns a client's recent conversion records.
func (d *Daemon) History(ctx context.Context, clientID string, limit int) ([]history.Entry, error) {
	return d.history.ForClient(ctx, clientID, limit)
}

// SystemStats returns aggregate usage totals.
func (d *Daemon) SystemStats(ctx context.Context) (history.SystemStats, error) {
	return d.history.Stats(ctx)
}

// Activity returns recent conversion activity aggregates.
func (d *Daemon) Activity(ctx context.Context) (history.ActivityStats, error) {
	return d.history.Activity(ctx)
}

// Clients lists registered clients.
func (d *Daemon) Clients(ctx context.Context) ([]*history.Client, error) {
	return d.history.ListClients(ctx)
}

// SetClientBanned bans or unbans a client.
func (d *Daemon) SetClientBanned(ctx context.Context, clientID string, banned bool) error {
	if err := d.history.SetBanned(ctx, clientID, banned); err != nil {
		return err
	}
	d.logger.Info("client ban state changed",
		logging.String("client_id", clientID),
		logging.Bool("banned", banned),
	)
	return nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: d.Dependencies(),
	}
}
