package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"morph/internal/config"
	"morph/internal/format"
	"morph/internal/logging"
)

// Watcher enqueues supported files dropped into the inbox directory. Writes
// are debounced so partially copied files are not picked up early.
type Watcher struct {
	cfg    *config.Config
	daemon *Daemon
	logger *slog.Logger
	fs     *fsnotify.Watcher
	settle time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher constructs an inbox watcher. Call Start to begin watching.
func NewWatcher(cfg *config.Config, d *Daemon, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	settle := time.Duration(cfg.Watch.SettleMillis) * time.Millisecond
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		cfg:    cfg,
		daemon: d,
		logger: logger.With(logging.String("component", "inbox-watcher")),
		fs:     fs,
		settle: settle,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Start begins watching the inbox directory and enqueues files already there.
func (w *Watcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	inbox := w.cfg.Paths.InboxDir
	if err := w.fs.Add(inbox); err != nil {
		w.logger.Error("failed to watch inbox",
			logging.String("inbox", inbox),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that inbox_dir exists and is readable"),
		)
		return
	}

	w.wg.Add(1)
	go w.run(runCtx)
	w.scanExisting(runCtx)
	w.logger.Info("watching inbox", logging.String("inbox", inbox))
}

// Stop cancels watching and waits for in-flight work.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	_ = w.fs.Close()
	w.mu.Lock()
	w.stopped = true
	for path, timer := range w.timers {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.scheduleSettle(ctx, event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", logging.Error(err))
		}
	}
}

// scanExisting enqueues files already present in the inbox at startup.
func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.Paths.InboxDir)
	if err != nil {
		w.logger.Warn("failed to scan inbox", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.scheduleSettle(ctx, filepath.Join(w.cfg.Paths.InboxDir, entry.Name()))
	}
}

func (w *Watcher) scheduleSettle(ctx context.Context, path string) {
	if ignoredInboxFile(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if prev, ok := w.timers[path]; ok {
		if prev.Stop() {
			w.wg.Done()
		}
	}
	// Each scheduled settle callback is tracked by the WaitGroup so Stop
	// waits for callbacks that fire during shutdown.
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		stopped := w.stopped
		w.mu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		w.enqueue(ctx, path)
	})
	w.timers[path] = timer
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	source := format.Normalize(strings.TrimPrefix(filepath.Ext(path), "."))
	category, ok := format.CategoryOf(source)
	if !ok {
		w.logger.Debug("ignoring unsupported inbox file", logging.String("path", path))
		return
	}
	target := strings.TrimSpace(w.cfg.Watch.DefaultTargets[string(category)])
	if target == "" {
		w.logger.Debug("no default target for category",
			logging.String("path", path),
			logging.String("category", string(category)),
		)
		return
	}
	if format.Normalize(target) == source {
		return
	}

	job, position, err := w.daemon.Enqueue(ctx, EnqueueParams{
		ClientID:     "inbox",
		SourcePath:   path,
		TargetFormat: target,
	})
	if err != nil {
		w.logger.Warn("failed to enqueue inbox file",
			logging.String("path", path),
			logging.Error(err),
		)
		return
	}
	w.logger.Info("inbox file queued",
		logging.Int64("job_id", job.ID),
		logging.String("conversion", job.Conversion()),
		logging.Int("position", position),
	)
}

func ignoredInboxFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".tmp", ".crdownload", ".partial":
		return true
	}
	return false
}
