package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"morph/internal/config"
	"morph/internal/logging"
	"morph/internal/notifications"
	"morph/internal/queue"
	"morph/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Detector  stage.Handler
	Converter stage.Handler
	Deliverer stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates queue processing across a worker pool.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	workers      int

	heartbeat *HeartbeatMonitor

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage
	startOrder   []queue.Status

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	claimMu sync.Mutex

	queueActive bool
	queueStart  time.Time
	processed   int
	failed      int
}

// NewManager constructs a workflow manager with the default notifier.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, stages StageSet) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg), stages)
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service, stages StageSet) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Limits.MaxConcurrentJobs
	if workers <= 0 {
		workers = 1
	}

	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String("component", "workflow-manager")),
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		workers:      workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}

	m.stages = []pipelineStage{
		{name: "detect", handler: stages.Detector, startStatus: queue.StatusPending, processingStatus: queue.StatusDetecting, doneStatus: queue.StatusDetected},
		{name: "convert", handler: stages.Converter, startStatus: queue.StatusDetected, processingStatus: queue.StatusConverting, doneStatus: queue.StatusConverted},
		{name: "deliver", handler: stages.Deliverer, startStatus: queue.StatusConverted, processingStatus: queue.StatusDelivering, doneStatus: queue.StatusCompleted},
	}
	m.stageByStart = make(map[queue.Status]pipelineStage, len(m.stages))
	for _, stg := range m.stages {
		m.stageByStart[stg.startStatus] = stg
		m.startOrder = append(m.startOrder, stg.startStatus)
	}
	return m
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	for _, stg := range m.stages {
		if stg.handler == nil {
			m.mu.Unlock()
			return errors.New("workflow stages not configured")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i)
	}
	go m.runJanitor(runCtx)

	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		cp := *job
		m.lastJob = &cp
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
