package workflow

import (
	"context"
	"errors"
	"time"

	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/stage"
)

// StatusSummary is a point-in-time snapshot of the workflow for status
// surfaces (CLI, API, IPC).
type StatusSummary struct {
	Running     bool
	Workers     int
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
	LastError   error
	LastJob     *queue.Job
}

// Status reports queue counts, stage health, and the most recent job and
// error observed by the workers.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:   m.running,
		Workers:   m.workers,
		LastError: m.lastErr,
	}
	if m.lastJob != nil {
		cp := *m.lastJob
		summary.LastJob = &cp
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("queue stats unavailable", logging.Error(err))
	} else {
		summary.QueueStats = stats
	}

	summary.StageHealth = make(map[string]stage.Health, len(m.stages))
	for _, stg := range m.stages {
		summary.StageHealth[stg.name] = stg.handler.HealthCheck(ctx)
	}
	return summary
}

// markQueueActive starts a drain-tracking window the first time work is
// claimed after the queue was empty.
func (m *Manager) markQueueActive() {
	m.mu.Lock()
	if !m.queueActive {
		m.queueActive = true
		m.queueStart = time.Now()
		m.processed = 0
		m.failed = 0
	}
	m.mu.Unlock()
}

func (m *Manager) countResult(success bool) {
	m.mu.Lock()
	if success {
		m.processed++
	} else {
		m.failed++
	}
	m.mu.Unlock()
}

// checkQueueDrained emits a single notification once all claimed work has
// reached a terminal status.
func (m *Manager) checkQueueDrained(ctx context.Context) {
	m.mu.RLock()
	active := m.queueActive
	m.mu.RUnlock()
	if !active {
		return
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("queue stats unavailable", logging.Error(err))
		}
		return
	}
	for status, count := range stats {
		if !queue.IsTerminal(status) && count > 0 {
			return
		}
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	processed := m.processed
	failed := m.failed
	elapsed := time.Since(m.queueStart)
	m.queueActive = false
	m.processed = 0
	m.failed = 0
	m.mu.Unlock()

	if processed == 0 && failed == 0 {
		return
	}
	m.logger.Info("queue drained",
		logging.Int("processed", processed),
		logging.Int("failed", failed),
		logging.Duration("elapsed", elapsed),
	)
	if err := m.notifier.NotifyQueueDrained(ctx, processed, failed, elapsed); err != nil {
		m.logger.Warn("queue drained notification failed", logging.Error(err))
	}
}
