package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/services"
	"morph/internal/stage"
)

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, stg, err := m.claim(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.waitOrShutdown(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
			continue
		}
		if job == nil {
			m.checkQueueDrained(ctx)
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, logger, stg, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// claim fetches the oldest eligible job and transitions it to its processing
// status. Serialized so two workers never pick up the same job.
func (m *Manager) claim(ctx context.Context) (*queue.Job, pipelineStage, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()

	job, err := m.store.NextForStatuses(ctx, m.startOrder...)
	if err != nil || job == nil {
		return nil, pipelineStage{}, err
	}
	stg, ok := m.stageByStart[job.Status]
	if !ok {
		return nil, pipelineStage{}, fmt.Errorf("no stage configured for status %s", job.Status)
	}

	m.markQueueActive()

	now := time.Now().UTC()
	job.Status = stg.processingStatus
	job.ProgressPercent = 0
	job.ErrorMessage = ""
	job.LastHeartbeat = &now
	if err := m.store.Update(ctx, job); err != nil {
		return nil, pipelineStage{}, fmt.Errorf("persist processing transition: %w", err)
	}
	m.setLastJob(job)
	return job, stg, nil
}

func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	requestID := uuid.NewString()
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithStage(jobCtx, stg.name)
	jobCtx = services.WithRequestID(jobCtx, requestID)

	logger := logging.WithContext(jobCtx, workerLogger)
	started := time.Now()
	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_name", strings.TrimSpace(job.SourceName)),
		logging.String("conversion", job.Conversion()),
	)

	if err := stg.handler.Prepare(jobCtx, job); err != nil {
		m.handleStageFailure(jobCtx, stg, job, err)
		return err
	}
	if err := m.store.Update(jobCtx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		logger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(jobCtx, stg.handler, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(jobCtx, stg, job, execErr)
		return execErr
	}

	if job.Status == stg.processingStatus || job.Status == "" {
		job.Status = stg.doneStatus
	}
	job.LastHeartbeat = nil
	if err := m.store.Update(jobCtx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		logger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(started)),
	)
	m.setLastJob(job)
	if job.Status == queue.StatusCompleted {
		m.countResult(true)
	}
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// runJanitor periodically reclaims stale processing jobs and prunes old
// completed rows.
func (m *Manager) runJanitor(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.heartbeatInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.ReclaimStaleJobs(ctx, m.logger); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("reclaim stale processing failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
			m.pruneCompleted(ctx)
		}
	}
}

func (m *Manager) pruneCompleted(ctx context.Context) {
	retention := time.Duration(m.cfg.Workflow.CompletedRetention) * time.Hour
	if retention <= 0 {
		return
	}
	removed, err := m.store.RemoveCompletedBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("completed job pruning failed", logging.Error(err))
		}
		return
	}
	if removed > 0 {
		m.logger.Info("pruned completed jobs", logging.Int64("count", removed))
	}
}
