package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"morph/internal/logging"
	"morph/internal/queue"
)

// HeartbeatMonitor keeps processing jobs marked alive and reclaims jobs whose
// owners stopped heartbeating (crashed worker, killed daemon).
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor constructs a monitor with sane floors on its intervals.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= interval {
		timeout = 4 * interval
	}
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger.With(logging.String("component", "heartbeat")),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// StartLoop periodically refreshes the heartbeat for a job until ctx is
// cancelled. Intended to run as a goroutine alongside stage execution.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				h.logger.Warn("heartbeat update failed",
					logging.Int64("job_id", jobID),
					logging.Error(err),
				)
			}
		}
	}
}

// ReclaimStaleJobs returns processing jobs with expired heartbeats to their
// stage start status so another worker can pick them up.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context, logger *slog.Logger) error {
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		if logger == nil {
			logger = h.logger
		}
		logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.Duration("timeout", h.heartbeatTimeout),
		)
	}
	return nil
}
