package workflow

import (
	"context"

	"morph/internal/logging"
	"morph/internal/queue"
	"morph/internal/services"
)

// handleStageFailure classifies a stage error, persists the resulting job
// state, and emits the matching notification. Validation-style failures park
// the job for review; everything else is marked failed and can be retried.
func (m *Manager) handleStageFailure(ctx context.Context, stg pipelineStage, job *queue.Job, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	resolved := services.FailureStatus(stageErr)

	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.String("stage", stg.name),
		logging.String("resolved_status", string(resolved)),
		logging.Error(stageErr),
	)

	message := stageErr.Error()
	if resolved == queue.StatusReview {
		job.Status = queue.StatusReview
		job.NeedsReview = true
		job.ReviewReason = message
		job.ErrorMessage = message
		job.ProgressMessage = message
		job.LastHeartbeat = nil
	} else {
		job.SetFailed(message)
	}

	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist stage failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	m.setLastJob(job)
	m.setLastError(stageErr)
	m.countResult(false)

	var notifyErr error
	if resolved == queue.StatusReview {
		notifyErr = m.notifier.NotifyReviewRequired(ctx, job.SourceName, message)
	} else {
		notifyErr = m.notifier.NotifyJobFailed(ctx, job.SourceName, job.Conversion(), message)
	}
	if notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr))
	}
}
