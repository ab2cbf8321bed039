package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"evalpanel/internal/jobs"
	"evalpanel/internal/logging"
	"evalpanel/internal/notifications"
	"evalpanel/internal/services"
)

// fail records err on the job. Transient errors ask for a retry, which the
// job service turns into failed once the retry bound is reached; everything
// else fails the job outright.
func (m *Manager) fail(ctx context.Context, logger *slog.Logger, job *jobs.Job, cause error) error {
	message := strings.TrimSpace(cause.Error())
	target := jobs.StatusFailed
	if services.IsRetryable(cause) {
		target = jobs.StatusRetrying
	}
	updated, err := m.jobs.ApplyUpdate(context.WithoutCancel(ctx), job.ID, jobs.Update{
		Status:    target,
		LastError: &message,
	})
	if errors.Is(err, services.ErrConflict) {
		logger.Info("job changed before failure could be recorded", logging.Error(cause))
		return nil
	}
	if err != nil {
		logger.Error("failed to persist evaluation failure", logging.Error(err))
		return err
	}

	logger.Error("evaluation failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, services.ErrorKind(cause)),
		logging.String(logging.FieldStatus, string(updated.Status)),
		logging.Int(logging.FieldRetryCount, updated.RetryCount),
		logging.Alert("evaluation_failure"),
	)
	if updated.Status == jobs.StatusFailed {
		m.publish(ctx, logger, notifications.EventJobFailed, notifications.Payload{
			"jobId":      updated.ID,
			"title":      updated.Title,
			"error":      message,
			"retryLabel": updated.RetryLabel(m.cfg.Jobs.MaxRetries),
		})
	}
	return nil
}
