package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/common/models"
)

// AckHandler settles notification rows from delivery acknowledgments
// published by the delivery collaborator. A "delivered" ack closes the
// state machine; a "failed" ack reschedules the row the same way the
// sweeper does, so collaborator-side failures share one retry budget.
func AckHandler(repo *Repository) func(ctx context.Context, event models.Event) error {
	return func(ctx context.Context, event models.Event) error {
		id, _ := event.Data["notification_id"].(string)
		if id == "" {
			logger.Log.WithField("event_id", event.ID).Warn("delivery ack without notification id")
			return nil
		}
		status, _ := event.Data["status"].(string)

		switch status {
		case StatusDelivered:
			err := repo.MarkDelivered(ctx, id)
			if errors.Is(err, ErrNotFound) {
				logger.Log.WithField("notification_id", id).Warn("delivery ack for unknown notification")
				return nil
			}
			return err

		case StatusFailed:
			reason, _ := event.Data["error"].(string)
			return rescheduleFromAck(ctx, repo, id, reason)

		default:
			logger.Log.WithFields(map[string]interface{}{
				"notification_id": id,
				"status":          status,
			}).Warn("delivery ack with unknown status")
			return nil
		}
	}
}

func rescheduleFromAck(ctx context.Context, repo *Repository, id, reason string) error {
	n, err := repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		logger.Log.WithField("notification_id", id).Warn("failure ack for unknown notification")
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if n.IsExpired(now) {
		return repo.MarkExpired(ctx, id)
	}

	n.RetryCount++
	var next *time.Time
	if n.RetryCount < n.MaxRetries {
		at := now.Add(n.NextRetryDelay())
		next = &at
	}
	if reason == "" {
		reason = "delivery failed"
	}
	if err := repo.MarkFailed(ctx, id, reason, n.RetryCount, next); err != nil {
		return fmt.Errorf("recording delivery failure: %w", err)
	}
	return nil
}
