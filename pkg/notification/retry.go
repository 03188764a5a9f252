package notification

import (
	"context"
	"time"

	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/observability/metrics"
)

// sweepBatchSize bounds how many due retries one sweep drains. Anything
// left over is picked up on the next tick.
const sweepBatchSize = 100

// Sweeper re-drives failed notifications on an exponential backoff and
// expires the ones that outlived their TTL. It runs on a cron tick.
type Sweeper struct {
	store    Store
	producer EventPublisher
	dlq      EventPublisher
}

// NewSweeper wires the retry loop. dlq may be nil; when set, notifications
// that exhaust their retry budget are announced on it for offline triage.
func NewSweeper(store Store, producer EventPublisher, dlq EventPublisher) *Sweeper {
	return &Sweeper{store: store, producer: producer, dlq: dlq}
}

// Sweep expires overdue notifications, then retries every failed one whose
// backoff has elapsed. Each retry attempt bumps the retry counter; once the
// counter reaches the maximum the notification stays failed for good.
func (s *Sweeper) Sweep(ctx context.Context) (retried, expired int) {
	now := time.Now().UTC()

	n, err := s.store.ExpireOverdue(ctx, now)
	if err != nil {
		logger.Log.WithError(err).Error("failed to expire overdue notifications")
	}
	expired = int(n)

	due, err := s.store.FindDueRetries(ctx, now, sweepBatchSize)
	if err != nil {
		logger.Log.WithError(err).Error("failed to load due notification retries")
		return retried, expired
	}
	metrics.SetRetryBacklog(len(due))

	for i := range due {
		if ctx.Err() != nil {
			return retried, expired
		}
		if !due[i].CanRetry(now) {
			continue
		}
		if s.retryOne(ctx, &due[i], now) {
			retried++
		}
	}
	return retried, expired
}

func (s *Sweeper) retryOne(ctx context.Context, n *Notification, now time.Time) bool {
	payload := map[string]interface{}{
		"notification_id": n.ID,
		"rule_id":         n.RuleID,
		"user_id":         n.UserID,
		"channel":         n.Channel,
		"title":           n.Title,
		"message":         n.Message,
		"tender_ids":      n.Data["tender_ids"],
		"retry_count":     n.RetryCount + 1,
	}

	if err := s.producer.PublishEvent(ctx, "notification.dispatch", "intelligence-service", payload); err != nil {
		n.RetryCount++
		var next *time.Time
		if n.RetryCount < n.MaxRetries {
			at := now.Add(n.NextRetryDelay())
			next = &at
		} else {
			s.deadLetter(ctx, n, err)
		}
		if mErr := s.store.MarkFailed(ctx, n.ID, err.Error(), n.RetryCount, next); mErr != nil {
			logger.Log.WithError(mErr).WithField("notification_id", n.ID).Error("failed to record retry failure")
		}
		metrics.NotificationFailed()
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"notification_id": n.ID,
			"retry_count":     n.RetryCount,
			"max_retries":     n.MaxRetries,
		}).Warn("notification retry failed")
		return false
	}

	if err := s.store.MarkSent(ctx, n.ID); err != nil {
		logger.Log.WithError(err).WithField("notification_id", n.ID).Error("failed to mark retried notification sent")
	}
	metrics.NotificationSent()
	return true
}

func (s *Sweeper) deadLetter(ctx context.Context, n *Notification, cause error) {
	if s.dlq == nil {
		return
	}
	err := s.dlq.PublishEvent(ctx, "notification.dead", "intelligence-service", map[string]interface{}{
		"notification_id": n.ID,
		"rule_id":         n.RuleID,
		"user_id":         n.UserID,
		"channel":         n.Channel,
		"retry_count":     n.RetryCount,
		"error":           cause.Error(),
	})
	if err != nil {
		logger.Log.WithError(err).WithField("notification_id", n.ID).Error("failed to publish dead letter")
	}
}
