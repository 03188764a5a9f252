package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/common/models"
	"github.com/solutionhub/platform/pkg/monitoring"
	"github.com/solutionhub/platform/pkg/observability/metrics"
	"github.com/solutionhub/platform/pkg/tender"
	"gorm.io/datatypes"
)

// ErrDeliveryFailed marks a dispatch handoff that could not reach the
// delivery collaborator; the retry sweeper owns it from there.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// summaryCap bounds how many tenders one notification summarizes.
const summaryCap = 5

// EventPublisher is the outbound edge to the delivery collaborator.
// Satisfied by the kafka producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Store is the slice of the notification repository the dispatcher and the
// retry sweeper need.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// RuleCounters is the slice of the monitoring repository the dispatcher
// mutates: running counters and the bounded trailing match list.
type RuleCounters interface {
	IncrementCounters(ctx context.Context, id string, tendersFound, notificationsSent int) error
	AppendRecentResults(ctx context.Context, id string, results []monitoring.RecentResult) error
}

// MatchedTender pairs a tender with the score it earned against a rule.
type MatchedTender struct {
	Tender *tender.Tender
	Score  int
}

type Dispatcher struct {
	store      Store
	rules      RuleCounters
	producer   EventPublisher
	maxRetries int
	ttl        time.Duration
}

func NewDispatcher(store Store, rules RuleCounters, producer EventPublisher, maxRetries int, ttl time.Duration) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Dispatcher{
		store:      store,
		rules:      rules,
		producer:   producer,
		maxRetries: maxRetries,
		ttl:        ttl,
	}
}

// Dispatch builds one notification per enabled channel summarizing the
// most relevant matches, persists them, and hands them to the delivery
// collaborator. A failed handoff is recorded for the retry sweeper, never
// propagated: delivery failures must not abort the sync run driving this.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *monitoring.Rule, matches []MatchedTender) {
	if len(matches) == 0 {
		return
	}

	sorted := append([]MatchedTender{}, matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	title := fmt.Sprintf("%d new tender(s) matched rule %q", len(matches), rule.Name)
	message := buildSummary(sorted)
	tenderIDs := make([]string, 0, len(sorted))
	for _, m := range sorted {
		tenderIDs = append(tenderIDs, m.Tender.ID)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(d.ttl)
	sent := 0

	for _, channel := range rule.Channels {
		n := &Notification{
			ID:         uuid.New().String(),
			UserID:     rule.UserID,
			RuleID:     rule.ID,
			Channel:    channel,
			Category:   CategoryTenderAlert,
			Priority:   PriorityMedium,
			Status:     StatusPending,
			Title:      title,
			Message:    message,
			MaxRetries: d.maxRetries,
			ExpiresAt:  &expiresAt,
			Data: datatypes.JSONMap{
				"rule_id":    rule.ID,
				"tender_ids": tenderIDs,
			},
		}

		if err := d.store.Create(ctx, n); err != nil {
			logger.Log.WithError(err).WithField("rule_id", rule.ID).Error("failed to persist notification")
			continue
		}

		if err := d.publish(ctx, n, tenderIDs); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"notification_id": n.ID,
				"channel":         channel,
			}).Warn("dispatch handoff failed, scheduled for retry")
			nextRetry := now.Add(n.NextRetryDelay())
			_ = d.store.MarkFailed(ctx, n.ID, err.Error(), n.RetryCount, &nextRetry)
			metrics.NotificationFailed()
			continue
		}

		if err := d.store.MarkSent(ctx, n.ID); err != nil {
			logger.Log.WithError(err).WithField("notification_id", n.ID).Error("failed to mark notification sent")
		}
		metrics.NotificationSent()
		sent++
	}

	d.recordRuleActivity(ctx, rule, sorted, sent)
}

func (d *Dispatcher) publish(ctx context.Context, n *Notification, tenderIDs []string) error {
	req := models.DispatchRequest{
		NotificationID: n.ID,
		RuleID:         n.RuleID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		Title:          n.Title,
		Message:        n.Message,
		TenderIDs:      tenderIDs,
		RetryCount:     n.RetryCount,
	}
	if err := d.producer.PublishEvent(ctx, "notification.dispatch", "intelligence-service", req.Payload()); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func (d *Dispatcher) recordRuleActivity(ctx context.Context, rule *monitoring.Rule, sorted []MatchedTender, sent int) {
	if err := d.rules.IncrementCounters(ctx, rule.ID, len(sorted), sent); err != nil {
		logger.Log.WithError(err).WithField("rule_id", rule.ID).Error("failed to update rule counters")
	}

	results := make([]monitoring.RecentResult, 0, len(sorted))
	for _, m := range sorted {
		results = append(results, monitoring.RecentResult{
			TenderID:     m.Tender.ID,
			Title:        m.Tender.Title,
			Organization: m.Tender.OrgName,
			Value:        m.Tender.EstimatedValue,
			Score:        m.Score,
			FoundAt:      time.Now().UTC(),
		})
	}
	if err := d.rules.AppendRecentResults(ctx, rule.ID, results); err != nil {
		logger.Log.WithError(err).WithField("rule_id", rule.ID).Error("failed to append recent results")
	}
}

func buildSummary(sorted []MatchedTender) string {
	var b strings.Builder
	limit := len(sorted)
	if limit > summaryCap {
		limit = summaryCap
	}
	for i := 0; i < limit; i++ {
		t := sorted[i].Tender
		fmt.Fprintf(&b, "- %s (%s), R$ %.2f\n", truncate(t.Title, 80), t.OrgName, t.EstimatedValue)
	}
	if len(sorted) > summaryCap {
		fmt.Fprintf(&b, "... and %d more\n", len(sorted)-summaryCap)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
