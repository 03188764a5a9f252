package notification

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
)

func failedNotification(id string, retryCount, maxRetries int) Notification {
	expires := time.Now().UTC().Add(time.Hour)
	return Notification{
		ID:         id,
		UserID:     "user-1",
		RuleID:     "rule-1",
		Channel:    "email",
		Status:     StatusFailed,
		RetryCount: retryCount,
		MaxRetries: maxRetries,
		ExpiresAt:  &expires,
		Data:       datatypes.JSONMap{"tender_ids": []string{"t1"}},
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	n := failedNotification("n1", 0, 3)

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
	}
	for _, tc := range cases {
		n.RetryCount = tc.retryCount
		if got := n.NextRetryDelay(); got != tc.want {
			t.Fatalf("retry %d: expected delay %s, got %s", tc.retryCount, tc.want, got)
		}
	}
}

func TestCanRetryRespectsLimitsAndExpiry(t *testing.T) {
	now := time.Now().UTC()

	n := failedNotification("n1", 2, 3)
	if !n.CanRetry(now) {
		t.Fatal("expected retry to be allowed under the limit")
	}

	n.RetryCount = 3
	if n.CanRetry(now) {
		t.Fatal("expected no retry at the limit")
	}

	n = failedNotification("n2", 0, 3)
	past := now.Add(-time.Minute)
	n.ExpiresAt = &past
	if n.CanRetry(now) {
		t.Fatal("expected no retry after expiry")
	}

	n = failedNotification("n3", 0, 3)
	n.Status = StatusSent
	if n.CanRetry(now) {
		t.Fatal("expected no retry for a sent notification")
	}
}

func TestSweepResendsDueRetries(t *testing.T) {
	store := newFakeNotifStore()
	store.due = []Notification{failedNotification("n1", 1, 3)}
	store.expired = 2
	producer := &fakeProducer{}
	sweeper := NewSweeper(store, producer, nil)

	retried, expired := sweeper.Sweep(context.Background())
	if retried != 1 || expired != 2 {
		t.Fatalf("expected 1 retried 2 expired, got %d/%d", retried, expired)
	}
	if len(store.sent) != 1 || store.sent[0] != "n1" {
		t.Fatalf("expected n1 marked sent, got %v", store.sent)
	}
	if len(producer.events) != 1 {
		t.Fatalf("expected one dispatch event, got %d", len(producer.events))
	}
	if got := producer.events[0]["retry_count"]; got != 2 {
		t.Fatalf("expected bumped retry count on the event, got %v", got)
	}
}

func TestSweepReschedulesFailedRetryWithLongerBackoff(t *testing.T) {
	store := newFakeNotifStore()
	store.due = []Notification{failedNotification("n1", 1, 3)}
	producer := &fakeProducer{failures: 1}
	sweeper := NewSweeper(store, producer, nil)

	before := time.Now().UTC()
	retried, _ := sweeper.Sweep(context.Background())
	if retried != 0 {
		t.Fatalf("expected no successful retries, got %d", retried)
	}

	next := store.failed["n1"]
	if next == nil {
		t.Fatal("expected another retry to be scheduled")
	}
	// Second failure backs off 2^2 = 4 minutes.
	if next.Before(before.Add(4*time.Minute)) || next.After(before.Add(5*time.Minute)) {
		t.Fatalf("expected next retry about four minutes out, got %s", next)
	}
	if store.failedAt["n1"] != 2 {
		t.Fatalf("expected retry count bumped to 2, got %d", store.failedAt["n1"])
	}
}

func TestSweepStopsRetryingAtLimit(t *testing.T) {
	store := newFakeNotifStore()
	store.due = []Notification{failedNotification("n1", 2, 3)}
	producer := &fakeProducer{failures: 1}
	dlq := &fakeProducer{}
	sweeper := NewSweeper(store, producer, dlq)

	sweeper.Sweep(context.Background())

	if next := store.failed["n1"]; next != nil {
		t.Fatalf("expected terminal failure with no retry scheduled, got %s", next)
	}
	if store.failedAt["n1"] != 3 {
		t.Fatalf("expected retry count at limit, got %d", store.failedAt["n1"])
	}
	if len(dlq.events) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(dlq.events))
	}
	if dlq.events[0]["notification_id"] != "n1" {
		t.Fatalf("unexpected dead letter payload: %v", dlq.events[0])
	}
}
