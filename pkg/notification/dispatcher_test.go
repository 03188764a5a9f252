package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solutionhub/platform/pkg/monitoring"
	"github.com/solutionhub/platform/pkg/tender"
	"gorm.io/datatypes"
)

type fakeNotifStore struct {
	created  []*Notification
	sent     []string
	failed   map[string]*time.Time
	failedAt map[string]int
	due      []Notification
	expired  int64
}

func newFakeNotifStore() *fakeNotifStore {
	return &fakeNotifStore{failed: map[string]*time.Time{}, failedAt: map[string]int{}}
}

func (f *fakeNotifStore) Create(ctx context.Context, n *Notification) error {
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotifStore) MarkSent(ctx context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeNotifStore) MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error {
	f.failed[id] = nextRetryAt
	f.failedAt[id] = retryCount
	return nil
}

func (f *fakeNotifStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	return f.due, nil
}

func (f *fakeNotifStore) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	return f.expired, nil
}

type fakeRuleCounters struct {
	found   int
	sent    int
	results []monitoring.RecentResult
}

func (f *fakeRuleCounters) IncrementCounters(ctx context.Context, id string, tendersFound, notificationsSent int) error {
	f.found += tendersFound
	f.sent += notificationsSent
	return nil
}

func (f *fakeRuleCounters) AppendRecentResults(ctx context.Context, id string, results []monitoring.RecentResult) error {
	f.results = append(f.results, results...)
	return nil
}

type fakeProducer struct {
	events   []map[string]interface{}
	failures int
}

func (f *fakeProducer) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unreachable")
	}
	f.events = append(f.events, data)
	return nil
}

func testRule(channels ...string) *monitoring.Rule {
	return &monitoring.Rule{
		ID:       "rule-1",
		Name:     "notebooks",
		UserID:   "user-1",
		Status:   monitoring.StatusActive,
		Channels: datatypes.JSONSlice[string](channels),
	}
}

func matched(id string, score int) MatchedTender {
	return MatchedTender{
		Tender: &tender.Tender{ID: id, Title: "Tender " + id, OrgName: "Prefeitura", EstimatedValue: 1000},
		Score:  score,
	}
}

func TestDispatchCreatesOneNotificationPerChannel(t *testing.T) {
	store := newFakeNotifStore()
	counters := &fakeRuleCounters{}
	producer := &fakeProducer{}
	d := NewDispatcher(store, counters, producer, 3, 72*time.Hour)

	d.Dispatch(context.Background(), testRule("email", "whatsapp"), []MatchedTender{
		matched("t1", 70),
		matched("t2", 90),
	})

	if len(store.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.created))
	}
	if len(store.sent) != 2 {
		t.Fatalf("expected both marked sent, got %d", len(store.sent))
	}
	if len(producer.events) != 2 {
		t.Fatalf("expected 2 dispatch events, got %d", len(producer.events))
	}

	n := store.created[0]
	if n.Status != StatusPending || n.MaxRetries != 3 || n.ExpiresAt == nil {
		t.Fatalf("unexpected notification shape: %+v", n)
	}
	ids, ok := n.Data["tender_ids"].([]string)
	if !ok || len(ids) != 2 {
		t.Fatalf("expected tender ids on payload, got %v", n.Data["tender_ids"])
	}
	if ids[0] != "t2" {
		t.Fatalf("expected highest score first, got %v", ids)
	}

	if counters.found != 2 || counters.sent != 2 {
		t.Fatalf("expected counters 2/2, got %d/%d", counters.found, counters.sent)
	}
	if len(counters.results) != 2 || counters.results[0].TenderID != "t2" {
		t.Fatalf("unexpected recent results: %+v", counters.results)
	}
}

func TestDispatchSchedulesRetryOnPublishFailure(t *testing.T) {
	store := newFakeNotifStore()
	producer := &fakeProducer{failures: 1}
	d := NewDispatcher(store, &fakeRuleCounters{}, producer, 3, 72*time.Hour)

	before := time.Now().UTC()
	d.Dispatch(context.Background(), testRule("email"), []MatchedTender{matched("t1", 50)})

	if len(store.sent) != 0 {
		t.Fatal("expected no notification marked sent")
	}
	if len(store.failed) != 1 {
		t.Fatalf("expected one failure recorded, got %d", len(store.failed))
	}
	for id, next := range store.failed {
		if next == nil {
			t.Fatal("expected a retry to be scheduled")
		}
		// First failure backs off 2^0 = 1 minute.
		if next.Before(before.Add(time.Minute)) || next.After(before.Add(2*time.Minute)) {
			t.Fatalf("expected next retry about one minute out, got %s", next)
		}
		if store.failedAt[id] != 0 {
			t.Fatalf("expected retry count unchanged on first failure, got %d", store.failedAt[id])
		}
	}
}

func TestDispatchSummaryCapsAtFive(t *testing.T) {
	store := newFakeNotifStore()
	d := NewDispatcher(store, &fakeRuleCounters{}, &fakeProducer{}, 3, time.Hour)

	matches := make([]MatchedTender, 0, 7)
	for i := 0; i < 7; i++ {
		matches = append(matches, matched("t"+string(rune('0'+i)), 10*i))
	}
	d.Dispatch(context.Background(), testRule("email"), matches)

	if len(store.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(store.created))
	}
	ids := store.created[0].Data["tender_ids"].([]string)
	if len(ids) != 7 {
		t.Fatalf("expected all tender ids carried, got %d", len(ids))
	}
}

func TestDispatchIgnoresEmptyMatchList(t *testing.T) {
	store := newFakeNotifStore()
	d := NewDispatcher(store, &fakeRuleCounters{}, &fakeProducer{}, 3, time.Hour)

	d.Dispatch(context.Background(), testRule("email"), nil)
	if len(store.created) != 0 {
		t.Fatal("expected no notifications for an empty match list")
	}
}
