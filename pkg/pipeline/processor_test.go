package pipeline

import (
	"context"
	"testing"

	"github.com/solutionhub/platform/pkg/monitoring"
	"github.com/solutionhub/platform/pkg/notification"
	"github.com/solutionhub/platform/pkg/tender"
	"gorm.io/datatypes"
)

type fakeRuleSource struct {
	rules []monitoring.Rule
}

func (f *fakeRuleSource) FindActive(ctx context.Context) ([]monitoring.Rule, error) {
	return f.rules, nil
}

type fakeMarker struct {
	scores map[string]float64
}

func (f *fakeMarker) SetMonitored(ctx context.Context, id string, score float64) error {
	if f.scores == nil {
		f.scores = map[string]float64{}
	}
	f.scores[id] = score
	return nil
}

type fakeNotifier struct {
	dispatched map[string][]notification.MatchedTender
}

func (f *fakeNotifier) Dispatch(ctx context.Context, rule *monitoring.Rule, matches []notification.MatchedTender) {
	if f.dispatched == nil {
		f.dispatched = map[string][]notification.MatchedTender{}
	}
	f.dispatched[rule.ID] = matches
}

func keywordRule(id, keyword string) monitoring.Rule {
	return monitoring.Rule{
		ID:       id,
		Name:     id,
		UserID:   "user-1",
		Status:   monitoring.StatusActive,
		Keywords: datatypes.JSONSlice[string]{keyword},
		Channels: datatypes.JSONSlice[string]{"email"},
	}
}

func TestProcessGroupsMatchesByRule(t *testing.T) {
	rules := &fakeRuleSource{rules: []monitoring.Rule{
		keywordRule("rule-a", "notebook"),
		keywordRule("rule-b", "ambulância"),
	}}
	marker := &fakeMarker{}
	notifier := &fakeNotifier{}
	p := NewProcessor(rules, monitoring.NewEngine(monitoring.DefaultScoreWeights()), marker, notifier)

	batch := []*tender.Tender{
		{ID: "t1", Title: "Aquisição de notebooks"},
		{ID: "t2", Title: "Compra de ambulância UTI"},
		{ID: "t3", Title: "Serviços de limpeza"},
	}
	if err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.dispatched) != 2 {
		t.Fatalf("expected 2 rules dispatched, got %d", len(notifier.dispatched))
	}
	if got := notifier.dispatched["rule-a"]; len(got) != 1 || got[0].Tender.ID != "t1" {
		t.Fatalf("unexpected matches for rule-a: %+v", got)
	}
	if got := notifier.dispatched["rule-b"]; len(got) != 1 || got[0].Tender.ID != "t2" {
		t.Fatalf("unexpected matches for rule-b: %+v", got)
	}

	if marker.scores["t1"] != 20 || marker.scores["t2"] != 20 {
		t.Fatalf("expected matched tenders marked with their score, got %v", marker.scores)
	}
	if _, ok := marker.scores["t3"]; ok {
		t.Fatal("expected unmatched tender to stay unmarked")
	}
}

func TestProcessSkipsClosedWindows(t *testing.T) {
	closedStart, closedEnd := 0, 0 // [0, 0) never admits any hour
	rule := keywordRule("rule-a", "notebook")
	rule.NotifyStartHour = &closedStart
	rule.NotifyEndHour = &closedEnd

	notifier := &fakeNotifier{}
	p := NewProcessor(&fakeRuleSource{rules: []monitoring.Rule{rule}},
		monitoring.NewEngine(monitoring.DefaultScoreWeights()), &fakeMarker{}, notifier)

	batch := []*tender.Tender{{ID: "t1", Title: "Aquisição de notebooks"}}
	if err := p.Process(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.dispatched) != 0 {
		t.Fatalf("expected no dispatch outside the window, got %+v", notifier.dispatched)
	}
}

func TestProcessNoOpWithoutRulesOrTenders(t *testing.T) {
	notifier := &fakeNotifier{}
	p := NewProcessor(&fakeRuleSource{}, monitoring.NewEngine(monitoring.DefaultScoreWeights()), &fakeMarker{}, notifier)

	if err := p.Process(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(context.Background(), []*tender.Tender{{ID: "t1", Title: "qualquer"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.dispatched) != 0 {
		t.Fatal("expected no dispatch without rules")
	}
}
