package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solutionhub/platform/pkg/common/models"
	"github.com/solutionhub/platform/pkg/registry"
	"github.com/solutionhub/platform/pkg/tender"
)

type listResponse struct {
	page *registry.Page
	err  error
}

type fakeRegistry struct {
	responses []listResponse
	calls     []registry.SearchParams
	items     map[string][]registry.Item
	gate      chan struct{}
}

func (f *fakeRegistry) ListByPublicationDate(ctx context.Context, params registry.SearchParams) (*registry.Page, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.calls = append(f.calls, params)
	if len(f.responses) == 0 {
		return &registry.Page{}, nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next.page, next.err
}

func (f *fakeRegistry) TenderItems(ctx context.Context, controlNumber string) []registry.Item {
	return f.items[controlNumber]
}

func (f *fakeRegistry) TenderDocuments(ctx context.Context, controlNumber string) []registry.Document {
	return nil
}

type fakeStore struct {
	known      map[string]bool
	upserts    []string
	enrichment map[string]int
}

func newFakeStore(known ...string) *fakeStore {
	s := &fakeStore{known: map[string]bool{}, enrichment: map[string]int{}}
	for _, k := range known {
		s.known[k] = true
	}
	return s
}

func (f *fakeStore) Upsert(ctx context.Context, draft *tender.Tender) (bool, *tender.Tender, error) {
	f.upserts = append(f.upserts, draft.ControlNumber)
	if f.known[draft.ControlNumber] {
		return false, draft, nil
	}
	f.known[draft.ControlNumber] = true
	return true, draft, nil
}

func (f *fakeStore) SetEnrichment(ctx context.Context, id string, items []tender.LineItem, docs []tender.DocumentRef) error {
	f.enrichment[id] = len(items) + len(docs)
	return nil
}

type fakeProcessor struct {
	batches [][]*tender.Tender
}

func (f *fakeProcessor) Process(ctx context.Context, batch []*tender.Tender) error {
	f.batches = append(f.batches, batch)
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return nil
}

func entry(control string) registry.Entry {
	return registry.Entry{
		NumeroControlePNCP: control,
		ObjetoCompra:       "Aquisição de material de escritório",
		DataPublicacaoPncp: "2026-08-20T10:00:00",
	}
}

func pageOf(total int, current int, entries ...registry.Entry) *registry.Page {
	return &registry.Page{
		Data: entries,
		Meta: registry.Meta{
			TotalDeRegistros:  len(entries) * total,
			QuantidadePaginas: total,
			PaginaAtual:       current,
			TamanhoPagina:     100,
		},
	}
}

func newTestEngine(reg Registry, store Store, processor BatchProcessor, producer EventPublisher) *Engine {
	return NewEngine(reg, store, tender.NewMapper(tender.DefaultClassifier()), processor, producer, Options{
		PageSize:         100,
		PageCeiling:      50,
		RateLimitBackoff: time.Millisecond,
	})
}

func TestRunWalksAllPages(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(2, 1, entry("ctrl-1"))},
			{page: pageOf(2, 2, entry("ctrl-2"))},
		},
	}
	store := newFakeStore()
	processor := &fakeProcessor{}
	producer := &fakePublisher{}
	engine := newTestEngine(reg, store, processor, producer)

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Imported != 2 || result.Pages != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(reg.calls) != 2 {
		t.Fatalf("expected 2 page fetches, got %d", len(reg.calls))
	}
	if reg.calls[0].Page != 1 || reg.calls[1].Page != 2 {
		t.Fatalf("expected sequential pages, got %+v", reg.calls)
	}
	if len(processor.batches) != 1 || len(processor.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2, got %+v", processor.batches)
	}
	if len(producer.events) != 1 || producer.events[0] != "tender.synced" {
		t.Fatalf("expected a tender.synced event, got %v", producer.events)
	}
}

func TestRunIsIdempotentForKnownTenders(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(1, 1, entry("ctrl-1"), entry("ctrl-2"))},
		},
	}
	store := newFakeStore("ctrl-1")
	processor := &fakeProcessor{}
	engine := newTestEngine(reg, store, processor, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 imported 1 skipped, got %+v", result)
	}
	if len(processor.batches) != 1 || len(processor.batches[0]) != 1 {
		t.Fatalf("expected only new tenders in the batch, got %+v", processor.batches)
	}
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(5, 1)},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pages != 1 || result.Imported != 0 {
		t.Fatalf("expected an empty single-page run, got %+v", result)
	}
	if len(reg.calls) != 1 {
		t.Fatalf("expected no further fetches after an empty page, got %d", len(reg.calls))
	}
}

func TestRunHonorsPageCeiling(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(10, 1, entry("ctrl-1"))},
			{page: pageOf(10, 2, entry("ctrl-2"))},
		},
	}
	engine := NewEngine(reg, newFakeStore(), tender.NewMapper(tender.DefaultClassifier()), &fakeProcessor{}, &fakePublisher{}, Options{
		PageSize:    100,
		PageCeiling: 2,
	})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pages != 2 {
		t.Fatalf("expected run capped at 2 pages, got %+v", result)
	}
}

func TestRunEndsEarlyWhenRateLimitPersists(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(3, 1, entry("ctrl-1"))},
			{err: registry.ErrRateLimited},
			{err: registry.ErrRateLimited},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("expected rate limit to end the run without error, got %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected the partial import to be kept, got %+v", result)
	}
	if len(reg.calls) != 3 {
		t.Fatalf("expected one backed-off reattempt and no further pages, got %d calls", len(reg.calls))
	}
}

func TestRunRecoversAfterRateLimitPause(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{err: registry.ErrRateLimited},
			{page: pageOf(1, 1, entry("ctrl-1"))},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected the reattempt to recover the page, got %+v", result)
	}
	if len(reg.calls) != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d", len(reg.calls))
	}
}

func TestRunSkipsPersistentlyFailingPage(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(3, 1, entry("ctrl-1"))},
			{err: registry.ErrUnavailable},
			{err: registry.ErrUnavailable},
			{err: registry.ErrUnavailable},
			{page: pageOf(3, 3, entry("ctrl-2"))},
		},
	}
	store := newFakeStore()
	engine := newTestEngine(reg, store, &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 2 || result.Failed != 1 || result.Pages != 2 {
		t.Fatalf("expected the broken page skipped and the rest imported, got %+v", result)
	}
	last := reg.calls[len(reg.calls)-1]
	if last.Page != 3 {
		t.Fatalf("expected the page after the broken one to be fetched, got page %d", last.Page)
	}
}

func TestRunRetriesUnavailableUpstream(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{err: registry.ErrUnavailable},
			{page: pageOf(1, 1, entry("ctrl-1"))},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected retry to recover the page, got %+v", result)
	}
	if len(reg.calls) != 2 {
		t.Fatalf("expected 2 fetch attempts, got %d", len(reg.calls))
	}
}

func TestRunCountsMalformedEntries(t *testing.T) {
	bad := entry("")
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(1, 1, entry("ctrl-1"), bad)},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Imported != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 imported 1 failed, got %+v", result)
	}
}

func TestRunRejectedWhileAnotherIsInFlight(t *testing.T) {
	gate := make(chan struct{})
	reg := &fakeRegistry{gate: gate}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = engine.RunScheduled(context.Background())
	}()

	// Wait until the first run holds the guard.
	deadline := time.After(2 * time.Second)
	for !engine.Status().IsRunning {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := engine.RunManual(context.Background(), models.ManualSyncRequest{}); !errors.Is(err, ErrSyncRunning) {
		t.Fatalf("expected ErrSyncRunning, got %v", err)
	}

	close(gate)
	<-done

	if engine.Status().IsRunning {
		t.Fatal("expected guard released after the run")
	}
	if engine.Status().LastRun == nil {
		t.Fatal("expected last run to be recorded")
	}
}

func TestRunManualValidatesWindow(t *testing.T) {
	engine := newTestEngine(&fakeRegistry{}, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	if _, err := engine.RunManual(context.Background(), models.ManualSyncRequest{StartDate: "20/08/2026"}); err == nil {
		t.Fatal("expected error for malformed start date")
	}
	if _, err := engine.RunManual(context.Background(), models.ManualSyncRequest{
		StartDate: "2026-08-20",
		EndDate:   "2026-08-10",
	}); err == nil {
		t.Fatal("expected error for inverted window")
	}
}

func TestRunManualUsesExplicitWindow(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(1, 1, entry("ctrl-1"))},
		},
	}
	engine := newTestEngine(reg, newFakeStore(), &fakeProcessor{}, &fakePublisher{})

	result, err := engine.RunManual(context.Background(), models.ManualSyncRequest{
		StartDate: "2026-08-01",
		EndDate:   "2026-08-15",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StartDate != "2026-08-01" || result.EndDate != "2026-08-15" {
		t.Fatalf("unexpected window: %+v", result)
	}
	if reg.calls[0].StartDate != "20260801" || reg.calls[0].EndDate != "20260815" {
		t.Fatalf("expected registry date format, got %+v", reg.calls[0])
	}
}

func TestEnrichmentStoredForNewTenders(t *testing.T) {
	reg := &fakeRegistry{
		responses: []listResponse{
			{page: pageOf(1, 1, entry("ctrl-1"))},
		},
		items: map[string][]registry.Item{
			"ctrl-1": {{NumeroItem: 1, DescricaoItem: "Notebook"}},
		},
	}
	store := newFakeStore()
	engine := newTestEngine(reg, store, &fakeProcessor{}, &fakePublisher{})

	if _, err := engine.RunScheduled(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.enrichment) != 1 {
		t.Fatalf("expected enrichment stored once, got %v", store.enrichment)
	}
}
