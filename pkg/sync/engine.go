package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solutionhub/platform/pkg/common/httpclient"
	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/common/models"
	"github.com/solutionhub/platform/pkg/observability/metrics"
	"github.com/solutionhub/platform/pkg/registry"
	"github.com/solutionhub/platform/pkg/tender"
	"gorm.io/datatypes"
)

// ErrSyncRunning rejects a run while another is in flight. Overlapping
// runs would double-fetch pages and double-dispatch notifications.
var ErrSyncRunning = errors.New("sync already running")

const (
	// YYYYMMDD, the registry's query-parameter date format.
	registryDateLayout = "20060102"
	dateLayout         = "2006-01-02"
	listRetryAttempts  = 3
	listRetryBaseDelay = time.Second
)

// Registry is the upstream slice the engine consumes.
type Registry interface {
	ListByPublicationDate(ctx context.Context, params registry.SearchParams) (*registry.Page, error)
	TenderItems(ctx context.Context, controlNumber string) []registry.Item
	TenderDocuments(ctx context.Context, controlNumber string) []registry.Document
}

// Store persists mapped tenders.
type Store interface {
	Upsert(ctx context.Context, draft *tender.Tender) (bool, *tender.Tender, error)
	SetEnrichment(ctx context.Context, id string, items []tender.LineItem, docs []tender.DocumentRef) error
}

// BatchProcessor receives each run's newly imported tenders for rule
// evaluation once the page loop finishes.
type BatchProcessor interface {
	Process(ctx context.Context, batch []*tender.Tender) error
}

// EventPublisher announces completed runs on the tender topic.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Options tune one engine instance. Zero values fall back to the
// registry's operational limits.
type Options struct {
	PageSize         int
	PageCeiling      int
	PageDelay        time.Duration
	Lookback         time.Duration
	RateLimitBackoff time.Duration
}

func (o *Options) normalize() {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.PageCeiling <= 0 {
		o.PageCeiling = 50
	}
	if o.Lookback <= 0 {
		o.Lookback = 7 * 24 * time.Hour
	}
	if o.RateLimitBackoff <= 0 {
		o.RateLimitBackoff = 5 * time.Second
	}
}

// Engine drives incremental imports from the registry. Exactly one run
// may be in flight at a time; scheduled and manual triggers share the
// same guard.
type Engine struct {
	registry  Registry
	store     Store
	mapper    *tender.Mapper
	processor BatchProcessor
	producer  EventPublisher
	opts      Options

	running atomic.Bool

	mu      sync.RWMutex
	lastRun *models.SyncResult
}

func NewEngine(reg Registry, store Store, mapper *tender.Mapper, processor BatchProcessor, producer EventPublisher, opts Options) *Engine {
	opts.normalize()
	return &Engine{
		registry:  reg,
		store:     store,
		mapper:    mapper,
		processor: processor,
		producer:  producer,
		opts:      opts,
	}
}

// RunScheduled imports the trailing lookback window ending today. The
// window deliberately re-covers recent days so late upstream edits are
// picked up; the upsert makes re-imports idempotent.
func (e *Engine) RunScheduled(ctx context.Context) (*models.SyncResult, error) {
	end := time.Now().UTC()
	start := end.Add(-e.opts.Lookback)
	return e.run(ctx, start, end)
}

// RunManual imports an explicit window, defaulting each missing bound to
// the scheduled window's bound.
func (e *Engine) RunManual(ctx context.Context, req models.ManualSyncRequest) (*models.SyncResult, error) {
	end := time.Now().UTC()
	start := end.Add(-e.opts.Lookback)

	if req.StartDate != "" {
		parsed, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start_date %q: %w", req.StartDate, err)
		}
		start = parsed
	}
	if req.EndDate != "" {
		parsed, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date %q: %w", req.EndDate, err)
		}
		end = parsed
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_date %s precedes start_date %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	return e.run(ctx, start, end)
}

// Status reports whether a run is in flight and the last completed run.
func (e *Engine) Status() models.SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.SyncStatus{
		IsRunning: e.running.Load(),
		LastRun:   e.lastRun,
	}
}

func (e *Engine) run(ctx context.Context, start, end time.Time) (*models.SyncResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncRunning
	}
	defer e.running.Store(false)

	result := &models.SyncResult{
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		StartedAt: time.Now().UTC(),
	}
	log := logger.Log.WithFields(map[string]interface{}{
		"start_date": result.StartDate,
		"end_date":   result.EndDate,
	})
	log.Info("sync run started")

	batch, err := e.fetchWindow(ctx, start, end, result)
	result.EndedAt = time.Now().UTC()

	if err != nil {
		log.WithError(err).Error("sync run aborted")
		e.finish(result)
		return result, err
	}

	metrics.ObserveSyncRun(result.Imported, result.Skipped, result.Failed, result.Pages)
	e.announce(ctx, result)

	if len(batch) > 0 && e.processor != nil {
		if err := e.processor.Process(ctx, batch); err != nil {
			log.WithError(err).Error("failed to evaluate synced tenders")
		}
	}

	e.finish(result)
	log.WithFields(map[string]interface{}{
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"pages":    result.Pages,
		"duration": result.EndedAt.Sub(result.StartedAt).String(),
	}).Info("sync run finished")
	return result, nil
}

// fetchWindow walks the registry's pages for one date window. It stops on
// the first empty page, when the page counter passes the envelope's page
// total, or at the page ceiling. A page that stays unreachable is counted
// as failed and skipped so the pages behind it are still fetched; a rate
// limit gets one longer pause and a second attempt before the run ends
// early with whatever was already imported.
func (e *Engine) fetchWindow(ctx context.Context, start, end time.Time, result *models.SyncResult) ([]*tender.Tender, error) {
	var batch []*tender.Tender

	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}

		params := registry.SearchParams{
			StartDate: start.Format(registryDateLayout),
			EndDate:   end.Format(registryDateLayout),
			Page:      page,
			PageSize:  e.opts.PageSize,
		}

		current, err := e.fetchPage(ctx, params)
		if errors.Is(err, registry.ErrRateLimited) {
			logger.Log.WithField("page", page).Warn("registry rate limit reached, pausing before one more attempt")
			select {
			case <-time.After(e.opts.RateLimitBackoff):
			case <-ctx.Done():
				return batch, ctx.Err()
			}
			current, err = e.fetchPage(ctx, params)
			if errors.Is(err, registry.ErrRateLimited) {
				logger.Log.WithField("page", page).Warn("registry still rate limited, ending run early")
				return batch, nil
			}
		}
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
		if err != nil {
			// The broken page is skipped rather than aborting the run. The
			// miss shows up in the failure counter and the next run's
			// overlapping window re-covers it.
			result.Failed++
			logger.Log.WithError(err).WithField("page", page).Error("failed to fetch registry page, skipping")
			if page >= e.opts.PageCeiling {
				return batch, nil
			}
			if err := e.pause(ctx); err != nil {
				return batch, err
			}
			continue
		}

		result.Pages++
		if len(current.Data) == 0 {
			return batch, nil
		}

		for i := range current.Data {
			created := e.importEntry(ctx, current.Data[i], result)
			if created != nil {
				batch = append(batch, created)
			}
		}

		if page >= current.Meta.QuantidadePaginas {
			return batch, nil
		}
		if page >= e.opts.PageCeiling {
			logger.Log.WithFields(map[string]interface{}{
				"page_ceiling": e.opts.PageCeiling,
				"total_pages":  current.Meta.QuantidadePaginas,
			}).Warn("page ceiling reached, remaining pages deferred to the next run")
			return batch, nil
		}

		if err := e.pause(ctx); err != nil {
			return batch, err
		}
	}
}

// fetchPage retries transient unavailability in place; rate limits and
// decode failures surface to the page loop unchanged.
func (e *Engine) fetchPage(ctx context.Context, params registry.SearchParams) (*registry.Page, error) {
	var current *registry.Page
	var final error
	err := httpclient.Retry(ctx, listRetryAttempts, listRetryBaseDelay, func() error {
		page, listErr := e.registry.ListByPublicationDate(ctx, params)
		if listErr == nil {
			current = page
			return nil
		}
		if errors.Is(listErr, registry.ErrUnavailable) {
			return listErr
		}
		final = listErr
		return nil
	})
	if err == nil && final != nil {
		err = final
	}
	return current, err
}

func (e *Engine) pause(ctx context.Context) error {
	if e.opts.PageDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(e.opts.PageDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// importEntry maps and upserts one registry entry. It returns the stored
// tender only when the entry was new; refreshed records are counted as
// skipped and do not re-trigger rule evaluation.
func (e *Engine) importEntry(ctx context.Context, entry registry.Entry, result *models.SyncResult) *tender.Tender {
	draft, err := e.mapper.Map(entry)
	if err != nil {
		result.Failed++
		logger.Log.WithError(err).WithField("control_number", entry.NumeroControlePNCP).Warn("skipping malformed registry entry")
		return nil
	}

	created, stored, err := e.store.Upsert(ctx, draft)
	if err != nil {
		result.Failed++
		logger.Log.WithError(err).WithField("control_number", draft.ControlNumber).Error("failed to persist tender")
		return nil
	}
	if !created {
		result.Skipped++
		return nil
	}

	result.Imported++
	e.enrich(ctx, stored)
	return stored
}

// enrich fetches line items and documents for a newly imported tender.
// Both calls are tolerant upstream, so absence of detail is not an error.
func (e *Engine) enrich(ctx context.Context, t *tender.Tender) {
	rawItems := e.registry.TenderItems(ctx, t.ControlNumber)
	rawDocs := e.registry.TenderDocuments(ctx, t.ControlNumber)
	if len(rawItems) == 0 && len(rawDocs) == 0 {
		return
	}

	items := make([]tender.LineItem, 0, len(rawItems))
	for _, it := range rawItems {
		items = append(items, tender.LineItem{
			Number:      it.NumeroItem,
			Description: it.DescricaoItem,
			Unit:        it.UnidadeMedida,
			Quantity:    it.Quantidade,
			UnitValue:   it.ValorUnitarioEstimado,
			TotalValue:  it.ValorTotal,
		})
	}
	docs := make([]tender.DocumentRef, 0, len(rawDocs))
	for _, d := range rawDocs {
		docs = append(docs, tender.DocumentRef{
			Name:        d.Nome,
			Type:        d.Tipo,
			URL:         d.URL,
			Size:        d.Tamanho,
			PublishedAt: d.DataPublicacao,
		})
	}

	if err := e.store.SetEnrichment(ctx, t.ID, items, docs); err != nil {
		logger.Log.WithError(err).WithField("tender_id", t.ID).Warn("failed to store tender enrichment")
	}
	t.Items = datatypes.JSONSlice[tender.LineItem](items)
	t.Documents = datatypes.JSONSlice[tender.DocumentRef](docs)
}

func (e *Engine) announce(ctx context.Context, result *models.SyncResult) {
	if e.producer == nil {
		return
	}
	err := e.producer.PublishEvent(ctx, "tender.synced", "intelligence-service", map[string]interface{}{
		"imported":   result.Imported,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
		"pages":      result.Pages,
		"start_date": result.StartDate,
		"end_date":   result.EndDate,
	})
	if err != nil {
		logger.Log.WithError(err).Warn("failed to publish sync event")
	}
}

func (e *Engine) finish(result *models.SyncResult) {
	e.mu.Lock()
	e.lastRun = result
	e.mu.Unlock()
}
