package tender

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("tender not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Tender{})
}

func (r *Repository) FindByControlNumber(ctx context.Context, controlNumber string) (*Tender, error) {
	var t Tender
	result := r.db.WithContext(ctx).First(&t, "control_number = ?", controlNumber)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &t, result.Error
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Tender, error) {
	var t Tender
	result := r.db.WithContext(ctx).First(&t, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &t, result.Error
}

// Upsert inserts the draft when its control number is new and otherwise
// refreshes the existing row's mutable fields and last_sync_at. The
// returned flag reports whether a new row was created. All writers compute
// full field sets from the same upstream, so last-write-wins on non-key
// fields is acceptable.
func (r *Repository) Upsert(ctx context.Context, draft *Tender) (bool, *Tender, error) {
	now := time.Now().UTC()

	existing, err := r.FindByControlNumber(ctx, draft.ControlNumber)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, nil, err
	}

	if existing == nil {
		draft.CreatedAt = now
		draft.UpdatedAt = now
		draft.LastSyncAt = &now
		if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
			return false, nil, err
		}
		return true, draft, nil
	}

	updates := map[string]interface{}{
		"source_link":       draft.SourceLink,
		"title":             draft.Title,
		"description":       draft.Description,
		"purchase_number":   draft.PurchaseNum,
		"process_number":    draft.ProcessNum,
		"instrument_type":   draft.InstrumentTyp,
		"modality_code":     draft.ModalityCode,
		"modality_label":    draft.ModalityLabel,
		"modality_tag":      draft.ModalityTag,
		"dispute_mode":      draft.DisputeMode,
		"estimated_value":   draft.EstimatedValue,
		"homologated_value": draft.HomologatedValue,
		"status_code":       draft.StatusCode,
		"status_label":      draft.StatusLabel,
		"status_tag":        draft.StatusTag,
		"published_at":      draft.PublishedAt,
		"opening_at":        draft.OpeningAt,
		"closing_at":        draft.ClosingAt,
		"price_registry":    draft.PriceRegistry,
		"emergency":         draft.Emergency,
		"linked_tender":     draft.LinkedTender,
		"updated_at":        now,
		"last_sync_at":      now,
	}

	if err := r.db.WithContext(ctx).Model(&Tender{}).
		Where("control_number = ?", draft.ControlNumber).
		Updates(updates).Error; err != nil {
		return false, nil, err
	}

	refreshed, err := r.FindByControlNumber(ctx, draft.ControlNumber)
	return false, refreshed, err
}

// SetEnrichment attaches opportunistically fetched line items and documents.
func (r *Repository) SetEnrichment(ctx context.Context, id string, items []LineItem, docs []DocumentRef) error {
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if len(items) > 0 {
		updates["items"] = datatypes.JSONSlice[LineItem](items)
	}
	if len(docs) > 0 {
		updates["documents"] = datatypes.JSONSlice[DocumentRef](docs)
	}
	if len(updates) == 1 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Tender{}).Where("id = ?", id).Updates(updates).Error
}

func (r *Repository) MarkOpportunity(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).Model(&Tender{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_opportunity":   true,
			"assigned_user_id": userID,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetMonitored(ctx context.Context, id string, score float64) error {
	return r.db.WithContext(ctx).Model(&Tender{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_monitored":    true,
			"relevance_score": score,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// SearchFilter narrows the stored tenders; zero values mean no constraint.
type SearchFilter struct {
	Query         string
	StatusTag     string
	ModalityTag   string
	State         string
	OrgCNPJ       string
	MinValue      float64
	MaxValue      float64
	PublishedFrom *time.Time
	PublishedTo   *time.Time
	IsMonitored   *bool
	IsOpportunity *bool
	Page          int
	PageSize      int
}

func (r *Repository) Search(ctx context.Context, filter SearchFilter) ([]Tender, int64, error) {
	query := r.db.WithContext(ctx).Model(&Tender{})

	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}
	if filter.StatusTag != "" {
		query = query.Where("status_tag = ?", filter.StatusTag)
	}
	if filter.ModalityTag != "" {
		query = query.Where("modality_tag = ?", filter.ModalityTag)
	}
	if filter.State != "" {
		query = query.Where("unit_state = ?", filter.State)
	}
	if filter.OrgCNPJ != "" {
		query = query.Where("org_cnpj = ?", filter.OrgCNPJ)
	}
	if filter.MinValue > 0 {
		query = query.Where("estimated_value >= ?", filter.MinValue)
	}
	if filter.MaxValue > 0 {
		query = query.Where("estimated_value <= ?", filter.MaxValue)
	}
	if filter.PublishedFrom != nil {
		query = query.Where("published_at >= ?", *filter.PublishedFrom)
	}
	if filter.PublishedTo != nil {
		query = query.Where("published_at <= ?", *filter.PublishedTo)
	}
	if filter.IsMonitored != nil {
		query = query.Where("is_monitored = ?", *filter.IsMonitored)
	}
	if filter.IsOpportunity != nil {
		query = query.Where("is_opportunity = ?", *filter.IsOpportunity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var tenders []Tender
	err := query.Order("published_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tenders).Error

	return tenders, total, err
}

func (r *Repository) Stats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	db := r.db.WithContext(ctx).Model(&Tender{})

	if err := db.Count(&stats.TotalTenders).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&Tender{}).Where("status_tag = ?", "open").Count(&stats.OpenTenders).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&Tender{}).Where("is_monitored = ?", true).Count(&stats.MonitoredTenders).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&Tender{}).Where("is_opportunity = ?", true).Count(&stats.Opportunities).Error; err != nil {
		return nil, err
	}

	var totalValue struct{ Total float64 }
	if err := r.db.WithContext(ctx).Model(&Tender{}).
		Select("COALESCE(SUM(estimated_value), 0) as total").
		Scan(&totalValue).Error; err != nil {
		return nil, err
	}
	stats.TotalValue = totalValue.Total

	monthStart := time.Date(time.Now().Year(), time.Now().Month(), 1, 0, 0, 0, 0, time.UTC)
	if err := r.db.WithContext(ctx).Model(&Tender{}).
		Where("published_at >= ?", monthStart).
		Count(&stats.TendersThisMonth).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
