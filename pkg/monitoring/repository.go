package monitoring

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("monitoring rule not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Rule{})
}

func (r *Repository) Create(ctx context.Context, rule *Rule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *Repository) Save(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Rule{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Rule, error) {
	var rule Rule
	result := r.db.WithContext(ctx).First(&rule, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rule, result.Error
}

func (r *Repository) FindByUser(ctx context.Context, userID string) ([]Rule, error) {
	var rules []Rule
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rules).Error
	return rules, err
}

// FindActive returns every rule eligible for evaluation.
func (r *Repository) FindActive(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Find(&rules).Error
	return rules, err
}

func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	result := r.db.WithContext(ctx).Model(&Rule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCounters applies counter deltas as an atomic in-database update
// so bursts of concurrent matches cannot lose increments.
func (r *Repository) IncrementCounters(ctx context.Context, id string, tendersFound, notificationsSent int) error {
	updates := map[string]interface{}{
		"total_tenders_found": gorm.Expr("total_tenders_found + ?", tendersFound),
		"updated_at":          time.Now().UTC(),
	}
	if notificationsSent > 0 {
		updates["total_notifications_sent"] = gorm.Expr("total_notifications_sent + ?", notificationsSent)
		updates["last_notification_at"] = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Model(&Rule{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// AppendRecentResults prepends the new matches to the rule's trailing list
// and evicts everything past the cap.
func (r *Repository) AppendRecentResults(ctx context.Context, id string, results []RecentResult) error {
	if len(results) == 0 {
		return nil
	}

	rule, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	merged := append([]RecentResult{}, results...)
	merged = append(merged, rule.RecentResults...)
	if len(merged) > recentResultsCap {
		merged = merged[:recentResultsCap]
	}

	return r.db.WithContext(ctx).Model(&Rule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"recent_results": datatypes.JSONSlice[RecentResult](merged),
			"updated_at":     time.Now().UTC(),
		}).Error
}

// Stats aggregates rule counts, optionally scoped to one owner.
func (r *Repository) Stats(ctx context.Context, userID string) (total, active int64, err error) {
	query := r.db.WithContext(ctx).Model(&Rule{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if err = query.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = query.Where("status = ?", StatusActive).Count(&active).Error; err != nil {
		return 0, 0, err
	}
	return total, active, nil
}
