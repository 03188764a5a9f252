package notification

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Notification{})
}

func (r *Repository) Create(ctx context.Context, n *Notification) error {
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) FindByID(ctx context.Context, id string) (*Notification, error) {
	var n Notification
	result := r.db.WithContext(ctx).First(&n, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &n, result.Error
}

func (r *Repository) FindByUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

func (r *Repository) CountPending(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ? AND status = ?", userID, StatusPending).
		Count(&count).Error
	return count, err
}

func (r *Repository) MarkSent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusSent,
			"sent_at":    now,
			"updated_at": now,
		}).Error
}

func (r *Repository) MarkDelivered(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       StatusDelivered,
			"delivered_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records the failure and the retry schedule computed by the
// caller; a nil nextRetryAt means the attempt is terminal.
func (r *Repository) MarkFailed(ctx context.Context, id, errMsg string, retryCount int, nextRetryAt *time.Time) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": errMsg,
			"retry_count":   retryCount,
			"next_retry_at": nextRetryAt,
			"failed_at":     now,
			"updated_at":    now,
		}).Error
}

func (r *Repository) MarkExpired(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     StatusExpired,
			"updated_at": time.Now().UTC(),
		}).Error
}

// FindDueRetries returns failed attempts whose backoff has elapsed and
// that are still inside their retry and expiry budget.
func (r *Repository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var notifications []Notification
	err := r.db.WithContext(ctx).
		Where("status = ?", StatusFailed).
		Where("retry_count < max_retries").
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", now).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// ExpireOverdue flips every non-terminal attempt past its expiry.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Notification{}).
		Where("status IN ?", []string{StatusPending, StatusFailed}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Updates(map[string]interface{}{
			"status":     StatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *Repository) StatsByUser(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&Notification{}).
		Select("status, COUNT(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, item := range rows {
		stats.Total += item.Count
		switch item.Status {
		case StatusSent:
			stats.Sent = item.Count
		case StatusDelivered:
			stats.Delivered = item.Count
		case StatusFailed:
			stats.Failed = item.Count
		case StatusPending:
			stats.Pending = item.Count
		}
	}
	return stats, nil
}
