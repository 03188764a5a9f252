package notification

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const CategoryTenderAlert = "tender_alert"

// Notification is one outbound delivery attempt on one channel. The
// delivery collaborator owns transport; this row tracks the state machine
// pending -> sent -> delivered, with failed attempts rescheduled until
// delivered, expired, or out of retries.
type Notification struct {
	ID       string `json:"id" gorm:"primaryKey;column:id"`
	UserID   string `json:"user_id" gorm:"column:user_id;index:idx_notifications_user_status"`
	RuleID   string `json:"rule_id,omitempty" gorm:"column:rule_id;index"`
	Channel  string `json:"channel" gorm:"column:channel"`
	Category string `json:"category" gorm:"column:category"`
	Priority string `json:"priority" gorm:"column:priority"`
	Status   string `json:"status" gorm:"column:status;index:idx_notifications_user_status;index:idx_notifications_retry"`

	Title   string `json:"title" gorm:"column:title"`
	Message string `json:"message" gorm:"column:message;type:text"`

	Data datatypes.JSONMap `json:"data,omitempty" gorm:"column:data"`

	RetryCount  int        `json:"retry_count" gorm:"column:retry_count"`
	MaxRetries  int        `json:"max_retries" gorm:"column:max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" gorm:"column:next_retry_at;index:idx_notifications_retry"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`

	SentAt      *time.Time `json:"sent_at,omitempty" gorm:"column:sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" gorm:"column:failed_at"`

	ErrorMessage string `json:"error_message,omitempty" gorm:"column:error_message;type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// CanRetry reports whether a failed attempt may be resubmitted.
func (n *Notification) CanRetry(now time.Time) bool {
	return n.Status == StatusFailed &&
		n.RetryCount < n.MaxRetries &&
		!n.IsExpired(now)
}

// NextRetryDelay grows exponentially with the retry count: 2^retryCount
// minutes, so repeated transient failures space out geometrically.
func (n *Notification) NextRetryDelay() time.Duration {
	return time.Duration(math.Pow(2, float64(n.RetryCount))) * time.Minute
}

// Stats is the aggregate delivery view per user.
type Stats struct {
	Total     int64 `json:"total"`
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}
