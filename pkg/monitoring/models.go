package monitoring

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusStopped = "stopped"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelPush     = "push"
	ChannelInApp    = "in_app"
)

// recentResultsCap bounds the trailing match list stored on a rule; oldest
// entries are evicted first.
const recentResultsCap = 10

// OrgFilters constrains which organizations a rule cares about. CNPJs,
// municipalities and states are allow-lists; ExcludeCNPJs is a deny-list.
type OrgFilters struct {
	CNPJs          []string `json:"cnpjs,omitempty"`
	Municipalities []string `json:"municipalities,omitempty"`
	States         []string `json:"states,omitempty"`
	ExcludeCNPJs   []string `json:"exclude_cnpjs,omitempty"`
}

func (f OrgFilters) Empty() bool {
	return len(f.CNPJs) == 0 && len(f.Municipalities) == 0 &&
		len(f.States) == 0 && len(f.ExcludeCNPJs) == 0
}

// ValueFilters bounds the estimated value; a nil bound is open-ended and
// both bounds are inclusive.
type ValueFilters struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (f ValueFilters) Empty() bool {
	return f.Min == nil && f.Max == nil
}

// RecentResult is one entry of the bounded trailing match list.
type RecentResult struct {
	TenderID     string    `json:"tender_id"`
	Title        string    `json:"title"`
	Organization string    `json:"organization"`
	Value        float64   `json:"value"`
	Score        int       `json:"score"`
	FoundAt      time.Time `json:"found_at"`
}

// Rule is a persisted, user-owned monitoring specification evaluated
// against every newly synced tender while its status is active.
type Rule struct {
	ID          string `json:"id" gorm:"primaryKey;column:id"`
	Name        string `json:"name" gorm:"column:name"`
	Description string `json:"description,omitempty" gorm:"column:description;type:text"`
	UserID      string `json:"user_id" gorm:"column:user_id;index:idx_rules_user_status"`
	Status      string `json:"status" gorm:"column:status;index:idx_rules_user_status"`

	Keywords        datatypes.JSONSlice[string]       `json:"keywords" gorm:"column:keywords"`
	OrgFilters      datatypes.JSONType[OrgFilters]    `json:"org_filters" gorm:"column:org_filters"`
	ValueFilters    datatypes.JSONType[ValueFilters]  `json:"value_filters" gorm:"column:value_filters"`
	TypeFilters     datatypes.JSONSlice[string]       `json:"type_filters" gorm:"column:type_filters"`
	CategoryFilters datatypes.JSONSlice[string]       `json:"category_filters" gorm:"column:category_filters"`

	Channels datatypes.JSONSlice[string] `json:"channels" gorm:"column:channels"`

	// Notification window; nil/empty fields mean "always allowed".
	// Hours are [start, end) in the scheduler's local time.
	NotifyStartHour *int                        `json:"notify_start_hour,omitempty" gorm:"column:notify_start_hour"`
	NotifyEndHour   *int                        `json:"notify_end_hour,omitempty" gorm:"column:notify_end_hour"`
	NotifyDays      datatypes.JSONSlice[string] `json:"notify_days,omitempty" gorm:"column:notify_days"`

	TotalTendersFound      int        `json:"total_tenders_found" gorm:"column:total_tenders_found"`
	TotalNotificationsSent int        `json:"total_notifications_sent" gorm:"column:total_notifications_sent"`
	LastNotificationAt     *time.Time `json:"last_notification_at,omitempty" gorm:"column:last_notification_at"`

	RecentResults datatypes.JSONSlice[RecentResult] `json:"recent_results,omitempty" gorm:"column:recent_results"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Rule) TableName() string {
	return "monitoring_rules"
}

// HasAnyFilter reports whether at least one filter category is configured.
// A rule with no filters at all is ineligible for matching: vacuous truth
// across every category would match the entire registry, which is never
// what a rule owner meant.
func (r *Rule) HasAnyFilter() bool {
	return len(r.Keywords) > 0 ||
		!r.OrgFilters.Data().Empty() ||
		!r.ValueFilters.Data().Empty() ||
		len(r.TypeFilters) > 0 ||
		len(r.CategoryFilters) > 0
}
