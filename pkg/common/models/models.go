package models

import (
	"time"
)

// Event is the envelope used on every Kafka topic the platform owns.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // tender.synced, notification.dispatch, notification.retry
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// SyncResult summarizes one sync run. It is returned to the caller and
// logged; it is never persisted.
type SyncResult struct {
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Pages     int       `json:"pages"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// SyncStatus is the read-only view exposed over HTTP.
type SyncStatus struct {
	IsRunning bool        `json:"is_running"`
	LastRun   *SyncResult `json:"last_run,omitempty"`
}

// ManualSyncRequest triggers a sync over an explicit window. Dates are
// calendar days in YYYY-MM-DD; both optional, defaulting to the lookback
// window.
type ManualSyncRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// DispatchRequest is the typed payload handed to the delivery collaborator
// over the notification topic. The collaborator owns actual transport.
type DispatchRequest struct {
	NotificationID string   `json:"notification_id"`
	RuleID         string   `json:"rule_id"`
	UserID         string   `json:"user_id"`
	Channel        string   `json:"channel"`
	Title          string   `json:"title"`
	Message        string   `json:"message"`
	TenderIDs      []string `json:"tender_ids"`
	RetryCount     int      `json:"retry_count"`
}

// Payload flattens the request into the event envelope's data map.
func (r DispatchRequest) Payload() map[string]interface{} {
	return map[string]interface{}{
		"notification_id": r.NotificationID,
		"rule_id":         r.RuleID,
		"user_id":         r.UserID,
		"channel":         r.Channel,
		"title":           r.Title,
		"message":         r.Message,
		"tender_ids":      r.TenderIDs,
		"retry_count":     r.RetryCount,
	}
}
