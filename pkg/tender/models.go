package tender

import (
	"time"

	"gorm.io/datatypes"
)

// Tender is one public-procurement announcement mirrored from the registry.
// The registry control number is the natural key: re-ingesting the same
// control number updates the existing row, it never duplicates.
//
// Status and modality are stored as the registry's own free-text labels.
// The upstream vocabulary grows over time, so binding storage to a closed
// enum would silently drop records; the classified tags are a separate,
// replaceable layer (see Classifier).
type Tender struct {
	ID            string `json:"id" gorm:"primaryKey;column:id"`
	ControlNumber string `json:"control_number" gorm:"column:control_number;uniqueIndex"`
	SourceLink    string `json:"source_link" gorm:"column:source_link"`

	Title         string `json:"title" gorm:"column:title;type:text"`
	Description   string `json:"description" gorm:"column:description;type:text"`
	Observations  string `json:"observations,omitempty" gorm:"column:observations;type:text"`
	PurchaseNum   string `json:"purchase_number,omitempty" gorm:"column:purchase_number"`
	ProcessNum    string `json:"process_number,omitempty" gorm:"column:process_number"`
	InstrumentTyp string `json:"instrument_type,omitempty" gorm:"column:instrument_type"`

	ModalityCode  int    `json:"modality_code,omitempty" gorm:"column:modality_code"`
	ModalityLabel string `json:"modality_label" gorm:"column:modality_label;index"`
	ModalityTag   string `json:"modality_tag,omitempty" gorm:"column:modality_tag"`
	DisputeMode   string `json:"dispute_mode,omitempty" gorm:"column:dispute_mode"`

	EstimatedValue   float64 `json:"estimated_value" gorm:"column:estimated_value;index"`
	HomologatedValue float64 `json:"homologated_value,omitempty" gorm:"column:homologated_value"`

	StatusCode  int    `json:"status_code,omitempty" gorm:"column:status_code"`
	StatusLabel string `json:"status_label" gorm:"column:status_label;index"`
	StatusTag   string `json:"status_tag,omitempty" gorm:"column:status_tag"`

	PublishedAt time.Time  `json:"published_at" gorm:"column:published_at;index"`
	OpeningAt   *time.Time `json:"opening_at,omitempty" gorm:"column:opening_at"`
	ClosingAt   *time.Time `json:"closing_at,omitempty" gorm:"column:closing_at"`

	OrgCNPJ       string `json:"org_cnpj" gorm:"column:org_cnpj;index"`
	OrgName       string `json:"org_name" gorm:"column:org_name"`
	OrgPower      string `json:"org_power,omitempty" gorm:"column:org_power"`
	OrgSphere     string `json:"org_sphere,omitempty" gorm:"column:org_sphere"`
	UnitCode      string `json:"unit_code,omitempty" gorm:"column:unit_code"`
	UnitName      string `json:"unit_name,omitempty" gorm:"column:unit_name"`
	UnitState     string `json:"unit_state,omitempty" gorm:"column:unit_state;index"`
	UnitStateName string `json:"unit_state_name,omitempty" gorm:"column:unit_state_name"`
	UnitCity      string `json:"unit_city,omitempty" gorm:"column:unit_city"`
	UnitIBGECode  string `json:"unit_ibge_code,omitempty" gorm:"column:unit_ibge_code"`

	PriceRegistry bool   `json:"price_registry" gorm:"column:price_registry"`
	Emergency     bool   `json:"emergency" gorm:"column:emergency"`
	LinkedTender  string `json:"linked_tender,omitempty" gorm:"column:linked_tender"`

	IsMonitored    bool    `json:"is_monitored" gorm:"column:is_monitored"`
	IsOpportunity  bool    `json:"is_opportunity" gorm:"column:is_opportunity"`
	RelevanceScore float64 `json:"relevance_score" gorm:"column:relevance_score"`
	AssignedUserID string  `json:"assigned_user_id,omitempty" gorm:"column:assigned_user_id"`

	Items     datatypes.JSONSlice[LineItem]    `json:"items,omitempty" gorm:"column:items"`
	Documents datatypes.JSONSlice[DocumentRef] `json:"documents,omitempty" gorm:"column:documents"`

	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty" gorm:"column:last_sync_at"`
}

func (Tender) TableName() string {
	return "tenders"
}

// SearchText concatenates the fields keyword matching runs over.
func (t *Tender) SearchText() string {
	return t.Title + " " + t.Description + " " + t.Observations
}

type LineItem struct {
	Number      int     `json:"number"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitValue   float64 `json:"unit_value"`
	TotalValue  float64 `json:"total_value"`
}

type DocumentRef struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Size        int64  `json:"size,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// DashboardStats is the aggregate view served to the dashboard, cached in
// Redis for a few minutes.
type DashboardStats struct {
	TotalTenders     int64   `json:"total_tenders"`
	OpenTenders      int64   `json:"open_tenders"`
	MonitoredTenders int64   `json:"monitored_tenders"`
	Opportunities    int64   `json:"opportunities"`
	TotalValue       float64 `json:"total_value"`
	TendersThisMonth int64   `json:"tenders_this_month"`
}
