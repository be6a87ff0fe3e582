package models

import (
	"time"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// Report is a client-owned marketing report. ScheduleConfigJSON holds the
// human schedule description (the source of truth for timing); the cron
// expression on the job row is derived from it.
type Report struct {
	ID                 string               `gorm:"primaryKey" json:"id"`
	ClientID           string               `gorm:"index" json:"client_id"`
	WarehouseID        string               `json:"warehouse_id"`
	Title              string               `json:"title"`
	VisualizationsJSON string               `json:"-"` // []types.Visualization
	ScheduleConfigJSON string               `json:"-"` // types.ScheduleConfig
	DateRangePreset    string               `json:"date_range_preset"`
	DateField          string               `json:"date_field"`
	DeliveryFormat     types.DeliveryFormat `json:"delivery_format"`
	RecipientsJSON     string               `json:"-"` // []string
	IsScheduled        bool                 `gorm:"index" json:"is_scheduled"`
	LastSentAt         *time.Time           `json:"last_sent_at,omitempty"`
	NextRunAt          *time.Time           `gorm:"index" json:"next_run_at,omitempty"`
	SendCount          int                  `json:"send_count"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// ScheduledJob is the persisted half of a timer-backed job. One row per
// report (or alert) with scheduling enabled. Unscheduling deactivates the
// row; it is never deleted on unschedule so history survives.
type ScheduledJob struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	JobType   types.JobType `gorm:"index:idx_job_entity" json:"job_type"`
	EntityID  string        `gorm:"index:idx_job_entity" json:"entity_id"`
	CronExpr  string        `json:"cron_expr"`
	Timezone  string        `json:"timezone"`
	IsActive  bool          `gorm:"index" json:"is_active"`
	LastRunAt *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt *time.Time    `json:"next_run_at,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// DeliveryHistory records one delivery attempt. The row is created pending
// before the send and finalized afterwards, so an interrupted process leaves
// an auditable trace rather than nothing.
type DeliveryHistory struct {
	ID             string               `gorm:"primaryKey" json:"id"`
	ReportID       string               `gorm:"index" json:"report_id"`
	DeliveryFormat types.DeliveryFormat `json:"delivery_format"`
	RecipientsJSON string               `json:"-"`
	Status         types.DeliveryStatus `gorm:"index" json:"status"`
	FileSize       int64                `json:"file_size,omitempty"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

type AlertType string

const (
	AlertMetricThreshold AlertType = "metric_threshold"
	AlertTrendDetection  AlertType = "trend_detection"
	AlertDataFreshness   AlertType = "data_freshness"
)

// Alert is a stored alert definition. ConfigJSON decodes into the variant
// matching AlertType; the variants live in internal/alerts and are validated
// at creation and on every config update.
type Alert struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	ClientID        string     `gorm:"index" json:"client_id"`
	ReportID        string     `gorm:"index" json:"report_id,omitempty"`
	KPIID           string     `json:"kpi_id,omitempty"`
	Name            string     `json:"name"`
	AlertType       AlertType  `json:"alert_type"`
	ConfigJSON      string     `json:"-"`
	RecipientsJSON  string     `json:"-"` // []string
	ChannelsJSON    string     `json:"-"` // []string: "email", "slack"
	Active          bool       `gorm:"index" json:"active"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AlertHistory is append-only: one row per triggering evaluation.
type AlertHistory struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	AlertID        string    `gorm:"index" json:"alert_id"`
	ActualValue    float64   `json:"actual_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Message        string    `json:"message"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// Upload is one uploaded batch of platform rows for a client. RowsJSON holds
// the parsed CSV rows ([]types.Row); the row schema varies per platform.
type Upload struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	ClientID   string    `gorm:"index:idx_upload_client_platform" json:"client_id"`
	PlatformID string    `gorm:"index:idx_upload_client_platform" json:"platform_id"`
	RowsJSON   string    `json:"-"`
	RowCount   int       `json:"row_count"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}
