package types

import "time"

// JobType is the closed set of work a scheduled job can carry. Adding a kind
// means touching every switch over JobType, which is exactly the point.
type JobType string

const (
	JobReportDelivery  JobType = "report_delivery"
	JobAlertEvaluation JobType = "alert_evaluation"
)

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case JobReportDelivery, JobAlertEvaluation:
		return true
	}
	return false
}

// JobStatus is the externally visible state of one scheduled job.
type JobStatus struct {
	ID        string     `json:"id"`
	Type      JobType    `json:"type"`
	EntityID  string     `json:"entity_id"`
	CronExpr  string     `json:"cron_expr"`
	Timezone  string     `json:"timezone"`
	Active    bool       `json:"active"`
	Scheduled bool       `json:"scheduled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}
