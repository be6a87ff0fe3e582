package types

// Frequency is how often a scheduled report goes out.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ScheduleConfig is the human schedule description attached to a report.
// It is the source of truth; the cron expression on the job row is derived
// from it and can be recomputed at any time.
type ScheduleConfig struct {
	Frequency  Frequency `json:"frequency"`
	Time       string    `json:"time"`                   // "HH:MM", 24h
	DayOfWeek  string    `json:"day_of_week,omitempty"`  // weekly only
	DayOfMonth int       `json:"day_of_month,omitempty"` // monthly only
	Timezone   string    `json:"timezone,omitempty"`     // IANA name, default UTC
}
