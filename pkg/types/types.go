package types

import "time"

// Row is a single uploaded data row for one platform. Uploads arrive as CSV
// and are stored as loosely-typed key/value pairs, so column sets differ
// between platforms and even between uploads of the same platform.
type Row map[string]interface{}

// PlatformData groups rows by the platform they were uploaded for,
// e.g. "google_ads" -> rows, "meta_ads" -> rows.
type PlatformData map[string][]Row

// ValueSource distinguishes a measured metric value from a simulated one.
type ValueSource string

const (
	SourceActual    ValueSource = "actual"
	SourceEstimated ValueSource = "estimated"
)

// MetricValue is a computed metric value tagged with where it came from.
// Estimated values are produced when no historical rows exist for a
// comparison window and must never be mistaken for measured data.
type MetricValue struct {
	Value  float64     `json:"value"`
	Source ValueSource `json:"source"`
}

// ComparisonPeriod names the historical window a trend is computed against.
type ComparisonPeriod string

const (
	CompareWeekOverWeek   ComparisonPeriod = "wow"
	CompareMonthOverMonth ComparisonPeriod = "mom"
	CompareYearOverYear   ComparisonPeriod = "yoy"
)

type FilterOp string

const (
	FilterEquals     FilterOp = "equals"
	FilterNotEquals  FilterOp = "not_equals"
	FilterContains   FilterOp = "contains"
	FilterStartsWith FilterOp = "starts_with"
)

// Filter is a single row predicate. Filters on the same request are
// AND-combined and matched case-insensitively.
type Filter struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value string   `json:"value"`
}

// DateRange is an inclusive [Start, End] window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type RangePreset string

const (
	RangeLast7Days  RangePreset = "last_7_days"
	RangeLast14Days RangePreset = "last_14_days"
	RangeLast30Days RangePreset = "last_30_days"
	RangeLast90Days RangePreset = "last_90_days"
	RangeThisMonth  RangePreset = "this_month"
	RangeLastMonth  RangePreset = "last_month"
	RangeThisYear   RangePreset = "this_year"
	RangeCustom     RangePreset = "custom"
)

// ChartGroup is one aggregated group of a bar/line chart: the dimension
// value plus the summed value of every requested metric.
type ChartGroup struct {
	Key     string             `json:"key"`
	Metrics map[string]float64 `json:"metrics"`
}

// PiePoint is a single slice of a pie chart.
type PiePoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type VisualizationType string

const (
	VizKPI  VisualizationType = "kpi"
	VizBar  VisualizationType = "bar"
	VizLine VisualizationType = "line"
	VizPie  VisualizationType = "pie"
)

// Visualization is one widget of a report. It is embedded in the report's
// visualization config, never persisted on its own, and re-evaluated against
// current platform data on every preview.
type Visualization struct {
	ID        string            `json:"id"`
	Type      VisualizationType `json:"type"`
	Title     string            `json:"title"`
	Metric    string            `json:"metric,omitempty"`
	Metrics   []string          `json:"metrics,omitempty"`
	Dimension string            `json:"dimension,omitempty"`
	Compare   ComparisonPeriod  `json:"compare,omitempty"`
	Filters   []Filter          `json:"filters,omitempty"`
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type DeliveryFormat string

const (
	FormatPDF   DeliveryFormat = "pdf"
	FormatImage DeliveryFormat = "image"
)
