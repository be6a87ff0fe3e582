package alerts

import (
	"encoding/json"
	"fmt"

	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

// Condition is a threshold comparison operator.
type Condition string

const (
	CondGT  Condition = "gt"
	CondGTE Condition = "gte"
	CondLT  Condition = "lt"
	CondLTE Condition = "lte"
	CondEQ  Condition = "eq"
	CondNEQ Condition = "neq"
)

func (c Condition) valid() bool {
	switch c {
	case CondGT, CondGTE, CondLT, CondLTE, CondEQ, CondNEQ:
		return true
	}
	return false
}

// Compare applies the condition with value on the left: value <cond> threshold.
func (c Condition) Compare(value, threshold float64) bool {
	switch c {
	case CondGT:
		return value > threshold
	case CondGTE:
		return value >= threshold
	case CondLT:
		return value < threshold
	case CondLTE:
		return value <= threshold
	case CondEQ:
		return value == threshold
	case CondNEQ:
		return value != threshold
	}
	return false
}

// Config is the closed set of per-kind alert configurations. Each variant
// carries only the fields valid for its kind and validates itself
// exhaustively; an alert row stores the variant as JSON.
type Config interface {
	Kind() models.AlertType
	Validate() error
}

// ThresholdConfig triggers when the current aggregated metric value
// satisfies the condition against the threshold.
type ThresholdConfig struct {
	Metric    string    `json:"metric"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
}

func (c ThresholdConfig) Kind() models.AlertType { return models.AlertMetricThreshold }

func (c ThresholdConfig) Validate() error {
	if c.Metric == "" {
		return fmt.Errorf("threshold alert: metric is required")
	}
	if !c.Condition.valid() {
		return fmt.Errorf("threshold alert: invalid condition %q", c.Condition)
	}
	return nil
}

// TrendConfig triggers when the absolute trend against the comparison
// period exceeds ChangePercent.
type TrendConfig struct {
	Metric        string                 `json:"metric"`
	ChangePercent float64                `json:"change_percent"`
	Period        types.ComparisonPeriod `json:"period"`
}

func (c TrendConfig) Kind() models.AlertType { return models.AlertTrendDetection }

func (c TrendConfig) Validate() error {
	if c.Metric == "" {
		return fmt.Errorf("trend alert: metric is required")
	}
	if c.ChangePercent <= 0 {
		return fmt.Errorf("trend alert: change percent must be positive, got %v", c.ChangePercent)
	}
	switch c.Period {
	case types.CompareWeekOverWeek, types.CompareMonthOverMonth, types.CompareYearOverYear:
	default:
		return fmt.Errorf("trend alert: invalid period %q", c.Period)
	}
	return nil
}

// FreshnessConfig triggers when the latest upload is older than
// MaxHoursStale, or when no upload exists at all. PlatformID narrows the
// check to one platform; empty means every platform the client uploads for.
type FreshnessConfig struct {
	MaxHoursStale int    `json:"max_hours_stale"`
	PlatformID    string `json:"platform_id,omitempty"`
}

func (c FreshnessConfig) Kind() models.AlertType { return models.AlertDataFreshness }

func (c FreshnessConfig) Validate() error {
	if c.MaxHoursStale <= 0 {
		return fmt.Errorf("freshness alert: max hours stale must be positive, got %d", c.MaxHoursStale)
	}
	return nil
}

// ParseConfig decodes and validates the stored config for an alert kind.
// Unknown kinds and invalid configs are rejected with a human-readable
// reason and are never retried.
func ParseConfig(kind models.AlertType, raw string) (Config, error) {
	var cfg Config
	switch kind {
	case models.AlertMetricThreshold:
		var c ThresholdConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("threshold alert: bad config: %w", err)
		}
		cfg = c
	case models.AlertTrendDetection:
		var c TrendConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("trend alert: bad config: %w", err)
		}
		cfg = c
	case models.AlertDataFreshness:
		var c FreshnessConfig
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("freshness alert: bad config: %w", err)
		}
		cfg = c
	default:
		return nil, fmt.Errorf("unknown alert type %q", kind)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncodeConfig validates then serializes a config for storage.
func EncodeConfig(cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
