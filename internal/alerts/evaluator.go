package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/adpulse/campaign-watcher/internal/metrics"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/notifications"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

// Store is the slice of the persistence layer the evaluator needs.
type Store interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	SaveAlert(ctx context.Context, alert *models.Alert) error
	CreateAlertHistory(ctx context.Context, record *models.AlertHistory) error
	LatestUpload(ctx context.Context, clientID, platformID string) (*models.Upload, error)
	PlatformsForClient(ctx context.Context, clientID string) ([]string, error)
	RowsForPlatform(ctx context.Context, clientID, platformID, dateField string, dateRange *types.DateRange) ([]types.Row, error)
}

// Notifier forwards a triggered alert to its channels.
type Notifier interface {
	NotifyAlert(ctx context.Context, n notifications.AlertNotification) map[string]error
}

// PlatformNamer resolves a platform id to its catalog display name. The
// platform catalog implements it; without one messages fall back to raw ids.
type PlatformNamer interface {
	DisplayName(platformID string) string
}

// Outcome is the structured result of one evaluation. Triggered is the
// trigger determination; NotifyErrs records channel delivery problems that
// did not affect it.
type Outcome struct {
	Triggered  bool
	Value      float64
	Threshold  float64
	Message    string
	Estimated  bool
	NotifyErrs map[string]error
}

type Evaluator struct {
	store    Store
	engine   *metrics.Engine
	notifier Notifier
	namer    PlatformNamer
	logger   *logrus.Logger
	now      func() time.Time
	newID    func() string
}

func NewEvaluator(store Store, engine *metrics.Engine, notifier Notifier, logger *logrus.Logger) *Evaluator {
	return &Evaluator{
		store:    store,
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetPlatformNamer attaches the platform catalog used for display names in
// freshness messages. Optional.
func (e *Evaluator) SetPlatformNamer(namer PlatformNamer) {
	e.namer = namer
}

func (e *Evaluator) platformLabel(platformID string) string {
	if e.namer == nil {
		return platformID
	}
	return e.namer.DisplayName(platformID)
}

// Evaluate runs one alert. LastEvaluatedAt is stamped whether or not the
// alert triggers. A positive trigger appends a history row, stamps
// LastTriggeredAt and forwards the notification; a notification failure is
// logged and reported in the outcome but never rolls the trigger back; the
// trigger is a fact even when delivery was not.
func (e *Evaluator) Evaluate(ctx context.Context, alert *models.Alert) (*Outcome, error) {
	cfg, err := ParseConfig(alert.AlertType, alert.ConfigJSON)
	if err != nil {
		return nil, err
	}

	now := e.now()
	alert.LastEvaluatedAt = &now

	outcome, evalErr := e.evaluate(ctx, alert, cfg)
	if evalErr != nil {
		// still persist the evaluation stamp before surfacing the error
		if saveErr := e.store.SaveAlert(ctx, alert); saveErr != nil {
			e.logger.WithError(saveErr).Warn("Failed to stamp alert evaluation time")
		}
		return nil, evalErr
	}

	if outcome.Triggered {
		alert.LastTriggeredAt = &now
	}
	if err := e.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("alert %s: save: %w", alert.ID, err)
	}

	if !outcome.Triggered {
		return outcome, nil
	}

	history := &models.AlertHistory{
		ID:             e.newID(),
		AlertID:        alert.ID,
		ActualValue:    outcome.Value,
		ThresholdValue: outcome.Threshold,
		Message:        outcome.Message,
		TriggeredAt:    now,
	}
	if err := e.store.CreateAlertHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("alert %s: history: %w", alert.ID, err)
	}

	if e.notifier != nil && len(alert.Channels()) > 0 {
		outcome.NotifyErrs = e.notifier.NotifyAlert(ctx, notifications.AlertNotification{
			AlertName:      alert.Name,
			AlertType:      string(alert.AlertType),
			Metric:         configMetric(cfg),
			ActualValue:    outcome.Value,
			ThresholdValue: outcome.Threshold,
			Message:        outcome.Message,
			Estimated:      outcome.Estimated,
			TriggeredAt:    now,
			Recipients:     alert.Recipients(),
			Channels:       alert.Channels(),
		})
		for channel, nerr := range outcome.NotifyErrs {
			e.logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"channel":  channel,
				"error":    nerr.Error(),
			}).Error("Alert notification failed")
		}
	}

	return outcome, nil
}

func (e *Evaluator) evaluate(ctx context.Context, alert *models.Alert, cfg Config) (*Outcome, error) {
	switch c := cfg.(type) {
	case ThresholdConfig:
		return e.evaluateThreshold(ctx, alert, c)
	case TrendConfig:
		return e.evaluateTrend(ctx, alert, c)
	case FreshnessConfig:
		return e.evaluateFreshness(ctx, alert, c)
	}
	return nil, fmt.Errorf("unknown alert config %T", cfg)
}

func (e *Evaluator) evaluateThreshold(ctx context.Context, alert *models.Alert, cfg ThresholdConfig) (*Outcome, error) {
	data, _, err := e.currentData(ctx, alert)
	if err != nil {
		return nil, err
	}

	value := e.engine.Value(cfg.Metric, data)
	triggered := cfg.Condition.Compare(value, cfg.Threshold)

	return &Outcome{
		Triggered: triggered,
		Value:     value,
		Threshold: cfg.Threshold,
		Message: fmt.Sprintf("%s is %.2f (%s %.2f)",
			cfg.Metric, value, cfg.Condition, cfg.Threshold),
	}, nil
}

func (e *Evaluator) evaluateTrend(ctx context.Context, alert *models.Alert, cfg TrendConfig) (*Outcome, error) {
	data, report, err := e.currentData(ctx, alert)
	if err != nil {
		return nil, err
	}

	current := e.engine.Value(cfg.Metric, data)
	previous, err := e.engine.PreviousValue(ctx, cfg.Metric, data, current, metrics.CompareOptions{
		Period:    cfg.Period,
		DateField: report.DateField,
		ClientID:  alert.ClientID,
	})
	if err != nil {
		return nil, err
	}

	trend := metrics.Trend(current, previous.Value)
	if trend == nil {
		// no baseline: trend is undefined, so nothing to alert on
		return &Outcome{
			Triggered: false,
			Value:     current,
			Threshold: cfg.ChangePercent,
			Message:   fmt.Sprintf("%s trend undefined, no comparison baseline", cfg.Metric),
		}, nil
	}

	change := *trend
	if change < 0 {
		change = -change
	}

	return &Outcome{
		Triggered: change > cfg.ChangePercent,
		Value:     *trend,
		Threshold: cfg.ChangePercent,
		Estimated: previous.Source == types.SourceEstimated,
		Message: fmt.Sprintf("%s changed %.1f%% %s (limit %.1f%%)",
			cfg.Metric, change, cfg.Period, cfg.ChangePercent),
	}, nil
}

func (e *Evaluator) evaluateFreshness(ctx context.Context, alert *models.Alert, cfg FreshnessConfig) (*Outcome, error) {
	platforms := []string{cfg.PlatformID}
	if cfg.PlatformID == "" {
		var err error
		platforms, err = e.store.PlatformsForClient(ctx, alert.ClientID)
		if err != nil {
			return nil, err
		}
		if len(platforms) == 0 {
			// a client with zero uploads is stale by definition
			return &Outcome{
				Triggered: true,
				Threshold: float64(cfg.MaxHoursStale),
				Message:   "no data has ever been uploaded",
			}, nil
		}
	}

	now := e.now()
	var stalest time.Duration
	var stalestPlatform string

	for _, platformID := range platforms {
		upload, err := e.store.LatestUpload(ctx, alert.ClientID, platformID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// never uploaded: triggers regardless of the limit
				return &Outcome{
					Triggered: true,
					Threshold: float64(cfg.MaxHoursStale),
					Message:   fmt.Sprintf("no uploads exist for platform %s", e.platformLabel(platformID)),
				}, nil
			}
			return nil, err
		}
		if age := now.Sub(upload.UploadedAt); age > stalest {
			stalest = age
			stalestPlatform = platformID
		}
	}

	staleHours := stalest.Hours()
	triggered := staleHours > float64(cfg.MaxHoursStale)

	return &Outcome{
		Triggered: triggered,
		Value:     staleHours,
		Threshold: float64(cfg.MaxHoursStale),
		Message: fmt.Sprintf("latest upload for %s is %.1f hours old (limit %d)",
			e.platformLabel(stalestPlatform), staleHours, cfg.MaxHoursStale),
	}, nil
}

// currentData loads the alert's report and the current-window rows for
// every platform the client uploads for.
func (e *Evaluator) currentData(ctx context.Context, alert *models.Alert) (types.PlatformData, *models.Report, error) {
	// KPI-bound alerts have no report; they evaluate over a default window.
	report := &models.Report{DateRangePreset: string(types.RangeLast30Days)}
	if alert.ReportID != "" {
		var err error
		report, err = e.store.GetReport(ctx, alert.ReportID)
		if err != nil {
			return nil, nil, fmt.Errorf("alert %s: %w", alert.ID, err)
		}
	}

	dateRange, err := metrics.ResolveDateRange(types.RangePreset(report.DateRangePreset), e.now(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("alert %s: %w", alert.ID, err)
	}

	platforms, err := e.store.PlatformsForClient(ctx, alert.ClientID)
	if err != nil {
		return nil, nil, err
	}

	data := make(types.PlatformData, len(platforms))
	for _, platformID := range platforms {
		rows, err := e.store.RowsForPlatform(ctx, alert.ClientID, platformID, report.DateField, &dateRange)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"platform": platformID,
				"error":    err.Error(),
			}).Warn("Platform rows unavailable, contributing zero")
			continue
		}
		data[platformID] = rows
	}

	return data, report, nil
}

func configMetric(cfg Config) string {
	switch c := cfg.(type) {
	case ThresholdConfig:
		return c.Metric
	case TrendConfig:
		return c.Metric
	case FreshnessConfig:
		return "data_freshness"
	}
	return ""
}
