// Package reports evaluates report visualizations against uploaded platform
// data and delivers the rendered result to the report's recipients. Delivery
// touches several tables on a store without transactions, so every
// multi-write operation runs as a compensating transaction.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/adpulse/campaign-watcher/internal/metrics"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/notifications"
	"github.com/adpulse/campaign-watcher/internal/retry"
	"github.com/adpulse/campaign-watcher/internal/saga"
	"github.com/adpulse/campaign-watcher/internal/schedule"
	"github.com/adpulse/campaign-watcher/pkg/types"
	"github.com/adpulse/campaign-watcher/pkg/utils"
)

// Store is the slice of the persistence layer the orchestrator needs.
type Store interface {
	SaveReport(ctx context.Context, report *models.Report) error
	CreateDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error
	SaveDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error
	PlatformsForClient(ctx context.Context, clientID string) ([]string, error)
	RowsForPlatform(ctx context.Context, clientID, platformID, dateField string, dateRange *types.DateRange) ([]types.Row, error)
}

// Timers registers and deactivates the timer half of a scheduled report.
// The scheduler implements it; the orchestrator stays ignorant of cron
// internals beyond the expression it derives from the schedule config.
type Timers interface {
	UpsertJob(ctx context.Context, jobType types.JobType, entityID, cronExpr, timezone string) (*models.ScheduledJob, error)
	RemoveJobByEntity(ctx context.Context, jobType types.JobType, entityID string) error
}

// WidgetResult is one evaluated visualization. KPI widgets carry a value and
// optionally a comparison; chart widgets carry grouped data instead.
type WidgetResult struct {
	ID       string                  `json:"id"`
	Type     types.VisualizationType `json:"type"`
	Title    string                  `json:"title"`
	Metric   string                  `json:"metric,omitempty"`
	Value    *float64                `json:"value,omitempty"`
	Previous *types.MetricValue      `json:"previous,omitempty"`
	Trend    *float64                `json:"trend,omitempty"`
	Groups   []types.ChartGroup      `json:"groups,omitempty"`
	Points   []types.PiePoint        `json:"points,omitempty"`
}

// Preview is a report evaluated against the current data window.
type Preview struct {
	ReportID    string          `json:"report_id"`
	Title       string          `json:"title"`
	DateRange   types.DateRange `json:"date_range"`
	GeneratedAt time.Time       `json:"generated_at"`
	Widgets     []WidgetResult  `json:"widgets"`
}

// Rendered is a delivery payload produced from a preview.
type Rendered struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Renderer turns a preview into an attachable payload.
type Renderer interface {
	Render(ctx context.Context, report *models.Report, preview *Preview) (*Rendered, error)
}

type Orchestrator struct {
	store     Store
	engine    *metrics.Engine
	mailer    notifications.Mailer
	renderer  Renderer
	timers    Timers
	runner    *saga.Runner
	retryOpts retry.Options
	logger    *logrus.Logger
	now       func() time.Time
	newID     func() string
}

func NewOrchestrator(store Store, engine *metrics.Engine, mailer notifications.Mailer, renderer Renderer, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		store:     store,
		engine:    engine,
		mailer:    mailer,
		renderer:  renderer,
		runner:    saga.NewRunner(logger),
		retryOpts: retry.DefaultOptions(),
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// BindTimers attaches the timer registry. The scheduler is constructed after
// the orchestrator because it dispatches deliveries back into it, so the
// registry arrives late.
func (o *Orchestrator) BindTimers(t Timers) {
	o.timers = t
}

// BuildPreview evaluates every visualization of the report against the
// current data window. Chart widgets without an explicit metric list fall
// back to the single metric field.
func (o *Orchestrator) BuildPreview(ctx context.Context, report *models.Report) (*Preview, error) {
	dateRange, err := metrics.ResolveDateRange(types.RangePreset(report.DateRangePreset), o.now(), nil)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", report.ID, err)
	}

	data, err := o.loadData(ctx, report, dateRange)
	if err != nil {
		return nil, err
	}

	vizs, err := report.Visualizations()
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		ReportID:    report.ID,
		Title:       report.Title,
		DateRange:   dateRange,
		GeneratedAt: o.now(),
		Widgets:     make([]WidgetResult, 0, len(vizs)),
	}

	for _, viz := range vizs {
		widget, err := o.evaluateWidget(ctx, report, viz, data)
		if err != nil {
			return nil, fmt.Errorf("report %s: widget %s: %w", report.ID, viz.ID, err)
		}
		preview.Widgets = append(preview.Widgets, *widget)
	}

	return preview, nil
}

func (o *Orchestrator) evaluateWidget(ctx context.Context, report *models.Report, viz types.Visualization, data types.PlatformData) (*WidgetResult, error) {
	filtered := metrics.ApplyFilters(data, viz.Filters)

	widget := &WidgetResult{
		ID:     viz.ID,
		Type:   viz.Type,
		Title:  viz.Title,
		Metric: viz.Metric,
	}

	switch viz.Type {
	case types.VizKPI:
		value := o.engine.Value(viz.Metric, filtered)
		widget.Value = &value
		if viz.Compare != "" {
			previous, err := o.engine.PreviousValue(ctx, viz.Metric, filtered, value, metrics.CompareOptions{
				Period:    viz.Compare,
				DateField: report.DateField,
				ClientID:  report.ClientID,
			})
			if err != nil {
				return nil, err
			}
			widget.Previous = &previous
			widget.Trend = metrics.Trend(value, previous.Value)
		}
	case types.VizBar, types.VizLine:
		widget.Groups = metrics.ChartData(filtered, viz.Dimension, chartMetrics(viz))
	case types.VizPie:
		widget.Points = metrics.PiePoints(filtered, viz.Dimension, chartMetrics(viz))
	default:
		return nil, fmt.Errorf("unknown visualization type %q", viz.Type)
	}

	return widget, nil
}

func chartMetrics(viz types.Visualization) []string {
	if len(viz.Metrics) > 0 {
		return viz.Metrics
	}
	if viz.Metric != "" {
		return []string{viz.Metric}
	}
	return nil
}

func (o *Orchestrator) loadData(ctx context.Context, report *models.Report, dateRange types.DateRange) (types.PlatformData, error) {
	platforms, err := o.store.PlatformsForClient(ctx, report.ClientID)
	if err != nil {
		return nil, err
	}

	data := make(types.PlatformData, len(platforms))
	for _, platformID := range platforms {
		rows, err := o.store.RowsForPlatform(ctx, report.ClientID, platformID, report.DateField, &dateRange)
		if err != nil {
			o.logger.WithFields(logrus.Fields{
				"report_id": report.ID,
				"platform":  platformID,
				"error":     err.Error(),
			}).Warn("Platform rows unavailable, contributing zero")
			continue
		}
		data[platformID] = rows
	}
	return data, nil
}

// Deliver runs one report delivery as a compensating transaction: record a
// pending history row, render the preview, send the mail with retries, then
// finalize history and bump the report's delivery bookkeeping. A failure
// after the pending row exists finalizes that row as failed rather than
// deleting it; an attempted delivery stays on the record.
func (o *Orchestrator) Deliver(ctx context.Context, report *models.Report) (*models.DeliveryHistory, error) {
	if o.mailer == nil {
		return nil, fmt.Errorf("report %s: mailer not configured", report.ID)
	}
	recipients := report.Recipients()
	if len(recipients) == 0 {
		return nil, fmt.Errorf("report %s: no recipients", report.ID)
	}

	var history *models.DeliveryHistory
	var stepErr error

	steps := []saga.Step{
		{
			Name: "record_attempt",
			Execute: func(prior []interface{}) (interface{}, error) {
				history = &models.DeliveryHistory{
					ID:             o.newID(),
					ReportID:       report.ID,
					DeliveryFormat: report.DeliveryFormat,
					Status:         types.DeliveryPending,
					CreatedAt:      o.now(),
				}
				history.SetRecipients(recipients)
				if err := o.store.CreateDeliveryHistory(ctx, history); err != nil {
					return nil, err
				}
				return history, nil
			},
			Rollback: func(own interface{}) error {
				record := own.(*models.DeliveryHistory)
				record.Status = types.DeliveryFailed
				if stepErr != nil {
					record.ErrorMessage = stepErr.Error()
				}
				record.UpdatedAt = o.now()
				return o.store.SaveDeliveryHistory(ctx, record)
			},
		},
		{
			Name: "render",
			Execute: func(prior []interface{}) (interface{}, error) {
				preview, err := o.BuildPreview(ctx, report)
				if err != nil {
					stepErr = err
					return nil, err
				}
				rendered, err := o.renderer.Render(ctx, report, preview)
				if err != nil {
					stepErr = err
					return nil, err
				}
				return rendered, nil
			},
		},
		{
			Name: "send",
			Execute: func(prior []interface{}) (interface{}, error) {
				rendered := prior[1].(*Rendered)
				result, err := retry.Do(ctx, func() (*notifications.SendResult, error) {
					return o.mailer.Send(ctx, notifications.Message{
						To:             recipients,
						Subject:        fmt.Sprintf("Scheduled Report: %s", report.Title),
						Body:           fmt.Sprintf("Your report %q for %s is attached.", report.Title, o.now().Format("January 2, 2006")),
						AttachmentName: rendered.Filename,
						Attachment:     rendered.Data,
					})
				}, o.retryOpts)
				if err != nil {
					stepErr = err
					return nil, err
				}
				return result, nil
			},
		},
		{
			Name: "finalize",
			Execute: func(prior []interface{}) (interface{}, error) {
				rendered := prior[1].(*Rendered)
				record := prior[0].(*models.DeliveryHistory)
				record.Status = types.DeliverySent
				record.FileSize = int64(len(rendered.Data))
				record.UpdatedAt = o.now()
				if err := o.store.SaveDeliveryHistory(ctx, record); err != nil {
					stepErr = err
					return nil, err
				}

				now := o.now()
				report.LastSentAt = &now
				report.SendCount++
				o.advanceNextRun(report, now)
				if err := o.store.SaveReport(ctx, report); err != nil {
					stepErr = err
					return nil, err
				}
				return record, nil
			},
		},
	}

	result := o.runner.Run(ctx, steps, saga.Options{})
	if !result.Success {
		return history, fmt.Errorf("report %s: delivery failed at %s: %w", report.ID, result.FailedStep, result.Err)
	}

	o.logger.WithFields(logrus.Fields{
		"report_id":  report.ID,
		"recipients": len(recipients),
		"send_count": report.SendCount,
		"size":       utils.FormatBytes(history.FileSize),
	}).Info("Report delivered")
	return history, nil
}

func (o *Orchestrator) advanceNextRun(report *models.Report, now time.Time) {
	if !report.IsScheduled {
		report.NextRunAt = nil
		return
	}
	cfg, err := report.ScheduleConfig()
	if err != nil {
		o.logger.WithError(err).Warnf("Report %s has no usable schedule config, clearing next run", report.ID)
		report.NextRunAt = nil
		return
	}
	next, err := schedule.NextRunTime(cfg, now)
	if err != nil {
		o.logger.WithError(err).Warnf("Report %s next run unresolvable", report.ID)
		report.NextRunAt = nil
		return
	}
	report.NextRunAt = &next
}

// Schedule enables scheduled delivery: persist the schedule on the report
// and register the timer, as one compensating transaction.
func (o *Orchestrator) Schedule(ctx context.Context, report *models.Report, cfg types.ScheduleConfig) error {
	if o.timers == nil {
		return fmt.Errorf("scheduler not attached")
	}
	if err := schedule.Validate(cfg); err != nil {
		return err
	}
	cronExpr, err := schedule.ToCron(cfg)
	if err != nil {
		return err
	}
	next, err := schedule.NextRunTime(cfg, o.now())
	if err != nil {
		return err
	}

	snapshot := *report

	steps := []saga.Step{
		{
			Name: "persist_schedule",
			Execute: func(prior []interface{}) (interface{}, error) {
				if err := report.SetScheduleConfig(cfg); err != nil {
					return nil, err
				}
				report.IsScheduled = true
				report.NextRunAt = &next
				return nil, o.store.SaveReport(ctx, report)
			},
			Rollback: func(own interface{}) error {
				*report = snapshot
				return o.store.SaveReport(ctx, report)
			},
		},
		{
			Name: "register_timer",
			Execute: func(prior []interface{}) (interface{}, error) {
				return o.timers.UpsertJob(ctx, types.JobReportDelivery, report.ID, cronExpr, cfg.Timezone)
			},
			Rollback: func(own interface{}) error {
				return o.timers.RemoveJobByEntity(ctx, types.JobReportDelivery, report.ID)
			},
		},
	}

	result := o.runner.Run(ctx, steps, saga.Options{})
	if !result.Success {
		return fmt.Errorf("report %s: schedule failed at %s: %w", report.ID, result.FailedStep, result.Err)
	}

	o.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"cron":      cronExpr,
		"next_run":  next.Format(time.RFC3339),
	}).Info("Report scheduled")
	return nil
}

// Unschedule disables scheduled delivery. The job row is deactivated, never
// deleted, so delivery history keeps its context.
func (o *Orchestrator) Unschedule(ctx context.Context, report *models.Report) error {
	if o.timers == nil {
		return fmt.Errorf("scheduler not attached")
	}

	snapshot := *report

	steps := []saga.Step{
		{
			Name: "persist_unschedule",
			Execute: func(prior []interface{}) (interface{}, error) {
				report.IsScheduled = false
				report.NextRunAt = nil
				return nil, o.store.SaveReport(ctx, report)
			},
			Rollback: func(own interface{}) error {
				*report = snapshot
				return o.store.SaveReport(ctx, report)
			},
		},
		{
			Name: "deactivate_timer",
			Execute: func(prior []interface{}) (interface{}, error) {
				return nil, o.timers.RemoveJobByEntity(ctx, types.JobReportDelivery, report.ID)
			},
		},
	}

	result := o.runner.Run(ctx, steps, saga.Options{})
	if !result.Success {
		return fmt.Errorf("report %s: unschedule failed at %s: %w", report.ID, result.FailedStep, result.Err)
	}

	o.logger.Infof("Report %s unscheduled", report.ID)
	return nil
}
