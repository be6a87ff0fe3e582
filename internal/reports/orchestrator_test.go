package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adpulse/campaign-watcher/internal/metrics"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/notifications"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

type fakeStore struct {
	platforms []string
	rows      map[string][]types.Row
	rowsErr   map[string]error

	savedReports  []*models.Report
	createdHist   []*models.DeliveryHistory
	savedHist     []*models.DeliveryHistory
	saveReportErr error
}

func (f *fakeStore) SaveReport(ctx context.Context, report *models.Report) error {
	if f.saveReportErr != nil {
		return f.saveReportErr
	}
	f.savedReports = append(f.savedReports, report)
	return nil
}

func (f *fakeStore) CreateDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error {
	f.createdHist = append(f.createdHist, record)
	return nil
}

func (f *fakeStore) SaveDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error {
	f.savedHist = append(f.savedHist, record)
	return nil
}

func (f *fakeStore) PlatformsForClient(ctx context.Context, clientID string) ([]string, error) {
	return f.platforms, nil
}

func (f *fakeStore) RowsForPlatform(ctx context.Context, clientID, platformID, dateField string, dateRange *types.DateRange) ([]types.Row, error) {
	if err := f.rowsErr[platformID]; err != nil {
		return nil, err
	}
	return f.rows[platformID], nil
}

type fakeMailer struct {
	sent  []notifications.Message
	errs  []error // popped per call; nil entry means success
	calls int
}

func (f *fakeMailer) Send(ctx context.Context, msg notifications.Message) (*notifications.SendResult, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, msg)
	return &notifications.SendResult{Accepted: msg.To}, nil
}

type fakeTimers struct {
	upserted  []string
	removed   []string
	upsertErr error
}

func (f *fakeTimers) UpsertJob(ctx context.Context, jobType types.JobType, entityID, cronExpr, timezone string) (*models.ScheduledJob, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserted = append(f.upserted, entityID)
	return &models.ScheduledJob{ID: "job-" + entityID, JobType: jobType, EntityID: entityID, CronExpr: cronExpr, Timezone: timezone, IsActive: true}, nil
}

func (f *fakeTimers) RemoveJobByEntity(ctx context.Context, jobType types.JobType, entityID string) error {
	f.removed = append(f.removed, entityID)
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testOrchestrator(store *fakeStore, mailer notifications.Mailer) *Orchestrator {
	engine := metrics.NewEngine(store, quietLogger())
	return NewOrchestrator(store, engine, mailer, NewHTMLRenderer(), quietLogger())
}

func sampleReport(t *testing.T) *models.Report {
	t.Helper()
	report := &models.Report{
		ID:              "report-1",
		ClientID:        "client-1",
		Title:           "Weekly Performance",
		DateRangePreset: string(types.RangeLast7Days),
		DateField:       "date",
		DeliveryFormat:  types.FormatPDF,
	}
	report.SetRecipients([]string{"ceo@example.com"})
	require.NoError(t, report.SetVisualizations([]types.Visualization{
		{ID: "w1", Type: types.VizKPI, Title: "Total Spend", Metric: "spend"},
		{ID: "w2", Type: types.VizPie, Title: "Spend by Campaign", Metric: "spend", Dimension: "campaign"},
	}))
	return report
}

func sampleStore() *fakeStore {
	today := time.Now().Format("2006-01-02")
	return &fakeStore{
		platforms: []string{"google_ads", "meta_ads"},
		rows: map[string][]types.Row{
			"google_ads": {
				{"spend": 100.0, "campaign": "brand", "date": today},
				{"spend": 50.0, "campaign": "generic", "date": today},
			},
			"meta_ads": {
				{"spend": "$25.00", "campaign": "brand", "date": today},
			},
		},
	}
}

func TestBuildPreview(t *testing.T) {
	orch := testOrchestrator(sampleStore(), &fakeMailer{})

	preview, err := orch.BuildPreview(context.Background(), sampleReport(t))
	require.NoError(t, err)
	require.Len(t, preview.Widgets, 2)

	kpi := preview.Widgets[0]
	require.NotNil(t, kpi.Value)
	assert.InDelta(t, 175.0, *kpi.Value, 0.001)

	pie := preview.Widgets[1]
	require.Len(t, pie.Points, 2)
	assert.Equal(t, "brand", pie.Points[0].Name)
	assert.InDelta(t, 125.0, pie.Points[0].Value, 0.001)
	assert.Equal(t, "generic", pie.Points[1].Name)
}

func TestBuildPreviewAppliesFilters(t *testing.T) {
	report := sampleReport(t)
	require.NoError(t, report.SetVisualizations([]types.Visualization{
		{
			ID: "w1", Type: types.VizKPI, Title: "Brand Spend", Metric: "spend",
			Filters: []types.Filter{{Field: "campaign", Op: types.FilterEquals, Value: "brand"}},
		},
	}))

	orch := testOrchestrator(sampleStore(), &fakeMailer{})
	preview, err := orch.BuildPreview(context.Background(), report)
	require.NoError(t, err)

	require.NotNil(t, preview.Widgets[0].Value)
	assert.InDelta(t, 125.0, *preview.Widgets[0].Value, 0.001)
}

func TestBuildPreviewFailedPlatformContributesZero(t *testing.T) {
	store := sampleStore()
	store.rowsErr = map[string]error{"meta_ads": errors.New("warehouse timeout")}

	orch := testOrchestrator(store, &fakeMailer{})
	preview, err := orch.BuildPreview(context.Background(), sampleReport(t))
	require.NoError(t, err)

	require.NotNil(t, preview.Widgets[0].Value)
	assert.InDelta(t, 150.0, *preview.Widgets[0].Value, 0.001)
}

func TestDeliverSuccess(t *testing.T) {
	store := sampleStore()
	mailer := &fakeMailer{}
	orch := testOrchestrator(store, mailer)

	report := sampleReport(t)
	history, err := orch.Deliver(context.Background(), report)
	require.NoError(t, err)

	assert.Equal(t, types.DeliverySent, history.Status)
	assert.Greater(t, history.FileSize, int64(0))
	assert.Equal(t, 1, report.SendCount)
	require.NotNil(t, report.LastSentAt)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, []string{"ceo@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "Weekly Performance")
	assert.NotEmpty(t, msg.Attachment)
	assert.Contains(t, msg.AttachmentName, "weekly-performance")

	// one pending create, one finalize
	require.Len(t, store.createdHist, 1)
	require.Len(t, store.savedHist, 1)
}

func TestDeliverSendFailureFinalizesHistoryFailed(t *testing.T) {
	store := sampleStore()
	mailer := &fakeMailer{errs: []error{errors.New("relay rejected message")}}
	orch := testOrchestrator(store, mailer)

	report := sampleReport(t)
	history, err := orch.Deliver(context.Background(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send")

	// non-retryable error: exactly one attempt
	assert.Equal(t, 1, mailer.calls)

	// the pending row survives as a failed record, not a deletion
	require.NotNil(t, history)
	assert.Equal(t, types.DeliveryFailed, history.Status)
	assert.Contains(t, history.ErrorMessage, "relay rejected")
	require.Len(t, store.savedHist, 1)

	// report bookkeeping untouched
	assert.Equal(t, 0, report.SendCount)
	assert.Nil(t, report.LastSentAt)
}

func TestDeliverRetriesTransientSendErrors(t *testing.T) {
	store := sampleStore()
	mailer := &fakeMailer{errs: []error{
		errors.New("dial tcp: connection refused"),
		errors.New("dial tcp: connection refused"),
		nil,
	}}
	orch := testOrchestrator(store, mailer)
	orch.retryOpts.BaseDelay = time.Millisecond
	orch.retryOpts.MaxDelay = 2 * time.Millisecond

	history, err := orch.Deliver(context.Background(), sampleReport(t))
	require.NoError(t, err)
	assert.Equal(t, 3, mailer.calls)
	assert.Equal(t, types.DeliverySent, history.Status)
}

func TestDeliverNoRecipients(t *testing.T) {
	report := sampleReport(t)
	report.RecipientsJSON = ""

	orch := testOrchestrator(sampleStore(), &fakeMailer{})
	_, err := orch.Deliver(context.Background(), report)
	assert.Error(t, err)
}

func TestDeliverAdvancesNextRun(t *testing.T) {
	report := sampleReport(t)
	report.IsScheduled = true
	require.NoError(t, report.SetScheduleConfig(types.ScheduleConfig{
		Frequency: types.FrequencyDaily,
		Time:      "09:00",
		Timezone:  "UTC",
	}))

	orch := testOrchestrator(sampleStore(), &fakeMailer{})
	_, err := orch.Deliver(context.Background(), report)
	require.NoError(t, err)

	require.NotNil(t, report.NextRunAt)
	assert.True(t, report.NextRunAt.After(time.Now()))
}

func TestScheduleRegistersTimerAndPersists(t *testing.T) {
	store := sampleStore()
	timers := &fakeTimers{}
	orch := testOrchestrator(store, &fakeMailer{})
	orch.BindTimers(timers)

	report := sampleReport(t)
	cfg := types.ScheduleConfig{Frequency: types.FrequencyWeekly, Time: "09:00", DayOfWeek: "monday", Timezone: "UTC"}

	require.NoError(t, orch.Schedule(context.Background(), report, cfg))
	assert.True(t, report.IsScheduled)
	require.NotNil(t, report.NextRunAt)
	assert.Equal(t, []string{"report-1"}, timers.upserted)
	require.Len(t, store.savedReports, 1)
}

func TestScheduleTimerFailureRollsBackReport(t *testing.T) {
	store := sampleStore()
	timers := &fakeTimers{upsertErr: errors.New("scheduler down")}
	orch := testOrchestrator(store, &fakeMailer{})
	orch.BindTimers(timers)

	report := sampleReport(t)
	err := orch.Schedule(context.Background(), report, types.ScheduleConfig{
		Frequency: types.FrequencyDaily, Time: "09:00", Timezone: "UTC",
	})
	require.Error(t, err)

	// first save flips it on, rollback save restores the snapshot
	assert.False(t, report.IsScheduled)
	assert.Nil(t, report.NextRunAt)
	require.Len(t, store.savedReports, 2)
}

func TestScheduleRejectsBadConfig(t *testing.T) {
	orch := testOrchestrator(sampleStore(), &fakeMailer{})
	orch.BindTimers(&fakeTimers{})

	err := orch.Schedule(context.Background(), sampleReport(t), types.ScheduleConfig{
		Frequency: "hourly", Time: "09:00",
	})
	assert.Error(t, err)
}

func TestUnschedule(t *testing.T) {
	store := sampleStore()
	timers := &fakeTimers{}
	orch := testOrchestrator(store, &fakeMailer{})
	orch.BindTimers(timers)

	report := sampleReport(t)
	report.IsScheduled = true
	next := time.Now().Add(time.Hour)
	report.NextRunAt = &next

	require.NoError(t, orch.Unschedule(context.Background(), report))
	assert.False(t, report.IsScheduled)
	assert.Nil(t, report.NextRunAt)
	assert.Equal(t, []string{"report-1"}, timers.removed)
}

func TestRendererEscapesAndNames(t *testing.T) {
	renderer := NewHTMLRenderer()
	report := &models.Report{ID: "r", Title: "Q4 <Review>", DeliveryFormat: types.FormatPDF}

	value := 42.0
	preview := &Preview{
		ReportID:    "r",
		Title:       "Q4 <Review>",
		GeneratedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Widgets:     []WidgetResult{{ID: "w", Type: types.VizKPI, Title: "Spend", Metric: "spend", Value: &value}},
	}

	rendered, err := renderer.Render(context.Background(), report, preview)
	require.NoError(t, err)
	assert.Equal(t, "q4-review-2026-03-01.html", rendered.Filename)
	assert.Contains(t, string(rendered.Data), "&lt;Review&gt;")
	assert.Contains(t, string(rendered.Data), "42.00")
}
