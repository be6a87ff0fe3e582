package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adpulse/campaign-watcher/internal/alerts"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/reports"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

type fakeStore struct {
	reports        map[string]*models.Report
	alerts         map[string]*models.Alert
	deleted        []string
	deletedHistory []string
}

func newStore() *fakeStore {
	return &fakeStore{
		reports: make(map[string]*models.Report),
		alerts:  make(map[string]*models.Alert),
	}
}

func (f *fakeStore) GetReport(ctx context.Context, id string) (*models.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return report, nil
}

func (f *fakeStore) DeliveryHistoryForReport(ctx context.Context, reportID string, limit int) ([]models.DeliveryHistory, error) {
	return nil, nil
}

func (f *fakeStore) DeleteDeliveryHistory(ctx context.Context, id string) error {
	f.deletedHistory = append(f.deletedHistory, id)
	return nil
}

func (f *fakeStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return alert, nil
}

func (f *fakeStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	f.alerts[alert.ID] = alert
	return nil
}

func (f *fakeStore) SaveAlert(ctx context.Context, alert *models.Alert) error {
	f.alerts[alert.ID] = alert
	return nil
}

func (f *fakeStore) DeleteAlert(ctx context.Context, id string) error {
	delete(f.alerts, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	for _, alert := range f.alerts {
		if alert.Active {
			out = append(out, *alert)
		}
	}
	return out, nil
}

func (f *fakeStore) AlertHistoryForAlert(ctx context.Context, alertID string, limit int) ([]models.AlertHistory, error) {
	return nil, nil
}

type fakeJobs struct {
	upserted  []string
	removed   []string
	triggered []string
	statuses  []types.JobStatus
}

func (f *fakeJobs) UpsertJob(ctx context.Context, jobType types.JobType, entityID, cronExpr, timezone string) (*models.ScheduledJob, error) {
	f.upserted = append(f.upserted, entityID)
	return &models.ScheduledJob{ID: "job-" + entityID, JobType: jobType, EntityID: entityID, CronExpr: cronExpr, IsActive: true}, nil
}

func (f *fakeJobs) RemoveJob(ctx context.Context, jobID string) error { return nil }

func (f *fakeJobs) RemoveJobByEntity(ctx context.Context, jobType types.JobType, entityID string) error {
	f.removed = append(f.removed, entityID)
	return nil
}

func (f *fakeJobs) PauseJob(ctx context.Context, jobID string) error  { return nil }
func (f *fakeJobs) ResumeJob(ctx context.Context, jobID string) error { return nil }

func (f *fakeJobs) TriggerJob(ctx context.Context, jobID string) error {
	f.triggered = append(f.triggered, jobID)
	return nil
}

func (f *fakeJobs) JobStatuses(ctx context.Context) ([]types.JobStatus, error) {
	return f.statuses, nil
}

type fakeReports struct {
	preview   *reports.Preview
	delivered []string
}

func (f *fakeReports) BuildPreview(ctx context.Context, report *models.Report) (*reports.Preview, error) {
	return f.preview, nil
}

func (f *fakeReports) Deliver(ctx context.Context, report *models.Report) (*models.DeliveryHistory, error) {
	f.delivered = append(f.delivered, report.ID)
	return &models.DeliveryHistory{ReportID: report.ID, Status: types.DeliverySent}, nil
}

func (f *fakeReports) Schedule(ctx context.Context, report *models.Report, cfg types.ScheduleConfig) error {
	report.IsScheduled = true
	next := time.Now().Add(24 * time.Hour)
	report.NextRunAt = &next
	return nil
}

func (f *fakeReports) Unschedule(ctx context.Context, report *models.Report) error {
	report.IsScheduled = false
	return nil
}

type fakeAlertSvc struct {
	outcome *alerts.Outcome
}

func (f *fakeAlertSvc) Evaluate(ctx context.Context, alert *models.Alert) (*alerts.Outcome, error) {
	return f.outcome, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func setup() (*Handler, *fakeStore, *fakeJobs, *fakeReports, *mux.Router) {
	store := newStore()
	jobs := &fakeJobs{}
	reportSvc := &fakeReports{preview: &reports.Preview{ReportID: "report-1", Title: "Weekly"}}
	handler := NewHandler(store, jobs, reportSvc, &fakeAlertSvc{outcome: &alerts.Outcome{Triggered: true, Value: 12}}, quietLogger())

	router := mux.NewRouter()
	SetupRoutes(router, handler)
	return handler, store, jobs, reportSvc, router
}

func do(router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	_, _, _, _, router := setup()

	rr := do(router, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestListJobs(t *testing.T) {
	_, _, jobs, _, router := setup()
	jobs.statuses = []types.JobStatus{{ID: "j1", Type: types.JobReportDelivery}}

	rr := do(router, http.MethodGet, "/api/v1/jobs", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
}

func TestUpsertJobValidation(t *testing.T) {
	_, _, _, _, router := setup()

	rr := do(router, http.MethodPost, "/api/v1/jobs", map[string]string{"job_type": "report_delivery"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreviewReport(t *testing.T) {
	_, store, _, _, router := setup()
	store.reports["report-1"] = &models.Report{ID: "report-1", Title: "Weekly"}

	rr := do(router, http.MethodGet, "/api/v1/reports/report-1/preview", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var preview reports.Preview
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &preview))
	assert.Equal(t, "report-1", preview.ReportID)
}

func TestPreviewReportNotFound(t *testing.T) {
	_, _, _, _, router := setup()

	rr := do(router, http.MethodGet, "/api/v1/reports/missing/preview", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeliverReport(t *testing.T) {
	_, store, _, reportSvc, router := setup()
	store.reports["report-1"] = &models.Report{ID: "report-1"}

	rr := do(router, http.MethodPost, "/api/v1/reports/report-1/deliver", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"report-1"}, reportSvc.delivered)
}

func TestDeleteDeliveryRecord(t *testing.T) {
	_, store, _, _, router := setup()

	rr := do(router, http.MethodDelete, "/api/v1/reports/report-1/history/hist-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"hist-1"}, store.deletedHistory)
}

func TestScheduleReportReturnsCalendarLink(t *testing.T) {
	_, store, _, _, router := setup()
	store.reports["report-1"] = &models.Report{ID: "report-1", Title: "Weekly"}

	rr := do(router, http.MethodPost, "/api/v1/reports/report-1/schedule", map[string]interface{}{
		"frequency": "daily",
		"time":      "09:00",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var response struct {
		CalendarURL string `json:"calendar_url"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Contains(t, response.CalendarURL, "calendar.google.com")
}

func TestCreateAlertRegistersEvaluationJob(t *testing.T) {
	_, store, jobs, _, router := setup()

	rr := do(router, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"client_id":  "client-1",
		"name":       "Spend Watch",
		"alert_type": "metric_threshold",
		"config":     map[string]interface{}{"metric": "spend", "condition": "gt", "threshold": 100},
		"recipients": []string{"ops@example.com"},
		"channels":   []string{"email"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created models.Alert
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.Active)
	assert.Contains(t, store.alerts, created.ID)
	assert.Equal(t, []string{created.ID}, jobs.upserted)
}

func TestCreateAlertRejectsBadConfig(t *testing.T) {
	_, store, _, _, router := setup()

	rr := do(router, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"client_id":  "client-1",
		"name":       "Broken",
		"alert_type": "metric_threshold",
		"config":     map[string]interface{}{"metric": "spend", "condition": "above", "threshold": 100},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, store.alerts)
}

func TestUpdateAlertDeactivationRemovesJob(t *testing.T) {
	_, store, jobs, _, router := setup()
	store.alerts["alert-1"] = &models.Alert{
		ID: "alert-1", ClientID: "client-1", Name: "Spend Watch",
		AlertType:  models.AlertMetricThreshold,
		ConfigJSON: `{"metric":"spend","condition":"gt","threshold":100}`,
		Active:     true,
	}

	inactive := false
	rr := do(router, http.MethodPut, "/api/v1/alerts/alert-1", map[string]interface{}{
		"active": inactive,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.False(t, store.alerts["alert-1"].Active)
	assert.Equal(t, []string{"alert-1"}, jobs.removed)
}

func TestDeleteAlertRemovesJob(t *testing.T) {
	_, store, jobs, _, router := setup()
	store.alerts["alert-1"] = &models.Alert{ID: "alert-1", Active: true}

	rr := do(router, http.MethodDelete, "/api/v1/alerts/alert-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"alert-1"}, store.deleted)
	assert.Equal(t, []string{"alert-1"}, jobs.removed)
}

func TestEvaluateAlertNow(t *testing.T) {
	_, store, _, _, router := setup()
	store.alerts["alert-1"] = &models.Alert{ID: "alert-1", Active: true}

	rr := do(router, http.MethodPost, "/api/v1/alerts/alert-1/evaluate", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var response struct {
		Triggered bool    `json:"triggered"`
		Value     float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.True(t, response.Triggered)
	assert.Equal(t, 12.0, response.Value)
}
