package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/adpulse/campaign-watcher/internal/alerts"
	"github.com/adpulse/campaign-watcher/internal/config"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/reports"
	"github.com/adpulse/campaign-watcher/pkg/calendar"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

// alertEvalCron is the default evaluation schedule registered for every
// active alert.
const alertEvalCron = "0 * * * *"

const historyLimit = 50

// Store is the slice of the persistence layer the handlers need.
type Store interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	DeliveryHistoryForReport(ctx context.Context, reportID string, limit int) ([]models.DeliveryHistory, error)
	DeleteDeliveryHistory(ctx context.Context, id string) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
	SaveAlert(ctx context.Context, alert *models.Alert) error
	DeleteAlert(ctx context.Context, id string) error
	ActiveAlerts(ctx context.Context) ([]models.Alert, error)
	AlertHistoryForAlert(ctx context.Context, alertID string, limit int) ([]models.AlertHistory, error)
}

// Jobs is the scheduler surface exposed over HTTP.
type Jobs interface {
	UpsertJob(ctx context.Context, jobType types.JobType, entityID, cronExpr, timezone string) (*models.ScheduledJob, error)
	RemoveJob(ctx context.Context, jobID string) error
	RemoveJobByEntity(ctx context.Context, jobType types.JobType, entityID string) error
	PauseJob(ctx context.Context, jobID string) error
	ResumeJob(ctx context.Context, jobID string) error
	TriggerJob(ctx context.Context, jobID string) error
	JobStatuses(ctx context.Context) ([]types.JobStatus, error)
}

// Reports is the delivery orchestration surface.
type Reports interface {
	BuildPreview(ctx context.Context, report *models.Report) (*reports.Preview, error)
	Deliver(ctx context.Context, report *models.Report) (*models.DeliveryHistory, error)
	Schedule(ctx context.Context, report *models.Report, cfg types.ScheduleConfig) error
	Unschedule(ctx context.Context, report *models.Report) error
}

// Alerts evaluates a single alert on demand.
type Alerts interface {
	Evaluate(ctx context.Context, alert *models.Alert) (*alerts.Outcome, error)
}

type Handler struct {
	store   Store
	jobs    Jobs
	reports Reports
	alerts  Alerts
	catalog *config.PlatformCatalog
	logger  *logrus.Logger
	newID   func() string
}

func NewHandler(store Store, jobs Jobs, reportSvc Reports, alertSvc Alerts, logger *logrus.Logger) *Handler {
	return &Handler{
		store:   store,
		jobs:    jobs,
		reports: reportSvc,
		alerts:  alertSvc,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// SetCatalog attaches the platform catalog served to clients for display
// names. Optional; without it the platforms endpoint returns an empty list.
func (h *Handler) SetCatalog(catalog *config.PlatformCatalog) {
	h.catalog = catalog
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	platforms := []config.Platform{}
	if h.catalog != nil {
		platforms = h.catalog.Platforms
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"platforms": platforms,
		"count":     len(platforms),
	})
}

// --- jobs ---

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.jobs.JobStatuses(r.Context())
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  statuses,
		"count": len(statuses),
	})
}

type upsertJobRequest struct {
	JobType  types.JobType `json:"job_type"`
	EntityID string        `json:"entity_id"`
	CronExpr string        `json:"cron_expr"`
	Timezone string        `json:"timezone"`
}

func (h *Handler) UpsertJob(w http.ResponseWriter, r *http.Request) {
	var req upsertJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}
	if req.EntityID == "" || req.CronExpr == "" {
		h.handleError(w, errors.New("entity_id and cron_expr are required"), http.StatusBadRequest)
		return
	}

	job, err := h.jobs.UpsertJob(r.Context(), req.JobType, req.EntityID, req.CronExpr, req.Timezone)
	if err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.jobs.RemoveJob(r.Context(), jobID); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) PauseJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.jobs.PauseJob(r.Context(), jobID); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.jobs.ResumeJob(r.Context(), jobID); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.jobs.TriggerJob(r.Context(), jobID); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

// --- reports ---

func (h *Handler) PreviewReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	preview, err := h.reports.BuildPreview(ctx, report)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) DeliverReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	history, err := h.reports.Deliver(r.Context(), report)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *Handler) ScheduleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	var cfg types.ScheduleConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}

	if err := h.reports.Schedule(r.Context(), report, cfg); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}

	response := map[string]interface{}{"report": report}
	if report.NextRunAt != nil {
		if url, err := calendar.CreateDeliveryCalendarURL(report.Title, *report.NextRunAt); err == nil {
			response["calendar_url"] = url
		}
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) UnscheduleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	if err := h.reports.Unschedule(r.Context(), report); err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) ReportDeliveryHistory(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportID"]
	records, err := h.store.DeliveryHistoryForReport(r.Context(), reportID, historyLimit)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": records,
		"count":   len(records),
	})
}

// DeleteDeliveryRecord removes one delivery history row, for cleaning up
// records kept past a client's retention window.
func (h *Handler) DeleteDeliveryRecord(w http.ResponseWriter, r *http.Request) {
	historyID := mux.Vars(r)["historyID"]
	if err := h.store.DeleteDeliveryHistory(r.Context(), historyID); err != nil {
		h.handleError(w, err, statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*models.Report, bool) {
	reportID := mux.Vars(r)["reportID"]
	report, err := h.store.GetReport(r.Context(), reportID)
	if err != nil {
		h.handleError(w, err, statusFor(err))
		return nil, false
	}
	return report, true
}

// --- alerts ---

type alertRequest struct {
	ClientID   string           `json:"client_id"`
	ReportID   string           `json:"report_id,omitempty"`
	KPIID      string           `json:"kpi_id,omitempty"`
	Name       string           `json:"name"`
	AlertType  models.AlertType `json:"alert_type"`
	Config     json.RawMessage  `json:"config"`
	Recipients []string         `json:"recipients"`
	Channels   []string         `json:"channels"`
	Active     *bool            `json:"active,omitempty"`
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := h.store.ActiveAlerts(r.Context())
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": active,
		"count":  len(active),
	})
}

func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

// CreateAlert validates the config for the alert kind, persists the alert,
// and registers its hourly evaluation job.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}
	if req.ClientID == "" || req.Name == "" {
		h.handleError(w, errors.New("client_id and name are required"), http.StatusBadRequest)
		return
	}
	if _, err := alerts.ParseConfig(req.AlertType, string(req.Config)); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}

	alert := &models.Alert{
		ID:         h.newID(),
		ClientID:   req.ClientID,
		ReportID:   req.ReportID,
		KPIID:      req.KPIID,
		Name:       req.Name,
		AlertType:  req.AlertType,
		ConfigJSON: string(req.Config),
		Active:     true,
	}
	if req.Active != nil {
		alert.Active = *req.Active
	}
	alert.SetRecipients(req.Recipients)
	alert.SetChannels(req.Channels)

	if err := h.store.CreateAlert(r.Context(), alert); err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}

	if alert.Active {
		if _, err := h.jobs.UpsertJob(r.Context(), types.JobAlertEvaluation, alert.ID, alertEvalCron, ""); err != nil {
			h.logger.WithError(err).Warnf("Alert %s created without evaluation job", alert.ID)
		}
	}

	h.writeJSON(w, http.StatusCreated, alert)
}

// UpdateAlert replaces the mutable fields. Deactivating pauses the
// evaluation job; re-activating re-registers it.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}

	if req.AlertType != "" {
		alert.AlertType = req.AlertType
	}
	if len(req.Config) > 0 {
		alert.ConfigJSON = string(req.Config)
	}
	if _, err := alerts.ParseConfig(alert.AlertType, alert.ConfigJSON); err != nil {
		h.handleError(w, err, http.StatusBadRequest)
		return
	}

	if req.Name != "" {
		alert.Name = req.Name
	}
	if req.Recipients != nil {
		alert.SetRecipients(req.Recipients)
	}
	if req.Channels != nil {
		alert.SetChannels(req.Channels)
	}

	wasActive := alert.Active
	if req.Active != nil {
		alert.Active = *req.Active
	}

	if err := h.store.SaveAlert(r.Context(), alert); err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}

	if wasActive != alert.Active {
		if alert.Active {
			if _, err := h.jobs.UpsertJob(r.Context(), types.JobAlertEvaluation, alert.ID, alertEvalCron, ""); err != nil {
				h.logger.WithError(err).Warnf("Alert %s activated without evaluation job", alert.ID)
			}
		} else {
			if err := h.jobs.RemoveJobByEntity(r.Context(), types.JobAlertEvaluation, alert.ID); err != nil {
				h.logger.WithError(err).Warnf("Alert %s evaluation job not deactivated", alert.ID)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	if err := h.jobs.RemoveJobByEntity(r.Context(), types.JobAlertEvaluation, alert.ID); err != nil {
		h.logger.WithError(err).Warnf("Alert %s evaluation job not removed", alert.ID)
	}
	if err := h.store.DeleteAlert(r.Context(), alert.ID); err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// EvaluateAlert runs one evaluation immediately, outside the schedule.
func (h *Handler) EvaluateAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	outcome, err := h.alerts.Evaluate(r.Context(), alert)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}

	notifyErrs := make(map[string]string, len(outcome.NotifyErrs))
	for channel, nerr := range outcome.NotifyErrs {
		notifyErrs[channel] = nerr.Error()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"triggered":   outcome.Triggered,
		"value":       outcome.Value,
		"threshold":   outcome.Threshold,
		"message":     outcome.Message,
		"estimated":   outcome.Estimated,
		"notify_errs": notifyErrs,
	})
}

func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alertID"]
	records, err := h.store.AlertHistoryForAlert(r.Context(), alertID, historyLimit)
	if err != nil {
		h.handleError(w, err, http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": records,
		"count":   len(records),
	})
}

func (h *Handler) loadAlert(w http.ResponseWriter, r *http.Request) (*models.Alert, bool) {
	alertID := mux.Vars(r)["alertID"]
	alert, err := h.store.GetAlert(r.Context(), alertID)
	if err != nil {
		h.handleError(w, err, statusFor(err))
		return nil, false
	}
	return alert, true
}

// --- helpers ---

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) handleError(w http.ResponseWriter, err error, code int) {
	h.logger.Error(err)
	h.writeJSON(w, code, map[string]string{
		"error": err.Error(),
	})
}

func statusFor(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
