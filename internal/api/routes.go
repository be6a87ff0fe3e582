package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func SetupRoutes(router *mux.Router, handler *Handler) {
	router.HandleFunc("/api/v1/health", handler.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/platforms", handler.ListPlatforms).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/jobs", handler.ListJobs).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/jobs", handler.UpsertJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs/{jobID}", handler.RemoveJob).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/jobs/{jobID}/pause", handler.PauseJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs/{jobID}/resume", handler.ResumeJob).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/jobs/{jobID}/trigger", handler.TriggerJob).Methods(http.MethodPost)

	router.HandleFunc("/api/v1/reports/{reportID}/preview", handler.PreviewReport).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/reports/{reportID}/deliver", handler.DeliverReport).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/reports/{reportID}/schedule", handler.ScheduleReport).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/reports/{reportID}/unschedule", handler.UnscheduleReport).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/reports/{reportID}/history", handler.ReportDeliveryHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/reports/{reportID}/history/{historyID}", handler.DeleteDeliveryRecord).Methods(http.MethodDelete)

	router.HandleFunc("/api/v1/alerts", handler.ListAlerts).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/alerts", handler.CreateAlert).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/alerts/{alertID}", handler.GetAlert).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/alerts/{alertID}", handler.UpdateAlert).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/alerts/{alertID}", handler.DeleteAlert).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/alerts/{alertID}/evaluate", handler.EvaluateAlert).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/alerts/{alertID}/history", handler.AlertHistory).Methods(http.MethodGet)
}
