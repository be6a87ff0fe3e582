// Package store is the persistence layer over the hosted relational
// datastore. The store offers no multi-statement transactions; callers that
// need all-or-nothing semantics across several writes wrap them in the saga
// runner instead of relying on anything here.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// Open connects to the sqlite-backed store and migrates the schema.
func Open(dbPath string, logger *logrus.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Report{},
		&models.ScheduledJob{},
		&models.DeliveryHistory{},
		&models.Alert{},
		&models.AlertHistory{},
		&models.Upload{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infof("Store initialized at %s", dbPath)
	return &Store{db: db, logger: logger}, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory(logger *logrus.Logger) (*Store, error) {
	return Open("file::memory:?cache=shared", logger)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// --- reports ---

func (s *Store) GetReport(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("report %s: %w", id, err)
	}
	return &report, nil
}

func (s *Store) SaveReport(ctx context.Context, report *models.Report) error {
	return s.db.WithContext(ctx).Save(report).Error
}

func (s *Store) CreateReport(ctx context.Context, report *models.Report) error {
	return s.db.WithContext(ctx).Create(report).Error
}

// DueReports finds reports whose next run time has passed and that are still
// scheduled. This is the query behind the due-job sweep.
func (s *Store) DueReports(ctx context.Context, now time.Time) ([]models.Report, error) {
	var reports []models.Report
	err := s.db.WithContext(ctx).
		Where("is_scheduled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("due reports query: %w", err)
	}
	return reports, nil
}

// --- scheduled jobs ---

func (s *Store) GetJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return &job, nil
}

func (s *Store) FindJobByEntity(ctx context.Context, jobType types.JobType, entityID string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	err := s.db.WithContext(ctx).
		First(&job, "job_type = ? AND entity_id = ?", jobType, entityID).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) AllJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("jobs query: %w", err)
	}
	return jobs, nil
}

func (s *Store) ActiveJobs(ctx context.Context) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("active jobs query: %w", err)
	}
	return jobs, nil
}

func (s *Store) SaveJob(ctx context.Context, job *models.ScheduledJob) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.ScheduledJob{}, "id = ?", id).Error
}

// --- delivery history ---

func (s *Store) CreateDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *Store) SaveDeliveryHistory(ctx context.Context, record *models.DeliveryHistory) error {
	return s.db.WithContext(ctx).Save(record).Error
}

func (s *Store) DeleteDeliveryHistory(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.DeliveryHistory{}, "id = ?", id).Error
}

func (s *Store) DeliveryHistoryForReport(ctx context.Context, reportID string, limit int) ([]models.DeliveryHistory, error) {
	var records []models.DeliveryHistory
	err := s.db.WithContext(ctx).
		Where("report_id = ?", reportID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("delivery history query: %w", err)
	}
	return records, nil
}

// --- alerts ---

func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("alert %s: %w", id, err)
	}
	return &alert, nil
}

func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return s.db.WithContext(ctx).Create(alert).Error
}

func (s *Store) SaveAlert(ctx context.Context, alert *models.Alert) error {
	return s.db.WithContext(ctx).Save(alert).Error
}

func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.Alert{}, "id = ?", id).Error
}

func (s *Store) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("active alerts query: %w", err)
	}
	return alerts, nil
}

func (s *Store) CreateAlertHistory(ctx context.Context, record *models.AlertHistory) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *Store) AlertHistoryForAlert(ctx context.Context, alertID string, limit int) ([]models.AlertHistory, error) {
	var records []models.AlertHistory
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("triggered_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("alert history query: %w", err)
	}
	return records, nil
}

// --- uploaded platform data ---

func (s *Store) CreateUpload(ctx context.Context, upload *models.Upload) error {
	return s.db.WithContext(ctx).Create(upload).Error
}

// LatestUpload returns the most recent upload for a client/platform pair, or
// gorm.ErrRecordNotFound when the pair has never uploaded anything.
func (s *Store) LatestUpload(ctx context.Context, clientID, platformID string) (*models.Upload, error) {
	var upload models.Upload
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND platform_id = ?", clientID, platformID).
		Order("uploaded_at DESC").
		First(&upload).Error
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func (s *Store) PlatformsForClient(ctx context.Context, clientID string) ([]string, error) {
	var platforms []string
	err := s.db.WithContext(ctx).
		Model(&models.Upload{}).
		Where("client_id = ?", clientID).
		Distinct("platform_id").
		Pluck("platform_id", &platforms).Error
	if err != nil {
		return nil, fmt.Errorf("platforms query: %w", err)
	}
	return platforms, nil
}

// RowsForPlatform loads all uploaded rows for a client/platform pair and
// filters them to the date range using the report's date field. Rows without
// a parsable date pass through unfiltered range checks only when no range is
// given.
func (s *Store) RowsForPlatform(ctx context.Context, clientID, platformID, dateField string, dateRange *types.DateRange) ([]types.Row, error) {
	var uploads []models.Upload
	err := s.db.WithContext(ctx).
		Where("client_id = ? AND platform_id = ?", clientID, platformID).
		Order("uploaded_at ASC").
		Find(&uploads).Error
	if err != nil {
		return nil, fmt.Errorf("uploads query: %w", err)
	}

	var rows []types.Row
	for i := range uploads {
		batch, err := uploads[i].Rows()
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"upload_id": uploads[i].ID,
				"error":     err.Error(),
			}).Warn("Skipping unreadable upload")
			continue
		}
		rows = append(rows, batch...)
	}

	if dateRange == nil || dateField == "" {
		return rows, nil
	}

	filtered := make([]types.Row, 0, len(rows))
	for _, row := range rows {
		ts, ok := rowDate(row, dateField)
		if !ok {
			continue
		}
		if ts.Before(dateRange.Start) || ts.After(dateRange.End) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered, nil
}

var rowDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

func rowDate(row types.Row, field string) (time.Time, bool) {
	raw, ok := row[field]
	if !ok {
		return time.Time{}, false
	}
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range rowDateLayouts {
		if ts, err := time.Parse(layout, str); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
