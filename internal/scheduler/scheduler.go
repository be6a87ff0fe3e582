// Package scheduler owns the timers behind scheduled report deliveries and
// periodic alert evaluation. Every active job gets a cron entry; a shared
// sweep catches reports whose timer was lost (process restart, registration
// bug) by re-checking the persisted next-run times. Double firing between a
// timer and the sweep is tolerated, the sweep re-checks due-ness right before
// acting.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/adpulse/campaign-watcher/internal/alerts"
	"github.com/adpulse/campaign-watcher/internal/models"
	"github.com/adpulse/campaign-watcher/internal/reports"
	"github.com/adpulse/campaign-watcher/pkg/types"
)

// DefaultSweepInterval is how often the due-job sweep re-checks persisted
// next-run times.
const DefaultSweepInterval = 60 * time.Second

// Store is the slice of the persistence layer the scheduler needs.
type Store interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	DueReports(ctx context.Context, now time.Time) ([]models.Report, error)
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	FindJobByEntity(ctx context.Context, jobType types.JobType, entityID string) (*models.ScheduledJob, error)
	ActiveJobs(ctx context.Context) ([]models.ScheduledJob, error)
	AllJobs(ctx context.Context) ([]models.ScheduledJob, error)
	SaveJob(ctx context.Context, job *models.ScheduledJob) error
	DeleteJob(ctx context.Context, id string) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
}

// Deliverer runs one report delivery end to end.
type Deliverer interface {
	Deliver(ctx context.Context, report *models.Report) (*models.DeliveryHistory, error)
}

// AlertRunner evaluates one alert.
type AlertRunner interface {
	Evaluate(ctx context.Context, alert *models.Alert) (*alerts.Outcome, error)
}

type Scheduler struct {
	store     Store
	deliverer Deliverer
	alerts    AlertRunner
	logger    *logrus.Logger

	cron    *cron.Cron
	parser  cron.Parser
	entries map[string]cron.EntryID
	mu      sync.RWMutex
	started bool

	sweepInterval time.Duration
	stop          chan struct{}
	wg            sync.WaitGroup
	inFlight      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

func New(store Store, deliverer Deliverer, alertRunner AlertRunner, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		deliverer: deliverer,
		alerts:    alertRunner,
		logger:    logger,
		// 5-field specs: minute, hour, day of month, month, day of week
		cron:          cron.New(),
		parser:        cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		entries:       make(map[string]cron.EntryID),
		sweepInterval: DefaultSweepInterval,
		stop:          make(chan struct{}),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// SetSweepInterval overrides the sweep cadence. Call before Init.
func (s *Scheduler) SetSweepInterval(d time.Duration) {
	if d > 0 {
		s.sweepInterval = d
	}
}

// Init loads every active job from the store, registers its timer, starts
// cron, and starts the sweep. A job with an invalid cron expression is logged
// and skipped, never fatal; the sweep still covers its report.
func (s *Scheduler) Init(ctx context.Context) error {
	jobs, err := s.store.ActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("scheduler init: %w", err)
	}

	registered := 0
	for i := range jobs {
		job := jobs[i]
		if err := s.register(&job); err != nil {
			s.logger.WithFields(logrus.Fields{
				"job_id": job.ID,
				"cron":   job.CronExpr,
				"error":  err.Error(),
			}).Warn("Skipping job with invalid schedule")
			continue
		}
		registered++
	}

	s.mu.Lock()
	s.cron.Start()
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Infof("Scheduler started with %d/%d jobs, sweep every %s",
		registered, len(jobs), s.sweepInterval)
	return nil
}

// Stop halts the cron runner and the sweep and waits for in-flight job
// handlers to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.inFlight.Wait()
	s.logger.Info("Scheduler stopped")
}

// register validates the expression and adds the cron entry, replacing any
// existing entry for the same job.
func (s *Scheduler) register(job *models.ScheduledJob) error {
	if !job.JobType.Valid() {
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
	if _, err := s.parser.Parse(job.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.CronExpr, err)
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(job.CronExpr, func() {
		s.runJob(jobID)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.entries[job.ID]; ok {
		s.cron.Remove(old)
	}
	s.entries[job.ID] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) deregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[jobID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, jobID)
	}
}

// UpsertJob creates or updates the persisted job row for an entity and
// (re)registers its timer.
func (s *Scheduler) UpsertJob(ctx context.Context, jobType types.JobType, entityID, cronExpr, timezone string) (*models.ScheduledJob, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	if _, err := s.parser.Parse(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	job, err := s.store.FindJobByEntity(ctx, jobType, entityID)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		job = &models.ScheduledJob{
			ID:       s.newID(),
			JobType:  jobType,
			EntityID: entityID,
		}
	}

	job.CronExpr = cronExpr
	job.Timezone = timezone
	job.IsActive = true
	job.LastError = ""
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("job %s: save: %w", job.ID, err)
	}

	if err := s.register(job); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"job_type":  jobType,
		"entity_id": entityID,
		"cron":      cronExpr,
	}).Info("Job registered")
	return job, nil
}

// RemoveJob hard-deletes a job row and its timer.
func (s *Scheduler) RemoveJob(ctx context.Context, jobID string) error {
	s.deregister(jobID)
	return s.store.DeleteJob(ctx, jobID)
}

// RemoveJobByEntity deactivates the entity's job and stops its timer. The
// row survives so delivery history keeps its scheduling context.
func (s *Scheduler) RemoveJobByEntity(ctx context.Context, jobType types.JobType, entityID string) error {
	job, err := s.store.FindJobByEntity(ctx, jobType, entityID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	s.deregister(job.ID)
	job.IsActive = false
	return s.store.SaveJob(ctx, job)
}

// PauseJob stops future fires without touching an execution already running.
func (s *Scheduler) PauseJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	s.deregister(job.ID)
	job.IsActive = false
	if err := s.store.SaveJob(ctx, job); err != nil {
		return err
	}

	s.logger.Infof("Job %s paused", jobID)
	return nil
}

// ResumeJob re-activates a paused job and re-registers its timer.
func (s *Scheduler) ResumeJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.IsActive = true
	if err := s.store.SaveJob(ctx, job); err != nil {
		return err
	}
	if err := s.register(job); err != nil {
		return err
	}

	s.logger.Infof("Job %s resumed", jobID)
	return nil
}

// TriggerJob runs a job immediately, outside its schedule.
func (s *Scheduler) TriggerJob(ctx context.Context, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return s.executeJob(ctx, job)
}

// JobStatuses reports every persisted job, paused ones included, with
// whether a live timer backs it.
func (s *Scheduler) JobStatuses(ctx context.Context) ([]types.JobStatus, error) {
	jobs, err := s.store.AllJobs(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]types.JobStatus, 0, len(jobs))
	for i := range jobs {
		job := jobs[i]
		entryID, scheduled := s.entries[job.ID]

		status := types.JobStatus{
			ID:        job.ID,
			Type:      job.JobType,
			EntityID:  job.EntityID,
			CronExpr:  job.CronExpr,
			Timezone:  job.Timezone,
			Active:    job.IsActive,
			Scheduled: scheduled,
			LastRunAt: job.LastRunAt,
			NextRunAt: job.NextRunAt,
		}
		if scheduled {
			if next := s.cron.Entry(entryID).Next; !next.IsZero() {
				status.NextRunAt = &next
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// runJob is the cron entry callback.
func (s *Scheduler) runJob(jobID string) {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	ctx := context.Background()
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.WithError(err).Errorf("Job %s vanished from store", jobID)
		return
	}
	if !job.IsActive {
		return
	}

	if err := s.executeJob(ctx, job); err != nil {
		s.logger.WithFields(logrus.Fields{
			"job_id":   jobID,
			"job_type": job.JobType,
			"error":    err.Error(),
		}).Error("Job execution failed")
	}
}

// executeJob dispatches on the job type. A failed execution records the error
// on the job row and keeps the timer registered; the next fire retries.
func (s *Scheduler) executeJob(ctx context.Context, job *models.ScheduledJob) error {
	start := s.now()
	job.LastRunAt = &start

	s.logger.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"job_type":  job.JobType,
		"entity_id": job.EntityID,
	}).Info("Starting job execution")

	var execErr error
	switch job.JobType {
	case types.JobReportDelivery:
		execErr = s.deliverReport(ctx, job.EntityID)
	case types.JobAlertEvaluation:
		execErr = s.evaluateAlert(ctx, job.EntityID)
	default:
		execErr = fmt.Errorf("unknown job type %q", job.JobType)
	}

	job.LastError = ""
	if execErr != nil {
		job.LastError = execErr.Error()
	}
	if saveErr := s.store.SaveJob(ctx, job); saveErr != nil {
		s.logger.WithError(saveErr).Warnf("Failed to record run for job %s", job.ID)
	}

	if execErr != nil {
		return execErr
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"duration": s.now().Sub(start).Round(time.Millisecond).String(),
	}).Info("Job execution completed")
	return nil
}

func (s *Scheduler) deliverReport(ctx context.Context, reportID string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if !report.IsScheduled {
		s.logger.Debugf("Report %s no longer scheduled, skipping delivery", reportID)
		return nil
	}
	_, err = s.deliverer.Deliver(ctx, report)
	return err
}

func (s *Scheduler) evaluateAlert(ctx context.Context, alertID string) error {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if !alert.Active {
		s.logger.Debugf("Alert %s inactive, skipping evaluation", alertID)
		return nil
	}
	_, err = s.alerts.Evaluate(ctx, alert)
	return err
}

// sweepLoop is the safety net behind the timers: every interval it asks the
// store for scheduled reports whose next run time has passed and delivers
// them. The first sweep runs immediately so deliveries missed across a
// restart go out without waiting a full interval.
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	s.sweep()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	now := s.now()

	due, err := s.store.DueReports(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("Due-report sweep query failed")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debugf("Sweep found %d due report(s)", len(due))
	for i := range due {
		report := due[i]

		// re-check right before acting: the timer may have fired while the
		// sweep was queued, or the report was unscheduled since the query
		fresh, err := s.store.GetReport(ctx, report.ID)
		if err != nil {
			s.logger.WithError(err).Errorf("Sweep: report %s unreadable", report.ID)
			continue
		}
		if !fresh.IsScheduled || fresh.NextRunAt == nil || fresh.NextRunAt.After(now) {
			continue
		}

		s.inFlight.Add(1)
		if _, err := s.deliverer.Deliver(ctx, fresh); err != nil {
			s.logger.WithFields(logrus.Fields{
				"report_id": fresh.ID,
				"error":     err.Error(),
			}).Error("Sweep delivery failed")
		}
		s.inFlight.Done()
	}
}

var _ reports.Timers = (*Scheduler)(nil)
