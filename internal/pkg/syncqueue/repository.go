package syncqueue

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veloscope/VeloScope/app/models"
)

// Repository provides the DB operations the dispatcher and workers use. All
// job state transitions out of "pending" go through the conditional update in
// claim, so two workers can never both own a job.
type Repository interface {
	CreateJob(job *models.SyncJob) error
	GetJob(id string) (*models.SyncJob, error)

	// ClaimJob atomically moves one pending job to processing. Returns false
	// when the job was already claimed, finished or rescheduled meanwhile.
	ClaimJob(id string, now time.Time) (bool, error)

	// ClaimNextForEvent claims the highest-priority, oldest due pending job
	// for an event. Returns nil when nothing is claimable.
	ClaimNextForEvent(eventID uint, now time.Time) (*models.SyncJob, error)

	// DueJobs lists pending jobs whose scheduled_at has elapsed, best first.
	DueJobs(now time.Time, limit int) ([]models.SyncJob, error)

	MarkJobCompleted(job *models.SyncJob, now time.Time) error
	ScheduleRetry(job *models.SyncJob, errorMessage string, at time.Time) error
	MarkJobFailed(job *models.SyncJob, errorMessage string, now time.Time) error

	MarkEventCompleted(eventID uint, errorMessage string) error
	MarkEventFailed(eventID uint, errorMessage string) error

	UpsertActivity(activity *models.Activity) error

	// RequeueStuck returns jobs stuck in processing since before cutoff to
	// pending. Covers workers that died mid-job.
	RequeueStuck(cutoff time.Time) (int64, error)

	CountJobsByStatus() (map[models.SyncJobStatus]int64, error)
	IncrementStat(metric string, delta int64) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a sync queue repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateJob(job *models.SyncJob) error {
	return r.db.Create(job).Error
}

func (r *gormRepository) GetJob(id string) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *gormRepository) ClaimJob(id string, now time.Time) (bool, error) {
	res := r.db.Model(&models.SyncJob{}).
		Where("id = ? AND status = ? AND scheduled_at <= ?", id, models.JobStatusPending, now).
		Updates(map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"started_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ClaimNextForEvent(eventID uint, now time.Time) (*models.SyncJob, error) {
	var candidates []models.SyncJob
	err := r.db.
		Where("event_id = ? AND status = ? AND scheduled_at <= ?", eventID, models.JobStatusPending, now).
		Order("priority DESC, created_at ASC").
		Limit(5).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		claimed, err := r.ClaimJob(candidates[i].ID, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			job := candidates[i]
			job.Status = models.JobStatusProcessing
			job.StartedAt = &now
			return &job, nil
		}
		// Lost the race for this candidate; try the next one.
	}
	return nil, nil
}

func (r *gormRepository) DueJobs(now time.Time, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := r.db.
		Where("status = ? AND scheduled_at <= ?", models.JobStatusPending, now).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *gormRepository) MarkJobCompleted(job *models.SyncJob, now time.Time) error {
	return r.db.Model(&models.SyncJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":        models.JobStatusCompleted,
		"completed_at":  &now,
		"error_message": "",
	}).Error
}

func (r *gormRepository) ScheduleRetry(job *models.SyncJob, errorMessage string, at time.Time) error {
	return r.db.Model(&models.SyncJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":        models.JobStatusPending,
		"retry_count":   job.RetryCount,
		"scheduled_at":  at,
		"started_at":    nil,
		"error_message": errorMessage,
	}).Error
}

func (r *gormRepository) MarkJobFailed(job *models.SyncJob, errorMessage string, now time.Time) error {
	return r.db.Model(&models.SyncJob{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
		"status":        models.JobStatusFailed,
		"retry_count":   job.RetryCount,
		"completed_at":  &now,
		"error_message": errorMessage,
	}).Error
}

func (r *gormRepository) MarkEventCompleted(eventID uint, errorMessage string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"status":        models.EventStatusCompleted,
		"processed":     true,
		"processed_at":  &now,
		"error_message": errorMessage,
	}).Error
}

func (r *gormRepository) MarkEventFailed(eventID uint, errorMessage string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"status":        models.EventStatusFailed,
		"processed":     true,
		"processed_at":  &now,
		"error_message": errorMessage,
	}).Error
}

// UpsertActivity inserts or updates the normalized record keyed by
// (user_id, strava_activity_id). Repeated application with the same input
// yields the same end state.
func (r *gormRepository) UpsertActivity(activity *models.Activity) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "strava_activity_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"sport_type",
			"distance_m",
			"moving_time_s",
			"elapsed_time_s",
			"total_elevation_gain",
			"average_power",
			"average_heart_rate",
			"start_date",
			"trainer",
			"raw_payload",
			"updated_at",
		}),
	}).Create(activity).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("user_id = ? AND strava_activity_id = ?", activity.UserID, activity.StravaActivityID).
		First(activity).Error
}

func (r *gormRepository) RequeueStuck(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.SyncJob{}).
		Where("status = ? AND started_at < ?", models.JobStatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":        models.JobStatusPending,
			"started_at":    nil,
			"error_message": "recovered by sweeper",
		})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CountJobsByStatus() (map[models.SyncJobStatus]int64, error) {
	type row struct {
		Status models.SyncJobStatus
		N      int64
	}
	var rows []row
	err := r.db.Model(&models.SyncJob{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.SyncJobStatus]int64, len(rows))
	for _, rw := range rows {
		out[rw.Status] = rw.N
	}
	return out, nil
}

// IncrementStat applies a counter delta with column arithmetic. Never writes
// an absolute value, so concurrent flushes cannot clobber each other.
func (r *gormRepository) IncrementStat(metric string, delta int64) error {
	res := r.db.Model(&models.SyncStat{}).
		Where("metric = ?", metric).
		UpdateColumn("count", gorm.Expr("count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "metric"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + ?", delta)}),
	}).Create(&models.SyncStat{Metric: metric, Count: delta}).Error
}
