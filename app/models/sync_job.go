package models

import "time"

// SyncJobType defines the type of sync job
type SyncJobType string

const (
	JobTypeFetchActivity SyncJobType = "fetch_activity"
)

// SyncJobStatus defines the status of a sync job
type SyncJobStatus string

const (
	JobStatusPending    SyncJobStatus = "pending"
	JobStatusProcessing SyncJobStatus = "processing"
	JobStatusCompleted  SyncJobStatus = "completed"
	JobStatusFailed     SyncJobStatus = "failed"
)

// Job priorities derived from the event type: freshly created activities are
// synced before metadata updates.
const (
	PriorityCreate = 8
	PriorityUpdate = 5
)

// DefaultMaxRetries is the retry budget for a sync job
const DefaultMaxRetries = 5

// SyncJob is one durable unit of follow-up work derived from a WebhookEvent.
// Retry backoff is expressed purely as a future ScheduledAt; a job becomes
// claimable again once that timestamp elapses, regardless of which process
// scheduled it.
type SyncJob struct {
	ID           string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventID      uint          `gorm:"not null;index" json:"event_id"`
	UserID       uint          `gorm:"not null;index" json:"user_id"`
	ActivityID   int64         `gorm:"not null;index" json:"activity_id"`
	JobType      SyncJobType   `gorm:"type:varchar(50);not null" json:"job_type"`
	Priority     int           `gorm:"not null;default:0" json:"priority"`
	Status       SyncJobStatus `gorm:"type:varchar(20);default:'pending';index:idx_sync_jobs_claim,priority:1" json:"status"`
	RetryCount   int           `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries   int           `gorm:"not null;default:5" json:"max_retries"`
	ScheduledAt  time.Time     `gorm:"not null;index:idx_sync_jobs_claim,priority:2" json:"scheduled_at"`
	StartedAt    *time.Time    `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt  *time.Time    `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	ErrorMessage string        `gorm:"type:text" json:"error_message"`
	Payload      string        `gorm:"type:longtext" json:"payload"`
	CreatedAt    time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsRetryable checks if the job still has retry budget left
func (j *SyncJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// IsTerminal reports whether the job can never transition again
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// PriorityForEventType maps an event type to its job priority
func PriorityForEventType(eventType string) int {
	if eventType == EventTypeCreate {
		return PriorityCreate
	}
	return PriorityUpdate
}
