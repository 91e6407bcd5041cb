package models

import "time"

// Metric names tracked for the sync pipeline
const (
	MetricJobsProcessed = "jobs_processed"
	MetricJobsFailed    = "jobs_failed"
)

// SyncStat holds one durable pipeline counter. Deltas accumulate in Redis and
// are flushed here with atomic column increments, never absolute writes.
type SyncStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Metric    string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"metric"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
