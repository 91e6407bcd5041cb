package models

import "time"

// Activity is the normalized record the pipeline writes for each synced
// upstream activity. The unique (user_id, strava_activity_id) key is what
// makes repeated delivery of the same event safe: the worker only ever
// upserts against it. Downstream analytics (training load, CdA, FTP) read
// these rows; nothing in the pipeline mutates them after completion.
type Activity struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index:ux_activities_user_strava,unique,priority:1" json:"user_id"`
	StravaActivityID   int64      `gorm:"not null;index:ux_activities_user_strava,unique,priority:2" json:"strava_activity_id"`
	Name               string     `gorm:"type:varchar(255)" json:"name"`
	SportType          string     `gorm:"type:varchar(50);index" json:"sport_type"`
	DistanceM          float64    `json:"distance_m"`
	MovingTimeS        int        `json:"moving_time_s"`
	ElapsedTimeS       int        `json:"elapsed_time_s"`
	TotalElevationGain float64    `json:"total_elevation_gain"`
	AveragePower       *float64   `gorm:"default:null" json:"average_power,omitempty"`
	AverageHeartRate   *float64   `gorm:"default:null" json:"average_heart_rate,omitempty"`
	StartDate          *time.Time `gorm:"type:timestamp;default:null;index" json:"start_date,omitempty"`
	Trainer            bool       `gorm:"default:false" json:"trainer"`
	RawPayload         string     `gorm:"type:longtext" json:"-"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
