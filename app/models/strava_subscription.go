package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

// StravaSubscription stores the single push subscription registered with the
// upstream platform. Created once at setup; the receiver reads it during the
// verification handshake and to resolve inbound deliveries.
type StravaSubscription struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	StravaSubscriptionID int64     `gorm:"uniqueIndex;not null" json:"strava_subscription_id"`
	VerifyToken          string    `gorm:"type:varchar(100);not null" json:"-"`
	CallbackURL          string    `gorm:"type:varchar(255)" json:"callback_url"`
	Status               string    `gorm:"type:varchar(20);default:'active';index" json:"status"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription accepts deliveries
func (s *StravaSubscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
