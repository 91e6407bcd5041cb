package models

import "time"

// ProviderStrava is the only upstream provider this pipeline syncs from
const ProviderStrava = "strava"

// ProviderCredential stores OAuth tokens for an external platform account
// linked to a local user. Mutated only on token refresh.
type ProviderCredential struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index" json:"user_id"`
	Provider       string     `gorm:"index:provider_uid,unique;type:varchar(50)" json:"provider"`
	ProviderUserID int64      `gorm:"index:provider_uid,unique" json:"provider_user_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NeedsRefresh reports whether the access token expires within leeway
func (c *ProviderCredential) NeedsRefresh(leeway time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(*c.ExpiresAt) <= leeway
}
