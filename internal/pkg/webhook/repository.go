package webhook

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veloscope/VeloScope/app/models"
)

// Repository provides DB operations used by the webhook receiver.
type Repository interface {
	GetActiveSubscription() (*models.StravaSubscription, error)
	GetSubscriptionByStravaID(stravaSubscriptionID int64) (*models.StravaSubscription, error)
	CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkEventCompleted(id uint, errorMessage string) error
	GetCredentialByOwner(ownerID int64) (*models.ProviderCredential, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a webhook repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetActiveSubscription() (*models.StravaSubscription, error) {
	var sub models.StravaSubscription
	err := r.db.Where("status = ?", models.SubscriptionStatusActive).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByStravaID(stravaSubscriptionID int64) (*models.StravaSubscription, error) {
	var sub models.StravaSubscription
	err := r.db.
		Where("strava_subscription_id = ? AND status = ?", stravaSubscriptionID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateEventIfNotExists inserts a delivery exactly once. Redeliveries hit
// the unique delivery index and are reported as not-created with the stored
// row returned.
func (r *gormRepository) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscription_id"},
			{Name: "owner_id"},
			{Name: "object_id"},
			{Name: "event_type"},
			{Name: "event_time"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.
		Where("subscription_id = ? AND owner_id = ? AND object_id = ? AND event_type = ? AND event_time = ?",
			event.SubscriptionID, event.OwnerID, event.ObjectID, event.EventType, event.EventTime).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventCompleted(id uint, errorMessage string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        models.EventStatusCompleted,
		"processed":     true,
		"processed_at":  &now,
		"error_message": errorMessage,
	}).Error
}

func (r *gormRepository) GetCredentialByOwner(ownerID int64) (*models.ProviderCredential, error) {
	var cred models.ProviderCredential
	err := r.db.Where("provider = ? AND provider_user_id = ?", models.ProviderStrava, ownerID).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
