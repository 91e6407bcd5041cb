package models

import "time"

// EventType values mirror the aspect the upstream platform reports for a
// changed object.
const (
	EventTypeCreate = "create"
	EventTypeUpdate = "update"
	EventTypeDelete = "delete"
)

// WebhookEventStatus is the processing state of a recorded delivery.
type WebhookEventStatus string

const (
	EventStatusPending    WebhookEventStatus = "pending"
	EventStatusProcessing WebhookEventStatus = "processing"
	EventStatusCompleted  WebhookEventStatus = "completed"
	EventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEvent stores one accepted webhook delivery with deduplication
// metadata for idempotent processing. Rows are never deleted; the table is
// the audit log of everything the upstream sender told us.
//
// The upstream sender attaches no delivery id, so the dedup key is the tuple
// it retransmits verbatim on redelivery.
type WebhookEvent struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	SubscriptionID int64              `gorm:"not null;index:ux_webhook_events_delivery,unique,priority:1" json:"subscription_id"`
	EventType      string             `gorm:"type:varchar(20);not null;index:ux_webhook_events_delivery,unique,priority:4" json:"event_type"`
	ObjectType     string             `gorm:"type:varchar(50);not null;index" json:"object_type"`
	ObjectID       int64              `gorm:"not null;index:ux_webhook_events_delivery,unique,priority:3" json:"object_id"`
	OwnerID        int64              `gorm:"not null;index:ux_webhook_events_delivery,unique,priority:2;index" json:"owner_id"`
	EventTime      int64              `gorm:"not null;index:ux_webhook_events_delivery,unique,priority:5" json:"event_time"`
	RawPayload     string             `gorm:"type:longtext;not null" json:"raw_payload"`
	Status         WebhookEventStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Processed      bool               `gorm:"default:false;index" json:"processed"`
	ProcessedAt    *time.Time         `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ErrorMessage   string             `gorm:"type:text" json:"error_message"`
	CreatedAt      time.Time          `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the event has reached a final state
func (e *WebhookEvent) IsTerminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusFailed
}
