package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/veloscope/VeloScope/app/models"
)

// ObjectTypeActivity is the only object type the pipeline syncs
const ObjectTypeActivity = "activity"

var (
	// ErrInvalidPayload marks a malformed or incomplete delivery body (400)
	ErrInvalidPayload = errors.New("webhook: invalid payload")
	// ErrInvalidSignature marks a failed HMAC check (403)
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrVerificationFailed marks a failed subscription handshake (403)
	ErrVerificationFailed = errors.New("webhook: verification failed")
)

// EventPayload is the structured body of one inbound delivery.
type EventPayload struct {
	EventType      string            `json:"event_type"`
	EventTime      int64             `json:"event_time"`
	ObjectID       int64             `json:"object_id"`
	ObjectType     string            `json:"object_type"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	Updates        map[string]string `json:"updates,omitempty"`
}

// Dispatcher turns a recorded event into follow-up work. Implemented by
// syncqueue.Dispatcher; the indirection keeps this package free of queue
// internals.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.WebhookEvent, userID uint) (*models.SyncJob, error)
}

// ReceiveOutcome says what the receiver did with a delivery. Everything but
// the error cases is acknowledged with 200 upstream.
type ReceiveOutcome string

const (
	OutcomeAccepted  ReceiveOutcome = "accepted"  // event recorded, job dispatched
	OutcomeIgnored   ReceiveOutcome = "ignored"   // filtered out before storage
	OutcomeDuplicate ReceiveOutcome = "duplicate" // redelivery of a stored event
	OutcomeNoAccount ReceiveOutcome = "no_account"
)

// ReceiveResult carries the outcome plus whatever rows were touched.
type ReceiveResult struct {
	Outcome ReceiveOutcome
	Event   *models.WebhookEvent
	Job     *models.SyncJob
}

// Service is the webhook receiver: it validates and durably records inbound
// deliveries, resolves them to a local account and hands them to the
// dispatcher. It never blocks the response on job execution.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	secret     string
}

// NewService creates the receiver. secret may be empty, in which case
// signature verification is skipped (the upstream sender does not sign by
// default).
func NewService(repo Repository, dispatcher Dispatcher, secret string) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, secret: secret}
}

// NewServiceFromDB creates the receiver from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, dispatcher Dispatcher, secret string) *Service {
	return NewService(NewRepository(db), dispatcher, secret)
}

// VerifySubscription handles the subscription handshake: the challenge is
// echoed back only when the token matches the active subscription and the
// mode is "subscribe".
func (s *Service) VerifySubscription(mode, verifyToken, challenge string) (string, error) {
	if mode != "subscribe" || verifyToken == "" {
		return "", ErrVerificationFailed
	}

	sub, err := s.repo.GetActiveSubscription()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrVerificationFailed
		}
		return "", fmt.Errorf("load active subscription: %w", err)
	}
	if sub.VerifyToken != verifyToken {
		return "", ErrVerificationFailed
	}
	return challenge, nil
}

// Receive processes one delivery body. Errors detected before the event row
// exists surface as HTTP failures; after that everything is swallowed into
// job bookkeeping so the sender never redelivers a stored event.
func (s *Service) Receive(ctx context.Context, rawBody []byte, signatureHeader string) (*ReceiveResult, error) {
	if s.secret != "" && signatureHeader != "" {
		if !VerifySignature(rawBody, signatureHeader, s.secret) {
			return nil, ErrInvalidSignature
		}
	}

	var payload EventPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.EventType == "" || payload.ObjectType == "" || payload.ObjectID == 0 || payload.OwnerID == 0 {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidPayload)
	}

	// Only activity create/update deliveries produce work. Everything else
	// is acknowledged and dropped without a row.
	if payload.ObjectType != ObjectTypeActivity ||
		(payload.EventType != models.EventTypeCreate && payload.EventType != models.EventTypeUpdate) {
		return &ReceiveResult{Outcome: OutcomeIgnored}, nil
	}

	sub, err := s.repo.GetSubscriptionByStravaID(payload.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown subscription: acknowledge without storing so the
			// sender does not enter a redelivery storm.
			log.Warnf("[Webhook] Ignoring delivery for unknown subscription %d", payload.SubscriptionID)
			return &ReceiveResult{Outcome: OutcomeIgnored}, nil
		}
		return nil, fmt.Errorf("resolve subscription %d: %w", payload.SubscriptionID, err)
	}

	event := &models.WebhookEvent{
		SubscriptionID: sub.StravaSubscriptionID,
		EventType:      payload.EventType,
		ObjectType:     payload.ObjectType,
		ObjectID:       payload.ObjectID,
		OwnerID:        payload.OwnerID,
		EventTime:      payload.EventTime,
		RawPayload:     string(rawBody),
		Status:         models.EventStatusPending,
	}
	created, stored, err := s.repo.CreateEventIfNotExists(event)
	if err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	if !created {
		log.Infof("[Webhook] Duplicate delivery for event %d (object %d)", stored.ID, stored.ObjectID)
		return &ReceiveResult{Outcome: OutcomeDuplicate, Event: stored}, nil
	}

	cred, err := s.repo.GetCredentialByOwner(payload.OwnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = s.repo.MarkEventCompleted(stored.ID, "no matching account")
			return &ReceiveResult{Outcome: OutcomeNoAccount, Event: stored}, nil
		}
		// Event is stored; swallow the lookup failure so the sender does
		// not redeliver and duplicate the row.
		log.Errorf("[Webhook] Credential lookup for owner %d failed: %v", payload.OwnerID, err)
		return &ReceiveResult{Outcome: OutcomeAccepted, Event: stored}, nil
	}

	job, err := s.dispatcher.Dispatch(ctx, stored, cred.UserID)
	if err != nil {
		// Fire-and-forget: the event stays pending and the poller will pick
		// up any job the dispatcher managed to persist.
		log.Errorf("[Webhook] Dispatch for event %d failed: %v", stored.ID, err)
		return &ReceiveResult{Outcome: OutcomeAccepted, Event: stored}, nil
	}

	return &ReceiveResult{Outcome: OutcomeAccepted, Event: stored, Job: job}, nil
}
