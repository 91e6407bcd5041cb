package webhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veloscope/VeloScope/app/models"
)

type fakeDispatcher struct {
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	eventID uint
	userID  uint
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, event *models.WebhookEvent, userID uint) (*models.SyncJob, error) {
	d.calls = append(d.calls, dispatchCall{eventID: event.ID, userID: userID})
	if d.err != nil {
		return nil, d.err
	}
	return &models.SyncJob{ID: "job-1", EventID: event.ID, UserID: userID}, nil
}

func seedSubscription(t *testing.T, db *gorm.DB) *models.StravaSubscription {
	t.Helper()
	sub := &models.StravaSubscription{
		StravaSubscriptionID: 9,
		VerifyToken:          "verify-me",
		CallbackURL:          "https://veloscope.example/webhooks/strava",
		Status:               models.SubscriptionStatusActive,
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func seedOwner(t *testing.T, db *gorm.DB, ownerID int64) *models.User {
	t.Helper()
	user := &models.User{Name: "rider", Email: "rider@example.com"}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.ProviderCredential{
		UserID:         user.ID,
		Provider:       models.ProviderStrava,
		ProviderUserID: ownerID,
		AccessToken:    "token",
		RefreshToken:   "refresh",
	}).Error)
	return user
}

func deliveryBody(t *testing.T, eventType string, objectID, ownerID, subID int64) []byte {
	t.Helper()
	body, err := json.Marshal(EventPayload{
		EventType:      eventType,
		EventTime:      1700000000,
		ObjectID:       objectID,
		ObjectType:     ObjectTypeActivity,
		OwnerID:        ownerID,
		SubscriptionID: subID,
	})
	require.NoError(t, err)
	return body
}

func TestVerifySubscription(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "")

	t.Run("correct token echoes challenge unmodified", func(t *testing.T) {
		echoed, err := svc.VerifySubscription("subscribe", "verify-me", "abc123")
		require.NoError(t, err)
		assert.Equal(t, "abc123", echoed)
	})

	t.Run("wrong token", func(t *testing.T) {
		_, err := svc.VerifySubscription("subscribe", "nope", "abc123")
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})

	t.Run("wrong mode", func(t *testing.T) {
		_, err := svc.VerifySubscription("unsubscribe", "verify-me", "abc123")
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := svc.VerifySubscription("subscribe", "", "abc123")
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})
}

func TestVerifySubscription_NoActiveSubscription(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "")

	_, err := svc.VerifySubscription("subscribe", "verify-me", "abc123")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestReceive_MalformedBody(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "")

	_, err := svc.Receive(context.Background(), []byte("{not json"), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReceive_MissingFields(t *testing.T) {
	db := newTestDB(t)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "")

	_, err := svc.Receive(context.Background(), []byte(`{"event_type":"create","object_type":"activity"}`), "")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReceive_SignatureEnforcedWhenConfigured(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "secret")
	body := deliveryBody(t, models.EventTypeCreate, 555, 42, 9)

	_, err := svc.Receive(context.Background(), body, "sha256=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	res, err := svc.Receive(context.Background(), body, "sha256="+signBody(body, "secret"))
	require.NoError(t, err)
	// Owner 42 has no credential; event is recorded and closed out.
	assert.Equal(t, OutcomeNoAccount, res.Outcome)
}

func TestReceive_FiltersNonActivityAndDeletes(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	dispatcher := &fakeDispatcher{}
	svc := NewServiceFromDB(db, dispatcher, "")

	tests := []struct {
		name string
		body []byte
	}{
		{"athlete object", []byte(`{"event_type":"update","object_type":"athlete","object_id":42,"owner_id":42,"subscription_id":9,"event_time":1700000000}`)},
		{"delete event", deliveryBody(t, models.EventTypeDelete, 555, 42, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Receive(context.Background(), tt.body, "")
			require.NoError(t, err)
			assert.Equal(t, OutcomeIgnored, res.Outcome)
		})
	}

	// Nothing stored, nothing dispatched.
	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, dispatcher.calls)
}

func TestReceive_UnknownSubscriptionAcknowledged(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	svc := NewServiceFromDB(db, &fakeDispatcher{}, "")

	res, err := svc.Receive(context.Background(), deliveryBody(t, models.EventTypeCreate, 555, 42, 777), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReceive_UnknownOwnerCompletesEvent(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	dispatcher := &fakeDispatcher{}
	svc := NewServiceFromDB(db, dispatcher, "")

	res, err := svc.Receive(context.Background(), deliveryBody(t, models.EventTypeCreate, 555, 42, 9), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAccount, res.Outcome)
	assert.Empty(t, dispatcher.calls)

	var event models.WebhookEvent
	require.NoError(t, db.First(&event, res.Event.ID).Error)
	assert.Equal(t, models.EventStatusCompleted, event.Status)
	assert.True(t, event.Processed)
	assert.Equal(t, "no matching account", event.ErrorMessage)
}

func TestReceive_AcceptedDispatchesJob(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	user := seedOwner(t, db, 42)
	dispatcher := &fakeDispatcher{}
	svc := NewServiceFromDB(db, dispatcher, "")

	res, err := svc.Receive(context.Background(), deliveryBody(t, models.EventTypeCreate, 555, 42, 9), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	require.NotNil(t, res.Event)
	assert.Equal(t, models.EventStatusPending, res.Event.Status)

	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, res.Event.ID, dispatcher.calls[0].eventID)
	assert.Equal(t, user.ID, dispatcher.calls[0].userID)
}

func TestReceive_RedeliveryIsDuplicate(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	seedOwner(t, db, 42)
	dispatcher := &fakeDispatcher{}
	svc := NewServiceFromDB(db, dispatcher, "")
	body := deliveryBody(t, models.EventTypeCreate, 555, 42, 9)

	first, err := svc.Receive(context.Background(), body, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, first.Outcome)

	second, err := svc.Receive(context.Background(), body, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.Event.ID, second.Event.ID)

	// Redelivery creates neither a second event nor a second dispatch.
	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, dispatcher.calls, 1)
}

func TestReceive_DispatchFailureStillAccepted(t *testing.T) {
	db := newTestDB(t)
	seedSubscription(t, db)
	seedOwner(t, db, 42)
	dispatcher := &fakeDispatcher{err: assert.AnError}
	svc := NewServiceFromDB(db, dispatcher, "")

	res, err := svc.Receive(context.Background(), deliveryBody(t, models.EventTypeCreate, 555, 42, 9), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, res.Outcome)
	assert.Nil(t, res.Job)

	// Event stays pending for the poller.
	var event models.WebhookEvent
	require.NoError(t, db.First(&event, res.Event.ID).Error)
	assert.Equal(t, models.EventStatusPending, event.Status)
}
