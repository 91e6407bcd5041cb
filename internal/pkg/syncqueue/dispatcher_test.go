package syncqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veloscope/VeloScope/app/models"
)

func TestDispatch_CreateOutranksUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	dispatcher := NewDispatcher(repo, nil)

	tests := []struct {
		eventType string
		priority  int
	}{
		{models.EventTypeCreate, models.PriorityCreate},
		{models.EventTypeUpdate, models.PriorityUpdate},
	}

	for i, tt := range tests {
		event := &models.WebhookEvent{
			SubscriptionID: 9,
			EventType:      tt.eventType,
			ObjectType:     "activity",
			ObjectID:       int64(600 + i),
			OwnerID:        42,
			EventTime:      1700000000 + int64(i),
			RawPayload:     "{}",
			Status:         models.EventStatusPending,
		}
		require.NoError(t, db.Create(event).Error)

		job, err := dispatcher.Dispatch(context.Background(), event, 7)
		require.NoError(t, err)
		assert.Equal(t, tt.priority, job.Priority, "event_type=%s", tt.eventType)
		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Equal(t, models.JobTypeFetchActivity, job.JobType)
		assert.Equal(t, event.ObjectID, job.ActivityID)
		assert.Equal(t, models.DefaultMaxRetries, job.MaxRetries)
		assert.WithinDuration(t, time.Now(), job.ScheduledAt, 5*time.Second)

		// The job is durable before any wake signal.
		stored, err := repo.GetJob(job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, stored.Status)

		var payload FetchActivityPayload
		require.NoError(t, json.Unmarshal([]byte(stored.Payload), &payload))
		assert.Equal(t, event.ObjectID, payload.ActivityID)
		assert.Equal(t, int64(42), payload.OwnerID)
	}
}
