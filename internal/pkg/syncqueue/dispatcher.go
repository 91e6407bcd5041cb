package syncqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veloscope/VeloScope/app/models"
)

// WakeListKey is the Redis list a worker blocks on. Entries are event ids;
// the poller makes the pipeline correct without it, the list just trims the
// latency between dispatch and first claim.
const WakeListKey = "sync_jobs:wake"

// FetchActivityPayload is the job payload for fetch_activity jobs
type FetchActivityPayload struct {
	ActivityID int64 `json:"activity_id"`
	OwnerID    int64 `json:"owner_id"`
}

// Dispatcher translates one recorded webhook event into one prioritized sync
// job and wakes a worker. Wake failures are logged and swallowed; the job is
// already durable.
type Dispatcher struct {
	repo Repository
	rdb  *redis.Client
}

// NewDispatcher creates a dispatcher. rdb may be nil (tests, degraded mode),
// in which case only the poller picks jobs up.
func NewDispatcher(repo Repository, rdb *redis.Client) *Dispatcher {
	return &Dispatcher{repo: repo, rdb: rdb}
}

// Dispatch persists a pending fetch_activity job for the event and pushes a
// wake signal. Creates outrank updates.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.WebhookEvent, userID uint) (*models.SyncJob, error) {
	payload, err := json.Marshal(FetchActivityPayload{
		ActivityID: event.ObjectID,
		OwnerID:    event.OwnerID,
	})
	if err != nil {
		return nil, err
	}

	job := &models.SyncJob{
		ID:          uuid.New().String(),
		EventID:     event.ID,
		UserID:      userID,
		ActivityID:  event.ObjectID,
		JobType:     models.JobTypeFetchActivity,
		Priority:    models.PriorityForEventType(event.EventType),
		Status:      models.JobStatusPending,
		MaxRetries:  models.DefaultMaxRetries,
		ScheduledAt: time.Now(),
		Payload:     string(payload),
	}
	if err := d.repo.CreateJob(job); err != nil {
		return nil, err
	}
	log.Infof("[SyncQueue] Dispatched job %s (event %d, activity %d, priority %d)",
		job.ID, job.EventID, job.ActivityID, job.Priority)

	if d.rdb != nil {
		if err := d.rdb.LPush(ctx, WakeListKey, event.ID).Err(); err != nil {
			log.Errorf("[SyncQueue] Wake push for event %d failed: %v", event.ID, err)
		}
	}
	return job, nil
}
