package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/veloscope/VeloScope/app/models"
	"github.com/veloscope/VeloScope/internal/pkg/strava"
)

const (
	// DefaultWorkers is the number of concurrent wake-list consumers
	DefaultWorkers = 3

	// fetchTimeout bounds one upstream activity fetch so a stuck call can
	// never hold a job in processing past the sweeper's patience.
	fetchTimeout = 30 * time.Second

	backoffBase = time.Second
	// BackoffMax caps the retry delay
	BackoffMax = 30 * time.Second
)

// Backoff returns the delay before a job with the given retry count becomes
// claimable again: min(2^retryCount x 1000ms, 30000ms).
func Backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	if retryCount > 30 {
		return BackoffMax
	}
	d := backoffBase << uint(retryCount)
	if d > BackoffMax {
		return BackoffMax
	}
	return d
}

// TokenProvider yields a valid upstream access token for a user.
// *strava.TokenService satisfies it.
type TokenProvider interface {
	EnsureAccessToken(ctx context.Context, userID uint) (string, error)
}

// ActivityFetcher is the upstream fetch-by-id capability. *strava.Client
// satisfies it.
type ActivityFetcher interface {
	GetActivity(ctx context.Context, activityID int64, accessToken string) (*strava.DetailedActivity, error)
}

// Stats receives best-effort counter increments. May be nil.
type Stats interface {
	AddProcessed(ctx context.Context)
	AddFailed(ctx context.Context)
}

// Queue executes sync jobs. Workers block on the Redis wake list for low
// latency; the manager's poll ticker claims due jobs independently, so a
// lost wake signal or absent Redis only delays work, never drops it.
type Queue struct {
	repo    Repository
	tokens  TokenProvider
	fetcher ActivityFetcher
	rdb     *redis.Client
	stats   Stats

	workers int
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a job queue. rdb and stats may be nil.
func NewQueue(repo Repository, tokens TokenProvider, fetcher ActivityFetcher, rdb *redis.Client, stats Stats, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		repo:    repo,
		tokens:  tokens,
		fetcher: fetcher,
		rdb:     rdb,
		stats:   stats,
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the wake-list workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[SyncQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
}

// Stop stops the workers and waits for in-flight jobs
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[SyncQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[SyncQueue] All workers stopped")
}

// worker consumes event ids from the wake list
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[SyncQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[SyncQueue] Worker %d stopping", id)
			return
		default:
			if q.rdb == nil {
				// No wake channel; the poller drives everything.
				time.Sleep(time.Second)
				continue
			}

			res, err := q.rdb.BRPop(ctx, time.Second, WakeListKey).Result()
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[SyncQueue] Worker %d: wake list error: %v", id, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}

			eventID, err := strconv.ParseUint(res[1], 10, 64)
			if err != nil {
				log.Errorf("[SyncQueue] Worker %d: bad wake entry %q", id, res[1])
				continue
			}
			q.ProcessEvent(ctx, uint(eventID))
		}
	}
}

// ProcessEvent claims and runs every due job for the event
func (q *Queue) ProcessEvent(ctx context.Context, eventID uint) {
	for {
		job, err := q.repo.ClaimNextForEvent(eventID, time.Now())
		if err != nil {
			log.Errorf("[SyncQueue] Claim for event %d failed: %v", eventID, err)
			return
		}
		if job == nil {
			return
		}
		q.processJob(ctx, job)
	}
}

// PollOnce claims and runs due jobs regardless of wake signals. Called by
// the manager's poll ticker; this is what materializes retry backoff.
func (q *Queue) PollOnce(ctx context.Context) error {
	now := time.Now()
	jobs, err := q.repo.DueJobs(now, q.workers*4)
	if err != nil {
		return err
	}

	for i := range jobs {
		claimed, err := q.repo.ClaimJob(jobs[i].ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			// A wake-path worker got there first.
			continue
		}
		job := jobs[i]
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		q.processJob(ctx, &job)
	}
	return nil
}

// processJob runs one claimed job to its next state: completed, rescheduled
// or failed.
func (q *Queue) processJob(ctx context.Context, job *models.SyncJob) {
	log.Infof("[SyncQueue] Processing job %s (event %d, activity %d, attempt %d/%d)",
		job.ID, job.EventID, job.ActivityID, job.RetryCount+1, job.MaxRetries)

	token, err := q.tokens.EnsureAccessToken(ctx, job.UserID)
	if err != nil {
		q.handleFailure(ctx, job, err)
		return
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	activity, err := q.fetcher.GetActivity(fctx, job.ActivityID, token)
	cancel()

	if errors.Is(err, strava.ErrActivityNotFound) {
		// Deleted or made private upstream: terminal success, nothing to
		// store, retry budget untouched.
		log.Infof("[SyncQueue] Job %s: activity %d gone upstream, completing", job.ID, job.ActivityID)
		now := time.Now()
		if err := q.repo.MarkJobCompleted(job, now); err != nil {
			log.Errorf("[SyncQueue] Job %s: complete after not-found failed: %v", job.ID, err)
			return
		}
		if err := q.repo.MarkEventCompleted(job.EventID, "activity not available upstream"); err != nil {
			log.Errorf("[SyncQueue] Job %s: event %d completion failed: %v", job.ID, job.EventID, err)
		}
		q.addProcessed(ctx)
		return
	}
	if err != nil {
		q.handleFailure(ctx, job, err)
		return
	}

	record, err := normalizeActivity(job.UserID, activity)
	if err != nil {
		q.handleFailure(ctx, job, err)
		return
	}
	if err := q.repo.UpsertActivity(record); err != nil {
		q.handleFailure(ctx, job, err)
		return
	}

	now := time.Now()
	if err := q.repo.MarkJobCompleted(job, now); err != nil {
		log.Errorf("[SyncQueue] Job %s: completion update failed: %v", job.ID, err)
		return
	}
	if err := q.repo.MarkEventCompleted(job.EventID, ""); err != nil {
		log.Errorf("[SyncQueue] Job %s: event %d completion failed: %v", job.ID, job.EventID, err)
	}
	q.addProcessed(ctx)
	log.Infof("[SyncQueue] Job %s completed (activity %d)", job.ID, record.StravaActivityID)
}

// handleFailure applies the retry policy: reschedule with exponential
// backoff while budget remains, otherwise fail terminally.
func (q *Queue) handleFailure(ctx context.Context, job *models.SyncJob, cause error) {
	job.RetryCount++
	now := time.Now()

	if job.RetryCount >= job.MaxRetries {
		log.Errorf("[SyncQueue] Job %s permanently failed after %d attempts: %v", job.ID, job.RetryCount, cause)
		if err := q.repo.MarkJobFailed(job, cause.Error(), now); err != nil {
			log.Errorf("[SyncQueue] Job %s: failure update failed: %v", job.ID, err)
			return
		}
		if err := q.repo.MarkEventFailed(job.EventID, cause.Error()); err != nil {
			log.Errorf("[SyncQueue] Job %s: event %d failure update failed: %v", job.ID, job.EventID, err)
		}
		q.addFailed(ctx)
		return
	}

	delay := Backoff(job.RetryCount)
	log.Warnf("[SyncQueue] Job %s failed (attempt %d/%d), retrying in %s: %v",
		job.ID, job.RetryCount, job.MaxRetries, delay, cause)
	if err := q.repo.ScheduleRetry(job, cause.Error(), now.Add(delay)); err != nil {
		log.Errorf("[SyncQueue] Job %s: retry scheduling failed: %v", job.ID, err)
	}
}

func (q *Queue) addProcessed(ctx context.Context) {
	if q.stats != nil {
		q.stats.AddProcessed(ctx)
	}
}

func (q *Queue) addFailed(ctx context.Context) {
	if q.stats != nil {
		q.stats.AddFailed(ctx)
	}
}

// normalizeActivity maps the upstream resource into the local schema
func normalizeActivity(userID uint, a *strava.DetailedActivity) (*models.Activity, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return &models.Activity{
		UserID:             userID,
		StravaActivityID:   a.ID,
		Name:               a.Name,
		SportType:          a.Sport(),
		DistanceM:          a.Distance,
		MovingTimeS:        a.MovingTime,
		ElapsedTimeS:       a.ElapsedTime,
		TotalElevationGain: a.TotalElevationGain,
		AveragePower:       a.AverageWatts,
		AverageHeartRate:   a.AverageHeartrate,
		StartDate:          a.StartDate,
		Trainer:            a.Trainer,
		RawPayload:         string(raw),
	}, nil
}
