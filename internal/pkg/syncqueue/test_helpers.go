package syncqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/veloscope/VeloScope/app/models"
	"github.com/veloscope/VeloScope/internal/pkg/strava"
)

// newTestDB opens an isolated in-memory sqlite database with the pipeline
// schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.StravaSubscription{},
		&models.WebhookEvent{},
		&models.SyncJob{},
		&models.ProviderCredential{},
		&models.Activity{},
		&models.SyncStat{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// staticTokens satisfies TokenProvider with a fixed token
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) EnsureAccessToken(ctx context.Context, userID uint) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// fakeFetcher satisfies ActivityFetcher with scripted responses
type fakeFetcher struct {
	activity *strava.DetailedActivity
	err      error
	calls    int
}

func (f *fakeFetcher) GetActivity(ctx context.Context, activityID int64, accessToken string) (*strava.DetailedActivity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.activity, nil
}

// seedEventAndJob creates one pending event with one pending job for it
func seedEventAndJob(t *testing.T, db *gorm.DB, priority int) (*models.WebhookEvent, *models.SyncJob) {
	t.Helper()

	event := &models.WebhookEvent{
		SubscriptionID: 9,
		EventType:      models.EventTypeCreate,
		ObjectType:     "activity",
		ObjectID:       555,
		OwnerID:        42,
		EventTime:      1700000000,
		RawPayload:     "{}",
		Status:         models.EventStatusPending,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}

	job := &models.SyncJob{
		ID:          uuid.New().String(),
		EventID:     event.ID,
		UserID:      7,
		ActivityID:  555,
		JobType:     models.JobTypeFetchActivity,
		Priority:    priority,
		Status:      models.JobStatusPending,
		MaxRetries:  models.DefaultMaxRetries,
		ScheduledAt: time.Now().Add(-time.Second),
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return event, job
}

func rideActivity() *strava.DetailedActivity {
	watts := 213.4
	hr := 148.2
	start := time.Date(2026, 8, 29, 6, 30, 0, 0, time.UTC)
	return &strava.DetailedActivity{
		ID:                 555,
		Name:               "Morning Ride",
		SportType:          "Ride",
		Distance:           40230.5,
		MovingTime:         5400,
		ElapsedTime:        5600,
		TotalElevationGain: 420.5,
		AverageWatts:       &watts,
		AverageHeartrate:   &hr,
		StartDate:          &start,
	}
}
