package webhook

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/veloscope/VeloScope/app/models"
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
