package strava

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/veloscope/VeloScope/app/models"
)

type fakeRefresher struct {
	calls int
	tok   *TokenResponse
	err   error
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tok, nil
}

func newTokenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProviderCredential{}))
	return db
}

func seedCredential(t *testing.T, db *gorm.DB, expiresAt *time.Time) *models.ProviderCredential {
	t.Helper()
	cred := &models.ProviderCredential{
		UserID:         7,
		Provider:       models.ProviderStrava,
		ProviderUserID: 42,
		AccessToken:    "current-access",
		RefreshToken:   "current-refresh",
		ExpiresAt:      expiresAt,
	}
	require.NoError(t, db.Create(cred).Error)
	return cred
}

func TestEnsureAccessToken_StillValid(t *testing.T) {
	db := newTokenTestDB(t)
	future := time.Now().Add(time.Hour)
	seedCredential(t, db, &future)

	refresher := &fakeRefresher{}
	svc := NewTokenService(NewCredentialRepository(db), refresher)

	token, err := svc.EnsureAccessToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "current-access", token)
	assert.Zero(t, refresher.calls)
}

func TestEnsureAccessToken_ExpiredRefreshesAndPersists(t *testing.T) {
	db := newTokenTestDB(t)
	past := time.Now().Add(-time.Hour)
	seedCredential(t, db, &past)

	newExpiry := time.Now().Add(6 * time.Hour).Unix()
	refresher := &fakeRefresher{tok: &TokenResponse{
		AccessToken:  "rotated-access",
		RefreshToken: "rotated-refresh",
		ExpiresAt:    newExpiry,
	}}
	svc := NewTokenService(NewCredentialRepository(db), refresher)

	token, err := svc.EnsureAccessToken(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", token)
	assert.Equal(t, 1, refresher.calls)

	var stored models.ProviderCredential
	require.NoError(t, db.Where("user_id = ?", 7).First(&stored).Error)
	assert.Equal(t, "rotated-access", stored.AccessToken)
	assert.Equal(t, "rotated-refresh", stored.RefreshToken)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, newExpiry, stored.ExpiresAt.Unix())
}

func TestEnsureAccessToken_RefreshFailure(t *testing.T) {
	db := newTokenTestDB(t)
	past := time.Now().Add(-time.Minute)
	seedCredential(t, db, &past)

	refresher := &fakeRefresher{err: &CredentialError{StatusCode: 400, Body: "revoked"}}
	svc := NewTokenService(NewCredentialRepository(db), refresher)

	_, err := svc.EnsureAccessToken(context.Background(), 7)
	require.Error(t, err)

	// The stored credential is untouched after a failed refresh.
	var stored models.ProviderCredential
	require.NoError(t, db.Where("user_id = ?", 7).First(&stored).Error)
	assert.Equal(t, "current-access", stored.AccessToken)
}

func TestEnsureAccessToken_NoCredential(t *testing.T) {
	db := newTokenTestDB(t)
	svc := NewTokenService(NewCredentialRepository(db), &fakeRefresher{})

	_, err := svc.EnsureAccessToken(context.Background(), 99)
	assert.Error(t, err)
}

func TestCredential_NeedsRefresh(t *testing.T) {
	soon := time.Now().Add(30 * time.Second)
	later := time.Now().Add(time.Hour)

	assert.True(t, (&models.ProviderCredential{ExpiresAt: &soon}).NeedsRefresh(time.Minute))
	assert.False(t, (&models.ProviderCredential{ExpiresAt: &later}).NeedsRefresh(time.Minute))
	assert.False(t, (&models.ProviderCredential{}).NeedsRefresh(time.Minute))
}
