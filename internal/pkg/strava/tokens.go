package strava

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/veloscope/VeloScope/app/models"
)

// refreshLeeway refreshes tokens slightly before their expiry so an access
// token never goes stale mid-request.
const refreshLeeway = time.Minute

// CredentialRepository provides DB operations on stored provider credentials.
type CredentialRepository interface {
	GetByUserID(userID uint) (*models.ProviderCredential, error)
	GetByProviderUserID(providerUserID int64) (*models.ProviderCredential, error)
	Save(cred *models.ProviderCredential) error
}

type gormCredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a credential repository backed by GORM.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepository{db: db}
}

func (r *gormCredentialRepository) GetByUserID(userID uint) (*models.ProviderCredential, error) {
	var cred models.ProviderCredential
	err := r.db.Where("user_id = ? AND provider = ?", userID, models.ProviderStrava).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *gormCredentialRepository) GetByProviderUserID(providerUserID int64) (*models.ProviderCredential, error) {
	var cred models.ProviderCredential
	err := r.db.Where("provider = ? AND provider_user_id = ?", models.ProviderStrava, providerUserID).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *gormCredentialRepository) Save(cred *models.ProviderCredential) error {
	return r.db.Save(cred).Error
}

// TokenRefresher is the upstream refresh capability the token service needs.
// *Client satisfies it; tests substitute a fake.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// TokenService keeps per-user access tokens usable: it loads the stored
// credential, refreshes it against the upstream token endpoint when it is
// about to expire and persists the rotated token pair.
type TokenService struct {
	repo   CredentialRepository
	client TokenRefresher
}

func NewTokenService(repo CredentialRepository, client TokenRefresher) *TokenService {
	return &TokenService{repo: repo, client: client}
}

// EnsureAccessToken returns a currently valid access token for the user,
// refreshing and persisting the credential if needed.
func (s *TokenService) EnsureAccessToken(ctx context.Context, userID uint) (string, error) {
	cred, err := s.repo.GetByUserID(userID)
	if err != nil {
		return "", fmt.Errorf("load credential for user %d: %w", userID, err)
	}

	if !cred.NeedsRefresh(refreshLeeway) {
		return cred.AccessToken, nil
	}

	tok, err := s.client.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh credential for user %d: %w", userID, err)
	}

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	if tok.ExpiresAt > 0 {
		t := time.Unix(tok.ExpiresAt, 0)
		cred.ExpiresAt = &t
	}
	if err := s.repo.Save(cred); err != nil {
		return "", fmt.Errorf("persist refreshed credential for user %d: %w", userID, err)
	}

	return cred.AccessToken, nil
}
