package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veloscope/VeloScope/internal/pkg/env"
)

const (
	defaultTokenURL   = "https://www.strava.com/oauth/token"
	defaultAPIBaseURL = "https://www.strava.com/api/v3"
)

// ErrActivityNotFound marks an activity that is gone or private upstream.
// The worker treats it as a benign terminal outcome, not a failure.
var ErrActivityNotFound = errors.New("strava: activity not found")

// APIError is a non-success response from the upstream API. Outcomes other
// than 404 are considered transient and consume retry budget.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CredentialError is a failed token refresh against the upstream OAuth
// endpoint.
type CredentialError struct {
	StatusCode int
	Body       string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("strava token refresh failed: status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	ClientID     string
	ClientSecret string

	TokenURL   string
	APIBaseURL string

	HTTPClient *http.Client
}

// TokenResponse is the upstream token endpoint's refresh response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

// DetailedActivity is the subset of the upstream activity resource the
// pipeline normalizes into local rows.
type DetailedActivity struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	SportType          string     `json:"sport_type"`
	Type               string     `json:"type"`
	Distance           float64    `json:"distance"`
	MovingTime         int        `json:"moving_time"`
	ElapsedTime        int        `json:"elapsed_time"`
	TotalElevationGain float64    `json:"total_elevation_gain"`
	AverageWatts       *float64   `json:"average_watts,omitempty"`
	AverageHeartrate   *float64   `json:"average_heartrate,omitempty"`
	StartDate          *time.Time `json:"start_date,omitempty"`
	Trainer            bool       `json:"trainer"`
}

// Sport returns the activity's sport, preferring the newer sport_type field
func (a *DetailedActivity) Sport() string {
	if a.SportType != "" {
		return a.SportType
	}
	return a.Type
}

func NewClientFromEnv() *Client {
	return &Client{
		ClientID:     strings.TrimSpace(env.GetEnv("STRAVA_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("STRAVA_CLIENT_SECRET", "")),
		TokenURL:     strings.TrimSpace(env.GetEnv("STRAVA_TOKEN_URL", defaultTokenURL)),
		APIBaseURL:   strings.TrimSpace(env.GetEnv("STRAVA_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// RefreshToken exchanges a refresh token for a fresh access token
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("STRAVA_CLIENT_ID/STRAVA_CLIENT_SECRET are not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, errors.New("refresh token is required")
	}

	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", strings.TrimSpace(refreshToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CredentialError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out TokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, errors.New("strava token refresh returned empty access_token")
	}
	return &out, nil
}

// GetActivity fetches one activity by id with the given access token
func (c *Client) GetActivity(ctx context.Context, activityID int64, accessToken string) (*DetailedActivity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, errors.New("access token is required")
	}

	endpoint := fmt.Sprintf("%s/activities/%d", strings.TrimRight(c.APIBaseURL, "/"), activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrActivityNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out DetailedActivity
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("strava: decode activity %d: %w", activityID, err)
	}
	return &out, nil
}
