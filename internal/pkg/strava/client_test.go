package strava

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(tokenURL, apiBaseURL string) *Client {
	return &Client{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenURL,
		APIBaseURL:   apiBaseURL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
	}
}

func TestRefreshToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client-id", r.PostFormValue("client_id"))
		assert.Equal(t, "client-secret", r.PostFormValue("client_secret"))
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "old-refresh", r.PostFormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_at":1893456000,"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	tok, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
	assert.Equal(t, int64(1893456000), tok.ExpiresAt)
}

func TestRefreshToken_UpstreamRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Bad Request"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.RefreshToken(context.Background(), "revoked")
	require.Error(t, err)

	var credErr *CredentialError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, http.StatusBadRequest, credErr.StatusCode)
}

func TestRefreshToken_MissingConfig(t *testing.T) {
	c := &Client{HTTPClient: http.DefaultClient}
	_, err := c.RefreshToken(context.Background(), "anything")
	assert.Error(t, err)
}

func TestGetActivity_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activities/555", r.URL.Path)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": 555,
			"name": "Morning Ride",
			"sport_type": "Ride",
			"distance": 40230.5,
			"moving_time": 5400,
			"elapsed_time": 5600,
			"total_elevation_gain": 420.5,
			"average_watts": 213.4,
			"average_heartrate": 148.2,
			"start_date": "2026-08-29T06:30:00Z",
			"trainer": false
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	act, err := c.GetActivity(context.Background(), 555, "access-token")
	require.NoError(t, err)
	assert.Equal(t, int64(555), act.ID)
	assert.Equal(t, "Morning Ride", act.Name)
	assert.Equal(t, "Ride", act.Sport())
	assert.Equal(t, 40230.5, act.Distance)
	assert.Equal(t, 5400, act.MovingTime)
	require.NotNil(t, act.AverageWatts)
	assert.Equal(t, 213.4, *act.AverageWatts)
	require.NotNil(t, act.StartDate)
	assert.Equal(t, time.Date(2026, 8, 29, 6, 30, 0, 0, time.UTC), act.StartDate.UTC())
}

func TestGetActivity_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Record Not Found"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.GetActivity(context.Background(), 404404, "access-token")
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestGetActivity_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Rate Limit Exceeded"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, srv.URL)
	_, err := c.GetActivity(context.Background(), 555, "access-token")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestDetailedActivity_SportFallsBackToType(t *testing.T) {
	a := &DetailedActivity{Type: "Ride"}
	assert.Equal(t, "Ride", a.Sport())
	a.SportType = "GravelRide"
	assert.Equal(t, "GravelRide", a.Sport())
}
