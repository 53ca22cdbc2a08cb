// Package strava pushes completed activities to the Strava API. The
// surface is deliberately narrow: one Upload call per activity, with the
// external reference stored by the caller only on confirmed success so a
// failed upload is always retryable.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/httputil"
	"github.com/banshee-data/ride.report/internal/monitoring"
	"github.com/banshee-data/ride.report/internal/stats"
	"github.com/banshee-data/ride.report/internal/timeutil"
)

// DefaultBaseURL is the production Strava API host.
const DefaultBaseURL = "https://www.strava.com"

// refreshLeeway refreshes the access token this long before it actually
// expires, so an upload never races the expiry mid-request.
const refreshLeeway = 60 * time.Second

// TokenStore persists the OAuth credential set between refreshes.
// *db.DB implements it.
type TokenStore interface {
	GetStravaTokens() (*db.StravaTokens, error)
	SaveStravaTokens(*db.StravaTokens) error
}

// Client talks to the Strava API for one configured account.
type Client struct {
	// BaseURL is overridable for tests; defaults to DefaultBaseURL.
	BaseURL string

	http         httputil.HTTPClient
	tokens       TokenStore
	clock        timeutil.Clock
	clientID     string
	clientSecret string
}

// NewClient builds a Strava client. A nil httpClient uses the standard
// one; a nil clock uses the real one.
func NewClient(httpClient httputil.HTTPClient, tokens TokenStore, clientID, clientSecret string, clock timeutil.Clock) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Client{
		BaseURL:      DefaultBaseURL,
		http:         httpClient,
		tokens:       tokens,
		clock:        clock,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Upload creates a manual Ride activity on Strava from the aggregated
// statistics and returns Strava's activity id. externalID is our
// idempotency key; Strava rejects a second activity with the same value.
func (c *Client) Upload(ctx context.Context, activity *db.Activity, st *stats.ActivityStats, externalID string) (int64, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return 0, err
	}

	name := fmt.Sprintf("Ride %d", activity.ID)
	if activity.Name != nil && *activity.Name != "" {
		name = *activity.Name
	}

	form := url.Values{
		"name":             {name},
		"type":             {"Ride"},
		"sport_type":       {"Ride"},
		"start_date_local": {st.Start.UTC().Format(time.RFC3339)},
		"elapsed_time":     {strconv.Itoa(int(st.Duration.Seconds()))},
		"distance":         {fmt.Sprintf("%.1f", st.TotalDistance)},
		"description":      {describe(st)},
		"external_id":      {externalID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/api/v3/activities", strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach strava: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read strava response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("strava upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("failed to parse strava response: %w", err)
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("strava response carries no activity id: %s", strings.TrimSpace(string(body)))
	}

	monitoring.Logf("uploaded activity %d to strava as %d", activity.ID, created.ID)
	return created.ID, nil
}

// describe renders the statistics Strava's summary fields can't carry.
func describe(st *stats.ActivityStats) string {
	parts := []string{fmt.Sprintf("%.0f m climbed", st.TotalAltGain)}
	if st.TotalMovingTime != nil {
		parts = append(parts, fmt.Sprintf("%.0f min moving", *st.TotalMovingTime/60))
	}
	if st.MaxSpeed != nil {
		parts = append(parts, fmt.Sprintf("%.1f km/h max", *st.MaxSpeed*3.6))
	}
	return strings.Join(parts, ", ")
}

// accessToken returns a usable access token, refreshing through the
// OAuth refresh-token flow when the stored one is within refreshLeeway
// of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	tokens, err := c.tokens.GetStravaTokens()
	if err != nil {
		return "", fmt.Errorf("no strava credentials stored: %w", err)
	}

	if c.clock.Until(tokens.ExpiresAt) > refreshLeeway {
		return tokens.AccessToken, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to refresh strava token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("strava token refresh failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var refreshed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	updated := &db.StravaTokens{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    time.Unix(refreshed.ExpiresAt, 0).UTC(),
	}
	if err := c.tokens.SaveStravaTokens(updated); err != nil {
		return "", fmt.Errorf("failed to store refreshed tokens: %w", err)
	}

	return updated.AccessToken, nil
}
