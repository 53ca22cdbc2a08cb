package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StravaTokens is the stored OAuth credential set for the configured
// Strava account. ExpiresAt is the access token expiry.
type StravaTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GetStravaTokens returns the stored credential set.
func (db *DB) GetStravaTokens() (*StravaTokens, error) {
	var t StravaTokens
	var expiresAt int64
	err := db.QueryRow(`SELECT access_token, refresh_token, expires_at FROM strava_tokens WHERE id = 1`).
		Scan(&t.AccessToken, &t.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("strava tokens: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strava tokens: %w", err)
	}

	t.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &t, nil
}

// SaveStravaTokens stores the credential set, replacing any existing row.
func (db *DB) SaveStravaTokens(t *StravaTokens) error {
	_, err := db.Exec(`
		INSERT INTO strava_tokens (id, access_token, refresh_token, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at`,
		t.AccessToken, t.RefreshToken, t.ExpiresAt.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save strava tokens: %w", err)
	}
	return nil
}
