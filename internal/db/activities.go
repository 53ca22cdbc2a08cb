package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity groups consecutive probes into one ride. CreatedAt is the
// receipt time of the probe that opened it.
type Activity struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Name             *string   `json:"name,omitempty"`
	UploadExternalID *string   `json:"upload_external_id,omitempty"`
	StravaActivityID *int64    `json:"strava_activity_id,omitempty"`
}

// Uploaded reports whether Strava has confirmed this activity.
func (a *Activity) Uploaded() bool {
	return a.StravaActivityID != nil
}

const activityColumns = `id, created_at, name, upload_external_id, strava_activity_id`

func scanActivity(row rowScanner) (*Activity, error) {
	var a Activity
	var createdAt int64
	if err := row.Scan(&a.ID, &createdAt, &a.Name, &a.UploadExternalID, &a.StravaActivityID); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

// CreateActivity inserts a new activity and returns its id.
func (tx *Tx) CreateActivity(createdAt time.Time) (int64, error) {
	result, err := tx.Exec(`INSERT INTO activities (created_at) VALUES (?)`, createdAt.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create activity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get activity id: %w", err)
	}

	return id, nil
}

// LatestActivity returns the most recently created activity, or nil when
// none exist yet.
func (tx *Tx) LatestActivity() (*Activity, error) {
	row := tx.QueryRow(`SELECT ` + activityColumns + ` FROM activities ORDER BY id DESC LIMIT 1`)
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest activity: %w", err)
	}
	return activity, nil
}

// LastProbeOf returns the member probe of the activity with the greatest
// id. Every activity has at least one member, so an empty result means the
// membership is corrupt.
func (tx *Tx) LastProbeOf(activityID int64) (*Probe, error) {
	row := tx.QueryRow(`SELECT `+probeColumns+` FROM probes WHERE activity_id = ? ORDER BY id DESC LIMIT 1`, activityID)
	probe, err := scanProbe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %d has no probes: %w", activityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last probe of activity %d: %w", activityID, err)
	}
	return probe, nil
}

// GetActivity returns the activity with the given id.
func (db *DB) GetActivity(id int64) (*Activity, error) {
	row := db.QueryRow(`SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", id, err)
	}
	return activity, nil
}

// ActivitySummary is one row of the activity listing: the activity plus
// its member count.
type ActivitySummary struct {
	Activity
	ProbeCount int64 `json:"probe_count"`
}

// ListActivities returns all activities newest first with member counts.
func (db *DB) ListActivities() ([]ActivitySummary, error) {
	rows, err := db.Query(`
		SELECT a.id, a.created_at, a.name, a.upload_external_id, a.strava_activity_id, COUNT(p.id)
		FROM activities a
		LEFT JOIN probes p ON p.activity_id = a.id
		GROUP BY a.id
		ORDER BY a.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	var summaries []ActivitySummary
	for rows.Next() {
		var s ActivitySummary
		var createdAt int64
		if err := rows.Scan(&s.ID, &createdAt, &s.Name, &s.UploadExternalID, &s.StravaActivityID, &s.ProbeCount); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return summaries, nil
}

// SetActivityName updates the activity's label. The label doubles as the
// upload title.
func (db *DB) SetActivityName(id int64, name string) error {
	result, err := db.Exec(`UPDATE activities SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to set activity name: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check activity update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}

	return nil
}

// MergeActivities moves every probe of the source activity to the target
// and deletes the source, in one transaction. Aggregates are derived from
// membership, so no other state needs rewriting.
func (db *DB) MergeActivities(ctx context.Context, targetID, sourceID int64) error {
	if targetID == sourceID {
		return fmt.Errorf("cannot merge activity %d into itself", sourceID)
	}

	return db.WithTx(ctx, func(tx *Tx) error {
		// Verify both ends exist before touching membership.
		for _, id := range []int64{targetID, sourceID} {
			var exists bool
			if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM activities WHERE id = ?)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check activity %d: %w", id, err)
			}
			if !exists {
				return fmt.Errorf("activity %d: %w", id, ErrNotFound)
			}
		}

		if _, err := tx.Exec(`UPDATE probes SET activity_id = ? WHERE activity_id = ?`, targetID, sourceID); err != nil {
			return fmt.Errorf("failed to reassign probes: %w", err)
		}

		if _, err := tx.Exec(`DELETE FROM activities WHERE id = ?`, sourceID); err != nil {
			return fmt.Errorf("failed to delete source activity: %w", err)
		}

		return nil
	})
}

// EnsureUploadExternalID returns the activity's upload idempotency key,
// assigning and persisting a fresh uuid the first time it is requested.
func (db *DB) EnsureUploadExternalID(id int64) (string, error) {
	activity, err := db.GetActivity(id)
	if err != nil {
		return "", err
	}
	if activity.UploadExternalID != nil && *activity.UploadExternalID != "" {
		return *activity.UploadExternalID, nil
	}

	externalID := uuid.NewString()
	result, err := db.Exec(`UPDATE activities SET upload_external_id = ? WHERE id = ? AND upload_external_id IS NULL`, externalID, id)
	if err != nil {
		return "", fmt.Errorf("failed to store upload external id: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check upload external id update: %w", err)
	}
	if n == 0 {
		// Another caller assigned one first; read the stored value.
		activity, err := db.GetActivity(id)
		if err != nil {
			return "", err
		}
		if activity.UploadExternalID == nil {
			return "", fmt.Errorf("upload external id missing after update for activity %d", id)
		}
		return *activity.UploadExternalID, nil
	}

	return externalID, nil
}

// SetStravaActivityID records the Strava-side id after a confirmed upload.
func (db *DB) SetStravaActivityID(id, stravaID int64) error {
	result, err := db.Exec(`UPDATE activities SET strava_activity_id = ? WHERE id = ?`, stravaID, id)
	if err != nil {
		return fmt.Errorf("failed to set strava activity id: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check strava id update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}

	return nil
}
