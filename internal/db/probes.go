package db

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateSeq reports an insert whose device sequence number is already
// stored. The radio link retries transmissions, so duplicates are expected
// and map to 409 at the HTTP layer.
var ErrDuplicateSeq = errors.New("probe with duplicate seq")

// Probe is one telemetry report from the device, normalized to SI units
// (meters, meters per second, seconds). A probe with Distance == 0 is idle.
// MaxSpeed and MovingTime are alternative payloads: which one is set
// depends on the firmware generation reporting.
type Probe struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Seq        int64     `json:"seq"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Distance   float64   `json:"distance"`
	AltGain    float64   `json:"alt_gain"`
	MaxSpeed   *float64  `json:"max_speed,omitempty"`
	MovingTime *float64  `json:"moving_time,omitempty"`
	ActivityID *int64    `json:"activity_id,omitempty"`
}

// Idle reports whether the probe recorded no movement since the previous
// report. Idle probes never create or extend an activity on their own.
func (p *Probe) Idle() bool {
	return p.Distance == 0
}

// HasFix reports whether the probe carries a GPS position.
func (p *Probe) HasFix() bool {
	return p.Lat != nil && p.Lon != nil
}

const probeColumns = `id, received_at, seq, lat, lon, altitude, distance, alt_gain, max_speed, moving_time, activity_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProbe(row rowScanner) (*Probe, error) {
	var p Probe
	var receivedAt int64
	if err := row.Scan(&p.ID, &receivedAt, &p.Seq, &p.Lat, &p.Lon, &p.Altitude,
		&p.Distance, &p.AltGain, &p.MaxSpeed, &p.MovingTime, &p.ActivityID); err != nil {
		return nil, err
	}
	p.ReceivedAt = time.Unix(receivedAt, 0).UTC()
	return &p, nil
}

// InsertProbe stores a probe with no activity membership and returns its
// id. Membership is assigned by the segmentation engine inside the same
// transaction.
func (tx *Tx) InsertProbe(p *Probe) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO probes (received_at, seq, lat, lon, altitude, distance, alt_gain, max_speed, moving_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ReceivedAt.UTC().Unix(), p.Seq, p.Lat, p.Lon, p.Altitude,
		p.Distance, p.AltGain, p.MaxSpeed, p.MovingTime,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: probes.seq") {
			return 0, fmt.Errorf("seq %d: %w", p.Seq, ErrDuplicateSeq)
		}
		return 0, fmt.Errorf("failed to insert probe: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get probe id: %w", err)
	}

	p.ID = id
	return id, nil
}

// ProbesBetween returns probes with id strictly between afterID and
// beforeID, in id order.
func (tx *Tx) ProbesBetween(afterID, beforeID int64) ([]Probe, error) {
	rows, err := tx.Query(`SELECT `+probeColumns+` FROM probes WHERE id > ? AND id < ? ORDER BY id ASC`,
		afterID, beforeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query probes between %d and %d: %w", afterID, beforeID, err)
	}
	defer rows.Close()

	var probes []Probe
	for rows.Next() {
		probe, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		probes = append(probes, *probe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating probes: %w", err)
	}

	return probes, nil
}

// ClaimProbes assigns the given probes to the activity, in slice order.
func (tx *Tx) ClaimProbes(activityID int64, probeIDs []int64) error {
	for _, probeID := range probeIDs {
		result, err := tx.Exec(`UPDATE probes SET activity_id = ? WHERE id = ?`, activityID, probeID)
		if err != nil {
			return fmt.Errorf("failed to claim probe %d: %w", probeID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check claim of probe %d: %w", probeID, err)
		}
		if n == 0 {
			return fmt.Errorf("probe %d: %w", probeID, ErrNotFound)
		}
	}
	return nil
}

// RecentProbes returns the limit most recent probes by receipt time,
// newest first. The dashboard reads this independent of activity
// membership.
func (db *DB) RecentProbes(limit int) ([]Probe, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`SELECT `+probeColumns+` FROM probes ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent probes: %w", err)
	}
	defer rows.Close()

	var probes []Probe
	for rows.Next() {
		probe, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		probes = append(probes, *probe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating probes: %w", err)
	}

	return probes, nil
}

// ProbesForActivity returns the activity's member probes in id order.
func (db *DB) ProbesForActivity(activityID int64) ([]Probe, error) {
	rows, err := db.Query(`SELECT `+probeColumns+` FROM probes WHERE activity_id = ? ORDER BY id ASC`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query probes for activity %d: %w", activityID, err)
	}
	defer rows.Close()

	var probes []Probe
	for rows.Next() {
		probe, err := scanProbe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		probes = append(probes, *probe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating probes: %w", err)
	}

	return probes, nil
}

// CountProbes returns the total number of stored probes.
func (db *DB) CountProbes() (int64, error) {
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM probes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count probes: %w", err)
	}
	return n, nil
}
