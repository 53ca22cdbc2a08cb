// Package segment implements the incremental activity segmentation engine.
// Probes arrive one at a time; each non-idle probe either extends the most
// recent activity, pulling every probe recorded since that activity's last
// member in with it, or opens a new activity when the inactivity gap is
// too large.
package segment

import (
	"fmt"
	"time"

	"github.com/banshee-data/ride.report/internal/db"
)

// DefaultThreshold is the inactivity gap that closes an activity. The
// device reports every few minutes while moving and every 20 minutes
// parked, so an hour of stillness means the ride is over.
const DefaultThreshold = time.Hour

// Store is the storage surface the engine drives. *db.Tx implements it, so
// assignment runs inside the same transaction as the probe insert.
type Store interface {
	// LatestActivity returns the most recently created activity, or nil
	// when none exists.
	LatestActivity() (*db.Activity, error)
	// LastProbeOf returns the activity's member probe with the greatest id.
	LastProbeOf(activityID int64) (*db.Probe, error)
	// ProbesBetween returns probes with id strictly between afterID and
	// beforeID, in id order.
	ProbesBetween(afterID, beforeID int64) ([]db.Probe, error)
	// CreateActivity inserts a new activity and returns its id.
	CreateActivity(createdAt time.Time) (int64, error)
	// ClaimProbes assigns the given probes to the activity, in slice order.
	ClaimProbes(activityID int64, probeIDs []int64) error
}

// Engine decides activity membership for newly stored probes.
type Engine struct {
	// Threshold is the inactivity gap at or above which a new probe starts
	// a new activity instead of extending the previous one.
	Threshold time.Duration
}

// NewEngine returns an engine with the given threshold, falling back to
// DefaultThreshold for zero or negative values.
func NewEngine(threshold time.Duration) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{Threshold: threshold}
}

// Assign runs the segmentation step for a just-stored probe. It returns
// the id of the activity the probe joined and whether it was assigned at
// all; idle probes stay unassigned until a later non-idle probe backfills
// them. Assign must be called exactly once per probe, in storage order.
func (e *Engine) Assign(store Store, p *db.Probe) (int64, bool, error) {
	if p.Idle() {
		return 0, false, nil
	}

	latest, err := store.LatestActivity()
	if err != nil {
		return 0, false, err
	}
	if latest == nil {
		return e.startActivity(store, p)
	}

	last, err := store.LastProbeOf(latest.ID)
	if err != nil {
		return 0, false, err
	}

	// The gap is measured between receipt times of the new probe and the
	// activity's last member. Only a gap of at least Threshold starts
	// fresh; equal receipt times always extend.
	if gap := p.ReceivedAt.Sub(last.ReceivedAt); gap >= e.Threshold {
		return e.startActivity(store, p)
	}

	// Continuation: everything recorded since the activity's last member
	// joins it along with p, idle probes included.
	between, err := store.ProbesBetween(last.ID, p.ID)
	if err != nil {
		return 0, false, err
	}

	ids := make([]int64, 0, len(between)+1)
	for i := range between {
		ids = append(ids, between[i].ID)
	}
	ids = append(ids, p.ID)

	if err := store.ClaimProbes(latest.ID, ids); err != nil {
		return 0, false, fmt.Errorf("failed to extend activity %d: %w", latest.ID, err)
	}

	return latest.ID, true, nil
}

// startActivity opens a new activity seeded with p. Earlier unassigned
// probes stay that way; a new activity never reaches backwards.
func (e *Engine) startActivity(store Store, p *db.Probe) (int64, bool, error) {
	activityID, err := store.CreateActivity(p.ReceivedAt)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create activity: %w", err)
	}

	if err := store.ClaimProbes(activityID, []int64{p.ID}); err != nil {
		return 0, false, fmt.Errorf("failed to claim probe %d for activity %d: %w", p.ID, activityID, err)
	}

	return activityID, true, nil
}
