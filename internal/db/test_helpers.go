package db

import (
	"context"
	"testing"
	"time"
)

// Helper functions for creating pointer values
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}

// newTestDB opens a fresh in-memory database with the full schema applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// insertTestProbe stores a probe directly, bypassing the ingestion service.
// The probe carries a fix near Zurich and the given distance; mutate the
// returned value for anything more specific.
func insertTestProbe(t *testing.T, db *DB, seq int64, receivedAt time.Time, distance float64) *Probe {
	t.Helper()

	probe := &Probe{
		ReceivedAt: receivedAt,
		Seq:        seq,
		Lat:        floatPtr(47.3769),
		Lon:        floatPtr(8.5417),
		Altitude:   floatPtr(408),
		Distance:   distance,
		AltGain:    0,
		MaxSpeed:   floatPtr(5),
	}

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.InsertProbe(probe)
		return err
	})
	if err != nil {
		t.Fatalf("InsertProbe failed: %v", err)
	}

	return probe
}

// createTestActivity creates an activity and claims the given probes for it.
func createTestActivity(t *testing.T, db *DB, createdAt time.Time, probeIDs ...int64) int64 {
	t.Helper()

	var activityID int64
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		id, err := tx.CreateActivity(createdAt)
		if err != nil {
			return err
		}
		activityID = id
		return tx.ClaimProbes(id, probeIDs)
	})
	if err != nil {
		t.Fatalf("createTestActivity failed: %v", err)
	}

	return activityID
}
