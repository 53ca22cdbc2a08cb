package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testBase = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestInsertProbeRoundTrip(t *testing.T) {
	db := newTestDB(t)

	probe := &Probe{
		ReceivedAt: testBase,
		Seq:        101,
		Lat:        floatPtr(47.3769),
		Lon:        floatPtr(8.5417),
		Altitude:   floatPtr(408.5),
		Distance:   160,
		AltGain:    12,
		MaxSpeed:   floatPtr(7.5),
	}

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		id, err := tx.InsertProbe(probe)
		if err != nil {
			return err
		}
		if id == 0 {
			t.Error("expected nonzero probe id")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InsertProbe failed: %v", err)
	}

	probes, err := db.RecentProbes(10)
	if err != nil {
		t.Fatalf("RecentProbes failed: %v", err)
	}
	if len(probes) != 1 {
		t.Fatalf("expected 1 probe, got %d", len(probes))
	}

	got := probes[0]
	if !got.ReceivedAt.Equal(testBase) {
		t.Errorf("ReceivedAt = %v, want %v", got.ReceivedAt, testBase)
	}
	if got.Seq != 101 {
		t.Errorf("Seq = %d, want 101", got.Seq)
	}
	if got.Lat == nil || *got.Lat != 47.3769 {
		t.Errorf("Lat = %v, want 47.3769", got.Lat)
	}
	if got.Distance != 160 {
		t.Errorf("Distance = %v, want 160", got.Distance)
	}
	if got.MaxSpeed == nil || *got.MaxSpeed != 7.5 {
		t.Errorf("MaxSpeed = %v, want 7.5", got.MaxSpeed)
	}
	if got.MovingTime != nil {
		t.Errorf("MovingTime = %v, want nil", got.MovingTime)
	}
	if got.ActivityID != nil {
		t.Errorf("new probe should have no activity, got %v", *got.ActivityID)
	}
}

func TestInsertProbeWithoutFix(t *testing.T) {
	db := newTestDB(t)

	probe := &Probe{
		ReceivedAt: testBase,
		Seq:        1,
		Distance:   0,
		AltGain:    0,
	}
	err := db.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.InsertProbe(probe)
		return err
	})
	if err != nil {
		t.Fatalf("InsertProbe failed: %v", err)
	}

	probes, err := db.RecentProbes(1)
	if err != nil {
		t.Fatalf("RecentProbes failed: %v", err)
	}
	if probes[0].HasFix() {
		t.Error("probe without lat/lon should report no fix")
	}
	if !probes[0].Idle() {
		t.Error("zero-distance probe should be idle")
	}
}

func TestInsertProbeDuplicateSeq(t *testing.T) {
	db := newTestDB(t)

	insertTestProbe(t, db, 42, testBase, 100)

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.InsertProbe(&Probe{ReceivedAt: testBase.Add(5 * time.Minute), Seq: 42, Distance: 50})
		return err
	})
	if !errors.Is(err, ErrDuplicateSeq) {
		t.Fatalf("expected ErrDuplicateSeq, got %v", err)
	}

	// The failed transaction must not leave a second row behind.
	n, err := db.CountProbes()
	if err != nil {
		t.Fatalf("CountProbes failed: %v", err)
	}
	if n != 1 {
		t.Errorf("probe count = %d, want 1", n)
	}
}

func TestProbesBetween(t *testing.T) {
	db := newTestDB(t)

	p1 := insertTestProbe(t, db, 1, testBase, 100)
	p2 := insertTestProbe(t, db, 2, testBase.Add(5*time.Minute), 0)
	p3 := insertTestProbe(t, db, 3, testBase.Add(10*time.Minute), 0)
	p4 := insertTestProbe(t, db, 4, testBase.Add(15*time.Minute), 80)

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		// Bounds are exclusive on both ends.
		between, err := tx.ProbesBetween(p1.ID, p4.ID)
		if err != nil {
			return err
		}
		if len(between) != 2 {
			t.Fatalf("expected 2 probes between, got %d", len(between))
		}
		if between[0].ID != p2.ID || between[1].ID != p3.ID {
			t.Errorf("probes between = [%d %d], want [%d %d]", between[0].ID, between[1].ID, p2.ID, p3.ID)
		}

		// Adjacent ids have nothing between them.
		between, err = tx.ProbesBetween(p1.ID, p2.ID)
		if err != nil {
			return err
		}
		if len(between) != 0 {
			t.Errorf("expected no probes between adjacent ids, got %d", len(between))
		}

		return nil
	})
	if err != nil {
		t.Fatalf("ProbesBetween failed: %v", err)
	}
}

func TestClaimProbes(t *testing.T) {
	db := newTestDB(t)

	p1 := insertTestProbe(t, db, 1, testBase, 100)
	p2 := insertTestProbe(t, db, 2, testBase.Add(5*time.Minute), 0)
	activityID := createTestActivity(t, db, testBase, p1.ID, p2.ID)

	members, err := db.ProbesForActivity(activityID)
	if err != nil {
		t.Fatalf("ProbesForActivity failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	for _, m := range members {
		if m.ActivityID == nil || *m.ActivityID != activityID {
			t.Errorf("probe %d activity = %v, want %d", m.ID, m.ActivityID, activityID)
		}
	}
}

func TestClaimProbesUnknownProbe(t *testing.T) {
	db := newTestDB(t)

	err := db.WithTx(context.Background(), func(tx *Tx) error {
		id, err := tx.CreateActivity(testBase)
		if err != nil {
			return err
		}
		return tx.ClaimProbes(id, []int64{9999})
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentProbesOrderAndLimit(t *testing.T) {
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		insertTestProbe(t, db, int64(i+1), testBase.Add(time.Duration(i)*5*time.Minute), float64(i))
	}

	probes, err := db.RecentProbes(3)
	if err != nil {
		t.Fatalf("RecentProbes failed: %v", err)
	}
	if len(probes) != 3 {
		t.Fatalf("expected 3 probes, got %d", len(probes))
	}

	// Newest first.
	for i := 1; i < len(probes); i++ {
		if probes[i].ReceivedAt.After(probes[i-1].ReceivedAt) {
			t.Errorf("probes out of order at index %d", i)
		}
	}
	if probes[0].Seq != 5 {
		t.Errorf("newest probe seq = %d, want 5", probes[0].Seq)
	}
}

func TestProbesForActivityOrder(t *testing.T) {
	db := newTestDB(t)

	p1 := insertTestProbe(t, db, 1, testBase, 100)
	p2 := insertTestProbe(t, db, 2, testBase.Add(5*time.Minute), 50)
	p3 := insertTestProbe(t, db, 3, testBase.Add(10*time.Minute), 70)
	activityID := createTestActivity(t, db, testBase, p3.ID, p1.ID, p2.ID)

	members, err := db.ProbesForActivity(activityID)
	if err != nil {
		t.Fatalf("ProbesForActivity failed: %v", err)
	}

	// Members come back in id order regardless of claim order.
	want := []int64{p1.ID, p2.ID, p3.ID}
	for i, m := range members {
		if m.ID != want[i] {
			t.Errorf("member[%d].ID = %d, want %d", i, m.ID, want[i])
		}
	}
}

func TestCountProbes(t *testing.T) {
	db := newTestDB(t)

	n, err := db.CountProbes()
	if err != nil {
		t.Fatalf("CountProbes failed: %v", err)
	}
	if n != 0 {
		t.Errorf("empty database count = %d, want 0", n)
	}

	insertTestProbe(t, db, 1, testBase, 10)
	insertTestProbe(t, db, 2, testBase.Add(time.Minute), 20)

	n, err = db.CountProbes()
	if err != nil {
		t.Fatalf("CountProbes failed: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
