package segment

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/ride.report/internal/db"
)

var base = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store holding probes in id order.
type fakeStore struct {
	probes     []*db.Probe
	activities []*db.Activity
	claims     [][]int64
	nextProbe  int64
	nextAct    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextProbe: 1, nextAct: 1}
}

func (s *fakeStore) addProbe(receivedAt time.Time, distance float64) *db.Probe {
	p := &db.Probe{
		ID:         s.nextProbe,
		ReceivedAt: receivedAt,
		Seq:        s.nextProbe,
		Distance:   distance,
	}
	s.nextProbe++
	s.probes = append(s.probes, p)
	return p
}

func (s *fakeStore) LatestActivity() (*db.Activity, error) {
	if len(s.activities) == 0 {
		return nil, nil
	}
	return s.activities[len(s.activities)-1], nil
}

func (s *fakeStore) LastProbeOf(activityID int64) (*db.Probe, error) {
	for i := len(s.probes) - 1; i >= 0; i-- {
		if p := s.probes[i]; p.ActivityID != nil && *p.ActivityID == activityID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("activity %d has no probes", activityID)
}

func (s *fakeStore) ProbesBetween(afterID, beforeID int64) ([]db.Probe, error) {
	var out []db.Probe
	for _, p := range s.probes {
		if p.ID > afterID && p.ID < beforeID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateActivity(createdAt time.Time) (int64, error) {
	a := &db.Activity{ID: s.nextAct, CreatedAt: createdAt}
	s.nextAct++
	s.activities = append(s.activities, a)
	return a.ID, nil
}

func (s *fakeStore) ClaimProbes(activityID int64, probeIDs []int64) error {
	s.claims = append(s.claims, append([]int64(nil), probeIDs...))
	for _, id := range probeIDs {
		found := false
		for _, p := range s.probes {
			if p.ID == id {
				aid := activityID
				p.ActivityID = &aid
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("probe %d not found", id)
		}
	}
	return nil
}

// membership returns the ids of the activity's member probes in id order.
func (s *fakeStore) membership(activityID int64) []int64 {
	var out []int64
	for _, p := range s.probes {
		if p.ActivityID != nil && *p.ActivityID == activityID {
			out = append(out, p.ID)
		}
	}
	return out
}

// assign runs the engine for the given probe and fails the test on error.
func assign(t *testing.T, e *Engine, s *fakeStore, p *db.Probe) (int64, bool) {
	t.Helper()
	activityID, assigned, err := e.Assign(s, p)
	if err != nil {
		t.Fatalf("Assign(%d) failed: %v", p.ID, err)
	}
	return activityID, assigned
}

func TestNewEngineDefaultThreshold(t *testing.T) {
	if e := NewEngine(0); e.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %v, want %v", e.Threshold, DefaultThreshold)
	}
	if e := NewEngine(30 * time.Minute); e.Threshold != 30*time.Minute {
		t.Errorf("Threshold = %v, want 30m", e.Threshold)
	}
}

func TestIdleProbeNeverAssigns(t *testing.T) {
	e := NewEngine(30 * time.Minute)
	s := newFakeStore()

	p := s.addProbe(base, 0)
	_, assigned := assign(t, e, s, p)
	if assigned {
		t.Error("idle probe should not be assigned")
	}
	if len(s.activities) != 0 {
		t.Errorf("idle probe created %d activities, want 0", len(s.activities))
	}
}

func TestFirstMovingProbeStartsActivity(t *testing.T) {
	e := NewEngine(30 * time.Minute)
	s := newFakeStore()

	p := s.addProbe(base, 80)
	activityID, assigned := assign(t, e, s, p)
	if !assigned {
		t.Fatal("moving probe should be assigned")
	}
	if diff := cmp.Diff([]int64{p.ID}, s.membership(activityID)); diff != "" {
		t.Errorf("membership mismatch (-want +got):\n%s", diff)
	}
}

func TestSubThresholdChainExtendsOneActivity(t *testing.T) {
	e := NewEngine(30 * time.Minute)
	s := newFakeStore()

	var lastActivity int64
	for i := 0; i < 4; i++ {
		p := s.addProbe(base.Add(time.Duration(i)*10*time.Minute), 100)
		activityID, assigned := assign(t, e, s, p)
		if !assigned {
			t.Fatalf("probe %d not assigned", p.ID)
		}
		if i > 0 && activityID != lastActivity {
			t.Fatalf("probe %d started activity %d, want continuation of %d", p.ID, activityID, lastActivity)
		}
		lastActivity = activityID
	}

	if len(s.activities) != 1 {
		t.Errorf("expected 1 activity, got %d", len(s.activities))
	}
	if diff := cmp.Diff([]int64{1, 2, 3, 4}, s.membership(lastActivity)); diff != "" {
		t.Errorf("membership mismatch (-want +got):\n%s", diff)
	}
}

// TestPowerSaveRide walks the canonical sequence: a report while moving, a
// parked report, moving again within the threshold, then a long gap. The
// parked probe is absorbed into the ride; the late probe starts a new one.
func TestPowerSaveRide(t *testing.T) {
	e := NewEngine(20 * time.Minute)
	s := newFakeStore()

	p1 := s.addProbe(base, 5)
	a1, assigned := assign(t, e, s, p1)
	if !assigned {
		t.Fatal("first moving probe not assigned")
	}

	// Parked: idle probe stays unassigned for now.
	p2 := s.addProbe(base.Add(10*time.Minute), 0)
	if _, assigned := assign(t, e, s, p2); assigned {
		t.Fatal("idle probe should not be assigned directly")
	}
	if p2.ActivityID != nil {
		t.Fatal("idle probe claimed before any continuation arrived")
	}

	// Moving again 15 minutes after the last member: continuation, and the
	// idle probe in between is backfilled.
	p3 := s.addProbe(base.Add(15*time.Minute), 3)
	a3, assigned := assign(t, e, s, p3)
	if !assigned || a3 != a1 {
		t.Fatalf("continuation probe joined activity %d, want %d", a3, a1)
	}
	if diff := cmp.Diff([]int64{p1.ID, p2.ID, p3.ID}, s.membership(a1)); diff != "" {
		t.Errorf("membership after backfill (-want +got):\n%s", diff)
	}

	// 35 minutes after the last member: past the threshold, new activity.
	p4 := s.addProbe(base.Add(50*time.Minute), 4)
	a4, assigned := assign(t, e, s, p4)
	if !assigned {
		t.Fatal("probe after gap not assigned")
	}
	if a4 == a1 {
		t.Fatal("probe after threshold gap should start a new activity")
	}
	if diff := cmp.Diff([]int64{p4.ID}, s.membership(a4)); diff != "" {
		t.Errorf("new activity membership (-want +got):\n%s", diff)
	}
	// The first activity is untouched.
	if diff := cmp.Diff([]int64{p1.ID, p2.ID, p3.ID}, s.membership(a1)); diff != "" {
		t.Errorf("closed activity changed (-want +got):\n%s", diff)
	}
}

func TestGapEqualToThresholdStartsNewActivity(t *testing.T) {
	threshold := 30 * time.Minute
	e := NewEngine(threshold)
	s := newFakeStore()

	p1 := s.addProbe(base, 50)
	a1, _ := assign(t, e, s, p1)

	// Exactly at the threshold: the window is half-open, this is a gap.
	p2 := s.addProbe(base.Add(threshold), 60)
	a2, assigned := assign(t, e, s, p2)
	if !assigned {
		t.Fatal("probe not assigned")
	}
	if a2 == a1 {
		t.Error("gap equal to threshold should start a new activity")
	}
}

func TestGapJustUnderThresholdExtends(t *testing.T) {
	threshold := 30 * time.Minute
	e := NewEngine(threshold)
	s := newFakeStore()

	p1 := s.addProbe(base, 50)
	a1, _ := assign(t, e, s, p1)

	p2 := s.addProbe(base.Add(threshold-time.Second), 60)
	a2, assigned := assign(t, e, s, p2)
	if !assigned || a2 != a1 {
		t.Errorf("gap under threshold joined activity %d, want %d", a2, a1)
	}
}

func TestEqualReceiptTimesExtend(t *testing.T) {
	e := NewEngine(30 * time.Minute)
	s := newFakeStore()

	p1 := s.addProbe(base, 50)
	a1, _ := assign(t, e, s, p1)

	p2 := s.addProbe(base, 60)
	a2, assigned := assign(t, e, s, p2)
	if !assigned || a2 != a1 {
		t.Errorf("zero gap joined activity %d, want %d", a2, a1)
	}
}

func TestTrailingIdleProbesStayUnassigned(t *testing.T) {
	e := NewEngine(20 * time.Minute)
	s := newFakeStore()

	p1 := s.addProbe(base, 100)
	a1, _ := assign(t, e, s, p1)

	// Two parked reports, then nothing for hours.
	p2 := s.addProbe(base.Add(10*time.Minute), 0)
	assign(t, e, s, p2)
	p3 := s.addProbe(base.Add(30*time.Minute), 0)
	assign(t, e, s, p3)

	// Next ride starts well past the threshold.
	p4 := s.addProbe(base.Add(3*time.Hour), 90)
	a4, _ := assign(t, e, s, p4)
	if a4 == a1 {
		t.Fatal("expected a new activity after the long gap")
	}

	// The trailing idle probes belong to neither activity.
	if p2.ActivityID != nil || p3.ActivityID != nil {
		t.Errorf("trailing idle probes were claimed: p2=%v p3=%v", p2.ActivityID, p3.ActivityID)
	}
	if diff := cmp.Diff([]int64{p1.ID}, s.membership(a1)); diff != "" {
		t.Errorf("first activity membership (-want +got):\n%s", diff)
	}
}

func TestBackfillClaimsInIdOrder(t *testing.T) {
	e := NewEngine(time.Hour)
	s := newFakeStore()

	p1 := s.addProbe(base, 10)
	assign(t, e, s, p1)

	// Three idle probes pile up before the next movement.
	s.addProbe(base.Add(5*time.Minute), 0)
	s.addProbe(base.Add(10*time.Minute), 0)
	s.addProbe(base.Add(15*time.Minute), 0)
	// The engine only sees non-idle probes; run it for the last one.
	p5 := s.addProbe(base.Add(20*time.Minute), 30)
	if _, assigned := assign(t, e, s, p5); !assigned {
		t.Fatal("continuation probe not assigned")
	}

	// The continuation claim lists the backfilled ids first, ascending,
	// with the new probe last.
	lastClaim := s.claims[len(s.claims)-1]
	if diff := cmp.Diff([]int64{2, 3, 4, 5}, lastClaim); diff != "" {
		t.Errorf("claim order mismatch (-want +got):\n%s", diff)
	}
}

func TestIdleProbesBeforeFirstActivityStayUnassigned(t *testing.T) {
	e := NewEngine(30 * time.Minute)
	s := newFakeStore()

	// The device boots parked; idle probes precede any ride.
	p1 := s.addProbe(base, 0)
	assign(t, e, s, p1)
	p2 := s.addProbe(base.Add(20*time.Minute), 0)
	assign(t, e, s, p2)

	// First movement opens the first activity, which never reaches back.
	p3 := s.addProbe(base.Add(40*time.Minute), 70)
	a3, assigned := assign(t, e, s, p3)
	if !assigned {
		t.Fatal("moving probe not assigned")
	}
	if p1.ActivityID != nil || p2.ActivityID != nil {
		t.Error("pre-activity idle probes should stay unassigned")
	}
	if diff := cmp.Diff([]int64{p3.ID}, s.membership(a3)); diff != "" {
		t.Errorf("membership mismatch (-want +got):\n%s", diff)
	}
}
