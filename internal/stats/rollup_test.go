package stats

import (
	"testing"
	"time"
)

func TestSummarizeEmpty(t *testing.T) {
	r := Summarize(nil, 3)

	if r.Activities != 0 {
		t.Errorf("Activities = %d, want 0", r.Activities)
	}
	if r.Probes != 3 {
		t.Errorf("Probes = %d, want 3 (unassigned probes still count)", r.Probes)
	}
	if r.TotalDistance != 0 || r.LongestRide != 0 {
		t.Errorf("empty rollup has totals: %+v", r)
	}
}

func TestSummarize(t *testing.T) {
	activities := []ActivityStats{
		{ActivityID: 1, Start: base, End: base.Add(time.Hour), TotalDistance: 12000, TotalAltGain: 150},
		{ActivityID: 2, Start: base.Add(2 * time.Hour), End: base.Add(3 * time.Hour), TotalDistance: 30000, TotalAltGain: 400},
		{ActivityID: 3, Start: base.Add(5 * time.Hour), End: base.Add(6 * time.Hour), TotalDistance: 6000, TotalAltGain: 50},
	}

	r := Summarize(activities, 42)

	if r.Activities != 3 {
		t.Errorf("Activities = %d, want 3", r.Activities)
	}
	if r.Probes != 42 {
		t.Errorf("Probes = %d, want 42", r.Probes)
	}
	if r.TotalDistance != 48000 {
		t.Errorf("TotalDistance = %v, want 48000", r.TotalDistance)
	}
	if r.TotalAltGain != 600 {
		t.Errorf("TotalAltGain = %v, want 600", r.TotalAltGain)
	}
	if r.MeanRideDistance != 16000 {
		t.Errorf("MeanRideDistance = %v, want 16000", r.MeanRideDistance)
	}
	if r.LongestRide != 30000 || r.LongestRideID != 2 {
		t.Errorf("LongestRide = %v (activity %d), want 30000 (activity 2)", r.LongestRide, r.LongestRideID)
	}
}
