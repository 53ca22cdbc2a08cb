// Package stats derives activity statistics from member probes. Nothing
// here is stored; every figure is a pure fold over the probe list so merge
// and backfill never leave stale aggregates behind.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ride.report/internal/db"
)

// SpeedPercentiles summarizes the distribution of per-probe max speeds in
// m/s.
type SpeedPercentiles struct {
	P50 float64
	P85 float64
	P95 float64
}

// Bounds is the geographic bounding box of an activity's fixes, in
// degrees.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// ActivityStats are the derived figures for one activity. MaxSpeed,
// TotalMovingTime and Speeds are nil when no member probe carries the
// corresponding field; TrackDistance and GeoBounds are zero/nil without at
// least one fix.
type ActivityStats struct {
	ActivityID      int64
	Start           time.Time
	End             time.Time
	Duration        time.Duration
	ProbeCount      int
	TotalDistance   float64
	TotalAltGain    float64
	MaxSpeed        *float64
	TotalMovingTime *float64
	Speeds          *SpeedPercentiles
	TrackDistance   float64
	GeoBounds       *Bounds
}

// Aggregate folds the activity's member probes, given in id order, into
// its derived statistics. Activities always have at least one member; an
// empty list is an error, not a zero value.
func Aggregate(activityID int64, probes []db.Probe) (*ActivityStats, error) {
	if len(probes) == 0 {
		return nil, fmt.Errorf("activity %d has no probes to aggregate", activityID)
	}

	s := &ActivityStats{
		ActivityID: activityID,
		Start:      probes[0].ReceivedAt,
		End:        probes[len(probes)-1].ReceivedAt,
		ProbeCount: len(probes),
	}
	s.Duration = s.End.Sub(s.Start)

	var speeds []float64
	var points orb.MultiPoint
	var prev *orb.Point

	for i := range probes {
		p := &probes[i]

		s.TotalDistance += p.Distance
		s.TotalAltGain += p.AltGain

		if p.MaxSpeed != nil {
			speeds = append(speeds, *p.MaxSpeed)
			if s.MaxSpeed == nil || *p.MaxSpeed > *s.MaxSpeed {
				v := *p.MaxSpeed
				s.MaxSpeed = &v
			}
		}
		if p.MovingTime != nil {
			if s.TotalMovingTime == nil {
				s.TotalMovingTime = new(float64)
			}
			*s.TotalMovingTime += *p.MovingTime
		}

		if p.HasFix() {
			pt := orb.Point{*p.Lon, *p.Lat}
			if prev != nil {
				s.TrackDistance += geo.Distance(*prev, pt)
			}
			points = append(points, pt)
			prev = &pt
		}
	}

	if len(speeds) > 0 {
		sort.Float64s(speeds)
		s.Speeds = &SpeedPercentiles{
			P50: stat.Quantile(0.50, stat.Empirical, speeds, nil),
			P85: stat.Quantile(0.85, stat.Empirical, speeds, nil),
			P95: stat.Quantile(0.95, stat.Empirical, speeds, nil),
		}
	}

	if len(points) > 0 {
		bound := points.Bound()
		s.GeoBounds = &Bounds{
			MinLat: bound.Bottom(),
			MinLon: bound.Left(),
			MaxLat: bound.Top(),
			MaxLon: bound.Right(),
		}
	}

	return s, nil
}
