package stats

import "gonum.org/v1/gonum/stat"

// Rollup is the all-time summary served by the stats endpoint.
type Rollup struct {
	Activities       int
	Probes           int64
	TotalDistance    float64
	TotalAltGain     float64
	MeanRideDistance float64
	LongestRide      float64
	LongestRideID    int64
}

// Summarize folds per-activity statistics into the global rollup.
// totalProbes counts every stored probe, assigned or not.
func Summarize(activities []ActivityStats, totalProbes int64) Rollup {
	r := Rollup{
		Activities: len(activities),
		Probes:     totalProbes,
	}

	if len(activities) == 0 {
		return r
	}

	distances := make([]float64, len(activities))
	for i := range activities {
		a := &activities[i]
		distances[i] = a.TotalDistance
		r.TotalDistance += a.TotalDistance
		r.TotalAltGain += a.TotalAltGain
		if a.TotalDistance > r.LongestRide {
			r.LongestRide = a.TotalDistance
			r.LongestRideID = a.ActivityID
		}
	}
	r.MeanRideDistance = stat.Mean(distances, nil)

	return r
}
