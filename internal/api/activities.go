package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/httputil"
	"github.com/banshee-data/ride.report/internal/stats"
	"github.com/banshee-data/ride.report/internal/units"
)

// listActivities returns all activities newest first with member counts
// and upload state.
func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	summaries, err := s.db.ListActivities()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list activities: %v", err))
		return
	}

	type activityRow struct {
		ID         int64   `json:"id"`
		CreatedAt  string  `json:"created_at"`
		Name       *string `json:"name,omitempty"`
		ProbeCount int64   `json:"probe_count"`
		Uploaded   bool    `json:"uploaded"`
	}

	out := make([]activityRow, len(summaries))
	for i := range summaries {
		a := &summaries[i]
		out[i] = activityRow{
			ID:         a.ID,
			CreatedAt:  s.localTime(a.CreatedAt),
			Name:       a.Name,
			ProbeCount: a.ProbeCount,
			Uploaded:   a.Uploaded(),
		}
	}
	httputil.WriteJSONOK(w, out)
}

// activityID pulls the activity id from the query string.
func activityID(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("id")
	if v == "" {
		return 0, fmt.Errorf("missing 'id' parameter")
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid 'id' parameter")
	}
	return id, nil
}

// activityStats loads an activity's members and folds them into derived
// statistics.
func (s *Server) activityStats(id int64) (*stats.ActivityStats, []db.Probe, error) {
	probes, err := s.db.ProbesForActivity(id)
	if err != nil {
		return nil, nil, err
	}
	st, err := stats.Aggregate(id, probes)
	if err != nil {
		return nil, nil, err
	}
	return st, probes, nil
}

// speedsAPI is the speed percentile block in display units.
type speedsAPI struct {
	P50 float64 `json:"p50"`
	P85 float64 `json:"p85"`
	P95 float64 `json:"p95"`
}

// statsAPI is the display form of derived activity statistics.
type statsAPI struct {
	Start            string        `json:"start"`
	End              string        `json:"end"`
	DurationS        float64       `json:"duration_s"`
	ProbeCount       int           `json:"probe_count"`
	TotalDistanceM   float64       `json:"total_distance_m"`
	TotalAltGainM    float64       `json:"total_alt_gain_m"`
	MaxSpeedKPH      *float64      `json:"max_speed_kph,omitempty"`
	TotalMovingTimeS *float64      `json:"total_moving_time_s,omitempty"`
	SpeedsKPH        *speedsAPI    `json:"speeds_kph,omitempty"`
	TrackDistanceM   float64       `json:"track_distance_m"`
	Bounds           *stats.Bounds `json:"bounds,omitempty"`
}

func (s *Server) statsToAPI(st *stats.ActivityStats) statsAPI {
	out := statsAPI{
		Start:            s.localTime(st.Start),
		End:              s.localTime(st.End),
		DurationS:        st.Duration.Seconds(),
		ProbeCount:       st.ProbeCount,
		TotalDistanceM:   st.TotalDistance,
		TotalAltGainM:    st.TotalAltGain,
		TotalMovingTimeS: st.TotalMovingTime,
		TrackDistanceM:   st.TrackDistance,
		Bounds:           st.GeoBounds,
	}
	if st.MaxSpeed != nil {
		kph := units.ConvertSpeed(*st.MaxSpeed, units.KPH)
		out.MaxSpeedKPH = &kph
	}
	if st.Speeds != nil {
		out.SpeedsKPH = &speedsAPI{
			P50: units.ConvertSpeed(st.Speeds.P50, units.KPH),
			P85: units.ConvertSpeed(st.Speeds.P85, units.KPH),
			P95: units.ConvertSpeed(st.Speeds.P95, units.KPH),
		}
	}
	return out
}

// showActivity returns one activity with its derived statistics.
func (s *Server) showActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := activityID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	activity, err := s.db.GetActivity(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("activity %d not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load activity: %v", err))
		return
	}

	st, _, err := s.activityStats(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to aggregate activity: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"activity": activity,
		"stats":    s.statsToAPI(st),
	})
}

// renameActivity sets the activity's label. The label is used as the GPX
// track name and the upload title.
func (s *Server) renameActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	if err != nil || id < 1 {
		httputil.BadRequest(w, "invalid 'id' parameter")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		httputil.BadRequest(w, "missing 'name' parameter")
		return
	}

	err = s.db.SetActivityName(id, name)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("activity %d not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to rename activity: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{"id": id, "name": name})
}

// mergeActivities reassigns all of the source's probes to the target and
// deletes the source.
func (s *Server) mergeActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	source, err := strconv.ParseInt(r.FormValue("source"), 10, 64)
	if err != nil || source < 1 {
		httputil.BadRequest(w, "invalid 'source' parameter")
		return
	}
	target, err := strconv.ParseInt(r.FormValue("target"), 10, 64)
	if err != nil || target < 1 {
		httputil.BadRequest(w, "invalid 'target' parameter")
		return
	}
	if source == target {
		httputil.BadRequest(w, "cannot merge an activity into itself")
		return
	}

	err = s.db.MergeActivities(r.Context(), target, source)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to merge activities: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]int64{"target": target, "merged": source})
}

// showStats is the all-time rollup across every activity.
func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	summaries, err := s.db.ListActivities()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list activities: %v", err))
		return
	}

	perActivity := make([]stats.ActivityStats, 0, len(summaries))
	for i := range summaries {
		st, _, err := s.activityStats(summaries[i].ID)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to aggregate activity %d: %v", summaries[i].ID, err))
			return
		}
		perActivity = append(perActivity, *st)
	}

	totalProbes, err := s.db.CountProbes()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to count probes: %v", err))
		return
	}

	rollup := stats.Summarize(perActivity, totalProbes)
	httputil.WriteJSONOK(w, map[string]interface{}{
		"activities":            rollup.Activities,
		"probes":                rollup.Probes,
		"total_distance_m":      rollup.TotalDistance,
		"total_alt_gain_m":      rollup.TotalAltGain,
		"mean_ride_distance_m":  rollup.MeanRideDistance,
		"longest_ride_m":        rollup.LongestRide,
		"longest_ride_activity": rollup.LongestRideID,
	})
}
