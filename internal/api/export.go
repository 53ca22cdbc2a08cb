package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/fitexport"
	"github.com/banshee-data/ride.report/internal/gpx"
	"github.com/banshee-data/ride.report/internal/httputil"
	"github.com/banshee-data/ride.report/internal/monitoring"
)

// exportActivity serves an activity's track log as a GPX or FIT
// download.
func (s *Server) exportActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id, err := activityID(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "gpx"
	}
	if format != "gpx" && format != "fit" {
		httputil.BadRequest(w, fmt.Sprintf("unsupported format %q (want gpx or fit)", format))
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

	st, probes, err := s.activityStats(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load activity probes: %v", err))
		return
	}

	filename := fmt.Sprintf("ride-%d-%s.%s", activity.ID, activity.CreatedAt.UTC().Format("20060102"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	switch format {
	case "gpx":
		w.Header().Set("Content-Type", "application/gpx+xml")
		if err := gpx.FromActivity(activity, probes).WriteTo(w); err != nil {
			monitoring.Logf("failed to stream GPX for activity %d: %v", id, err)
		}
	case "fit":
		w.Header().Set("Content-Type", "application/octet-stream")
		if err := fitexport.Encode(w, activity, probes, st); err != nil {
			monitoring.Logf("failed to stream FIT for activity %d: %v", id, err)
		}
	}
}
