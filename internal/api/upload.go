package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/httputil"
)

// uploadActivity pushes an activity's summary to Strava. The call is
// idempotent: an already-uploaded activity returns its existing
// reference without touching the API, and a failed upload stores nothing
// so a retry is safe.
func (s *Server) uploadActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if s.uploader == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "strava upload not configured")
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

	if activity.Uploaded() {
		httputil.WriteJSONOK(w, map[string]interface{}{
			"strava_activity_id": *activity.StravaActivityID,
			"already_uploaded":   true,
		})
		return
	}

	st, _, err := s.activityStats(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to aggregate activity: %v", err))
		return
	}

	// The idempotency key survives failed attempts, so a retry after a
	// partial success cannot create a duplicate on Strava's side.
	externalID, err := s.db.EnsureUploadExternalID(id)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to assign upload key: %v", err))
		return
	}

	stravaID, err := s.uploader.Upload(r.Context(), activity, st, externalID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("strava upload failed: %v", err))
		return
	}

	if err := s.db.SetStravaActivityID(id, stravaID); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to store strava reference: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"strava_activity_id": stravaID,
		"already_uploaded":   false,
	})
}
