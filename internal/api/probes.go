package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/httputil"
	"github.com/banshee-data/ride.report/internal/ingest"
	"github.com/banshee-data/ride.report/internal/units"
)

// handleNewProbe is the device callback. The radio gateway delivers the
// report form-encoded; the 201 response body is relayed back to the
// device as its downlink payload.
func (s *Server) handleNewProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	raw, err := parseProbeForm(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	result, err := s.ingest.Ingest(r.Context(), *raw)
	switch {
	case errors.Is(err, ingest.ErrWrongDevice):
		httputil.Forbidden(w, "unknown device")
		return
	case errors.Is(err, db.ErrDuplicateSeq):
		httputil.Conflict(w, fmt.Sprintf("seq %d already received", raw.Seq))
		return
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("failed to store probe: %v", err))
		return
	}

	// The SigFox callback contract: key the downlink payload by device id.
	httputil.WriteJSONCreated(w, map[string]interface{}{
		raw.DeviceID: map[string]string{"downlinkData": result.AckToken},
	})
}

// parseProbeForm validates and decodes the ingestion form. Every field
// except altitude and the absent half of the speed/moving-time pair is
// required; validation happens before any store mutation.
func parseProbeForm(r *http.Request) (*ingest.RawProbe, error) {
	deviceID := r.FormValue("id")
	if deviceID == "" {
		return nil, fmt.Errorf("missing field id")
	}

	seq, err := formInt(r, "seq")
	if err != nil {
		return nil, err
	}
	lat, err := formFloat(r, "lat")
	if err != nil {
		return nil, err
	}
	lng, err := formFloat(r, "lng")
	if err != nil {
		return nil, err
	}
	dist, err := formFloat(r, "dist")
	if err != nil {
		return nil, err
	}
	altGain, err := formFloat(r, "alt_gain")
	if err != nil {
		return nil, err
	}

	raw := &ingest.RawProbe{
		DeviceID: deviceID,
		Seq:      seq,
		Lat:      &lat,
		Lon:      &lng,
		Distance: dist,
		AltGain:  altGain,
	}

	if v := r.FormValue("altitude"); v != "" {
		altitude, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed field altitude: %q", v)
		}
		raw.Altitude = &altitude
	}

	// One movement-intensity signal is required; which one depends on the
	// firmware generation.
	maxSpeedSet := r.FormValue("max_speed") != ""
	movingTimeSet := r.FormValue("moving_time") != ""
	if !maxSpeedSet && !movingTimeSet {
		return nil, fmt.Errorf("missing field max_speed or moving_time")
	}
	if maxSpeedSet {
		maxSpeed, err := formFloat(r, "max_speed")
		if err != nil {
			return nil, err
		}
		raw.MaxSpeed = &maxSpeed
	}
	if movingTimeSet {
		movingTime, err := formFloat(r, "moving_time")
		if err != nil {
			return nil, err
		}
		raw.MovingTime = &movingTime
	}

	return raw, nil
}

func formFloat(r *http.Request, field string) (float64, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, fmt.Errorf("missing field %s", field)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed field %s: %q", field, v)
	}
	return f, nil
}

func formInt(r *http.Request, field string) (int64, error) {
	v := r.FormValue(field)
	if v == "" {
		return 0, fmt.Errorf("missing field %s", field)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed field %s: %q", field, v)
	}
	return n, nil
}

// probeAPI is the display form of a probe: local time, km/h.
type probeAPI struct {
	ID          int64    `json:"id"`
	ReceivedAt  string   `json:"received_at"`
	Seq         int64    `json:"seq"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Altitude    *float64 `json:"altitude,omitempty"`
	DistanceM   float64  `json:"distance_m"`
	AltGainM    float64  `json:"alt_gain_m"`
	MaxSpeedKPH *float64 `json:"max_speed_kph,omitempty"`
	MovingTimeS *float64 `json:"moving_time_s,omitempty"`
	ActivityID  *int64   `json:"activity_id,omitempty"`
}

// probeToAPI converts a stored probe for display in the configured
// timezone.
func (s *Server) probeToAPI(p *db.Probe) probeAPI {
	out := probeAPI{
		ID:          p.ID,
		Seq:         p.Seq,
		Lat:         p.Lat,
		Lon:         p.Lon,
		Altitude:    p.Altitude,
		DistanceM:   p.Distance,
		AltGainM:    p.AltGain,
		MovingTimeS: p.MovingTime,
		ActivityID:  p.ActivityID,
	}
	out.ReceivedAt = s.localTime(p.ReceivedAt)
	if p.MaxSpeed != nil {
		kph := units.ConvertSpeed(*p.MaxSpeed, units.KPH)
		out.MaxSpeedKPH = &kph
	}
	return out
}

// localTime renders a stored UTC instant in the configured timezone.
func (s *Server) localTime(t time.Time) string {
	local, err := units.ConvertTime(t, s.cfg.Timezone)
	if err != nil {
		local = t
	}
	return local.Format(time.RFC3339)
}

// listProbes is the dashboard feed: the most recent probes by receipt
// time, newest first, independent of activity membership.
func (s *Server) listProbes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := s.cfg.DashboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	probes, err := s.db.RecentProbes(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load probes: %v", err))
		return
	}

	out := make([]probeAPI, len(probes))
	for i := range probes {
		out[i] = s.probeToAPI(&probes[i])
	}
	httputil.WriteJSONOK(w, out)
}
