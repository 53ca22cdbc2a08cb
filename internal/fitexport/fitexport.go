// Package fitexport encodes an activity as a FIT activity file. FIT is
// the binary format Garmin tools and Strava ingest natively; the GPX
// exporter remains for everything else.
package fitexport

import (
	"fmt"
	"io"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/stats"
)

// degreesToSemicircles converts WGS84 degrees to the FIT semicircle
// encoding (2^31 semicircles per 180 degrees).
const degreesToSemicircles = 2147483648.0 / 180.0

// FIT altitude encoding: scale 5, offset 500. The offset keeps positions
// below sea level representable in an unsigned field.
const (
	altitudeScale  = 5.0
	altitudeOffset = 500.0
)

// Encode writes the activity as a FIT file: file id, timer start, one
// record per probe with a fix, timer stop, then lap, session and
// activity summaries. Probes must be the activity's members in id order;
// st must be their aggregation.
func Encode(w io.Writer, activity *db.Activity, probes []db.Probe, st *stats.ActivityStats) error {
	if len(probes) == 0 {
		return fmt.Errorf("activity %d has no probes to encode", activity.ID)
	}

	fit := proto.FIT{}

	fileID := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		Product:      0,
		SerialNumber: uint32(activity.ID),
		TimeCreated:  st.Start,
	}
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))

	startEvent := mesgdef.Event{
		Timestamp: st.Start,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStart,
	}
	fit.Messages = append(fit.Messages, startEvent.ToMesg(nil))

	// Cumulative distance along the ride, in cm as FIT wants it.
	var distanceSoFar float64
	for i := range probes {
		p := &probes[i]
		distanceSoFar += p.Distance
		if !p.HasFix() {
			continue
		}

		record := &mesgdef.Record{
			Timestamp:    p.ReceivedAt,
			PositionLat:  int32(*p.Lat * degreesToSemicircles),
			PositionLong: int32(*p.Lon * degreesToSemicircles),
			Distance:     uint32(distanceSoFar * 100),
		}
		if p.Altitude != nil {
			record.EnhancedAltitude = uint32((*p.Altitude + altitudeOffset) * altitudeScale)
		}
		if p.MaxSpeed != nil {
			// m/s -> mm/s
			record.EnhancedSpeed = uint32(*p.MaxSpeed * 1000)
		}
		fit.Messages = append(fit.Messages, record.ToMesg(nil))
	}

	stopEvent := mesgdef.Event{
		Timestamp: st.End,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStopAll,
	}
	fit.Messages = append(fit.Messages, stopEvent.ToMesg(nil))

	elapsedMs := uint32(st.Duration.Milliseconds())
	timerMs := elapsedMs
	if st.TotalMovingTime != nil {
		timerMs = uint32(*st.TotalMovingTime * 1000)
	}
	totalDistCm := uint32(st.TotalDistance * 100)

	lap := mesgdef.Lap{
		Timestamp:        st.End,
		StartTime:        st.Start,
		TotalElapsedTime: elapsedMs,
		TotalTimerTime:   timerMs,
		TotalDistance:    totalDistCm,
		TotalAscent:      uint16(st.TotalAltGain),
		Event:            typedef.EventLap,
		EventType:        typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, lap.ToMesg(nil))

	session := mesgdef.Session{
		Timestamp:        st.End,
		StartTime:        st.Start,
		TotalElapsedTime: elapsedMs,
		TotalTimerTime:   timerMs,
		TotalDistance:    totalDistCm,
		TotalAscent:      uint16(st.TotalAltGain),
		Sport:            typedef.SportCycling,
		SubSport:         typedef.SubSportGeneric,
		Event:            typedef.EventSession,
		EventType:        typedef.EventTypeStop,
		Trigger:          typedef.SessionTriggerActivityEnd,
	}
	if st.MaxSpeed != nil {
		session.EnhancedMaxSpeed = uint32(*st.MaxSpeed * 1000)
	}
	fit.Messages = append(fit.Messages, session.ToMesg(nil))

	activityMesg := mesgdef.Activity{
		Timestamp:      st.End,
		TotalTimerTime: timerMs,
		NumSessions:    1,
		Type:           typedef.ActivityManual,
		Event:          typedef.EventActivity,
		EventType:      typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, activityMesg.ToMesg(nil))

	enc := encoder.New(w)
	if err := enc.Encode(&fit); err != nil {
		return fmt.Errorf("failed to encode FIT file: %w", err)
	}

	return nil
}
