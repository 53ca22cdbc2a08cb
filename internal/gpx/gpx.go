// Package gpx serializes an activity's probes into a GPX 1.1 track log.
// Every probe with a GPS fix becomes a track point, idle probes included;
// they are real recorded positions.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/ride.report/internal/db"
)

// GPX is the document root. One activity maps to one track with one
// segment; the device records a single continuous stream.
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	XMLNS   string   `xml:"xmlns,attr"`

	Metadata *Metadata `xml:"metadata,omitempty"`
	Tracks   []Track   `xml:"trk"`
}

// Metadata carries the document name and creation time.
type Metadata struct {
	Name string    `xml:"name,omitempty"`
	Time time.Time `xml:"time,omitempty"`
}

// Track is a GPX track with segments.
type Track struct {
	Name     string         `xml:"name,omitempty"`
	Segments []TrackSegment `xml:"trkseg"`
}

// TrackSegment is an ordered run of track points.
type TrackSegment struct {
	Points []Point `xml:"trkpt"`
}

// Point is one timestamped, optionally elevation-tagged position.
type Point struct {
	Lat       float64   `xml:"lat,attr"`
	Lon       float64   `xml:"lon,attr"`
	Elevation *float64  `xml:"ele,omitempty"`
	Time      time.Time `xml:"time,omitempty"`
}

// FromActivity builds the GPX document for the activity's member probes,
// given in id order. Probes without a fix contribute nothing to the
// point stream but are not an error; the radio occasionally delivers a
// report before the GPS has locked.
func FromActivity(activity *db.Activity, probes []db.Probe) *GPX {
	name := fmt.Sprintf("Ride %d", activity.ID)
	if activity.Name != nil && *activity.Name != "" {
		name = *activity.Name
	}

	segment := TrackSegment{}
	for i := range probes {
		p := &probes[i]
		if !p.HasFix() {
			continue
		}
		segment.Points = append(segment.Points, Point{
			Lat:       *p.Lat,
			Lon:       *p.Lon,
			Elevation: p.Altitude,
			Time:      p.ReceivedAt.UTC(),
		})
	}

	return &GPX{
		Version: "1.1",
		Creator: "ride.report",
		XMLNS:   "http://www.topografix.com/GPX/1/1",
		Metadata: &Metadata{
			Name: name,
			Time: activity.CreatedAt.UTC(),
		},
		Tracks: []Track{{
			Name:     name,
			Segments: []TrackSegment{segment},
		}},
	}
}

// WriteTo writes the document with the XML header and 2-space indent.
func (g *GPX) WriteTo(w io.Writer) error {
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return err
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(g); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}

	return nil
}
