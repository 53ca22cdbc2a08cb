// Package ingest implements the probe ingestion path: validate the
// reporting device, normalize the raw telemetry, store the probe and run
// the segmentation engine, all inside one transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/ride.report/internal/db"
	"github.com/banshee-data/ride.report/internal/segment"
	"github.com/banshee-data/ride.report/internal/timeutil"
	"github.com/banshee-data/ride.report/internal/units"
)

// ErrWrongDevice reports a probe carrying an unexpected device id. The
// HTTP layer maps it to 403; nothing is stored.
var ErrWrongDevice = errors.New("unexpected device id")

// RawProbe is one report exactly as the device encoded it, after form
// parsing but before unit normalization. Distance, AltGain, MaxSpeed and
// MovingTime are in device units, not SI.
type RawProbe struct {
	DeviceID   string
	Seq        int64
	Lat        *float64
	Lon        *float64
	Altitude   *float64
	Distance   float64
	AltGain    float64
	MaxSpeed   *float64
	MovingTime *float64
}

// Result reports the outcome of one ingested probe. ActivityID is nil
// when the probe was idle and is waiting to be backfilled.
type Result struct {
	ProbeID    int64
	ActivityID *int64
	AckToken   string
}

// Service is the single writer for probe data. The mutex serializes
// ingestion because the engine's read-then-write sequence is not safe
// under concurrent writers; reads elsewhere are unaffected.
type Service struct {
	db       *db.DB
	engine   *segment.Engine
	deviceID string
	scales   units.DeviceScales
	clock    timeutil.Clock

	mu sync.Mutex
}

// NewService builds the ingestion service. A nil clock falls back to the
// real one.
func NewService(database *db.DB, engine *segment.Engine, deviceID string, scales units.DeviceScales, clock timeutil.Clock) *Service {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Service{
		db:       database,
		engine:   engine,
		deviceID: deviceID,
		scales:   scales,
		clock:    clock,
	}
}

// Ingest validates, normalizes and stores one probe, then runs the
// segmentation engine for it in the same transaction. A duplicate seq
// surfaces db.ErrDuplicateSeq with nothing stored.
func (s *Service) Ingest(ctx context.Context, raw RawProbe) (*Result, error) {
	if raw.DeviceID != s.deviceID {
		return nil, fmt.Errorf("device %q: %w", raw.DeviceID, ErrWrongDevice)
	}

	probe := s.normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	var result Result
	err := s.db.WithTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.InsertProbe(probe); err != nil {
			return err
		}

		activityID, assigned, err := s.engine.Assign(tx, probe)
		if err != nil {
			return err
		}
		if assigned {
			result.ActivityID = &activityID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.ProbeID = probe.ID
	result.AckToken = AckToken(probe.ID)
	return &result, nil
}

// normalize applies the device scale factors and stamps the receipt
// time. Receipt times are UTC and monotonic with the storage id because
// ingestion is serialized.
func (s *Service) normalize(raw RawProbe) *db.Probe {
	probe := &db.Probe{
		ReceivedAt: s.clock.Now().UTC(),
		Seq:        raw.Seq,
		Lat:        raw.Lat,
		Lon:        raw.Lon,
		Altitude:   raw.Altitude,
		Distance:   s.scales.NormalizeDistance(raw.Distance),
		AltGain:    s.scales.NormalizeAltGain(raw.AltGain),
	}
	if raw.MaxSpeed != nil {
		v := s.scales.NormalizeMaxSpeed(*raw.MaxSpeed)
		probe.MaxSpeed = &v
	}
	if raw.MovingTime != nil {
		v := s.scales.NormalizeMovingTime(*raw.MovingTime)
		probe.MovingTime = &v
	}
	return probe
}

// AckToken renders the probe's storage id as 16 hex characters, the
// 8-byte big-endian value that fits a SigFox downlink window. The token
// is opaque to the device; it only proves receipt.
func AckToken(probeID int64) string {
	return fmt.Sprintf("%016x", uint64(probeID))
}
