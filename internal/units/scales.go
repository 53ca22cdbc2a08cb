package units

import "fmt"

// DeviceScales holds the per-field multipliers that map raw device-encoded
// telemetry values to SI units (meters, m/s, seconds). The tracker packs each
// field into a single byte on the radio link, so the firmware divides before
// transmitting and the server multiplies back on ingestion. The factors vary
// by firmware generation and are configurable, never hard-coded at call sites.
type DeviceScales struct {
	Distance   float64 `json:"distance"`
	AltGain    float64 `json:"alt_gain"`
	MaxSpeed   float64 `json:"max_speed"`
	MovingTime float64 `json:"moving_time"`
}

// DefaultDeviceScales returns the factors for the shipped firmware: distance
// is sent as meters/16, altitude gain as meters/2, max speed as km/h x3
// (stored as m/s, hence the extra /3.6), moving time as plain seconds.
func DefaultDeviceScales() DeviceScales {
	return DeviceScales{
		Distance:   16,
		AltGain:    2,
		MaxSpeed:   1.0 / 3.0 / 3.6,
		MovingTime: 1,
	}
}

// Validate checks that all scale factors are positive.
func (s DeviceScales) Validate() error {
	if s.Distance <= 0 {
		return fmt.Errorf("distance scale must be positive, got %f", s.Distance)
	}
	if s.AltGain <= 0 {
		return fmt.Errorf("alt_gain scale must be positive, got %f", s.AltGain)
	}
	if s.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed scale must be positive, got %f", s.MaxSpeed)
	}
	if s.MovingTime <= 0 {
		return fmt.Errorf("moving_time scale must be positive, got %f", s.MovingTime)
	}
	return nil
}

// NormalizeDistance converts a raw device distance delta to meters.
func (s DeviceScales) NormalizeDistance(raw float64) float64 {
	return raw * s.Distance
}

// NormalizeAltGain converts a raw device altitude gain delta to meters.
func (s DeviceScales) NormalizeAltGain(raw float64) float64 {
	return raw * s.AltGain
}

// NormalizeMaxSpeed converts a raw device max speed to m/s.
func (s DeviceScales) NormalizeMaxSpeed(raw float64) float64 {
	return raw * s.MaxSpeed
}

// NormalizeMovingTime converts a raw device moving time to seconds.
func (s DeviceScales) NormalizeMovingTime(raw float64) float64 {
	return raw * s.MovingTime
}
