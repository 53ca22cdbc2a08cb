// Package config assembles the process configuration from the
// environment, an optional .env file and an optional JSON tuning file.
// Handlers and services receive the resulting Config through their
// constructors; nothing reads the environment at request time.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/ride.report/internal/units"
)

// Environment variable names for secrets. These never appear in the
// tuning file so the file can be committed alongside the deployment.
const (
	EnvDeviceID           = "RIDE_DEVICE_ID"
	EnvStravaClientID     = "STRAVA_CLIENT_ID"
	EnvStravaClientSecret = "STRAVA_CLIENT_SECRET"
)

// Config is the full runtime configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// DBPath is the sqlite database file path.
	DBPath string

	// DeviceID is the expected device identifier on the ingestion
	// endpoint. Reports carrying any other id are rejected.
	DeviceID string

	// InactivityThreshold is the gap between consecutive probes at or
	// above which a new activity starts. It must exceed the device's
	// slowest reporting interval while moving or rides get split.
	InactivityThreshold time.Duration

	// DashboardLimit is the default number of probes returned by the
	// dashboard endpoint.
	DashboardLimit int

	// Timezone is the IANA timezone name used for display times.
	// Storage is always UTC.
	Timezone string

	// Scales maps raw device-encoded telemetry fields to SI units.
	Scales units.DeviceScales

	// Strava API credentials. Empty unless uploads are configured.
	StravaClientID     string
	StravaClientSecret string
}

// Default returns the configuration for the shipped firmware with no
// Strava credentials and no device id. Callers overlay the environment
// and tuning file on top.
func Default() *Config {
	return &Config{
		Addr:                ":8080",
		DBPath:              "ride.db",
		InactivityThreshold: time.Hour,
		DashboardLimit:      20,
		Timezone:            "UTC",
		Scales:              units.DefaultDeviceScales(),
	}
}

// Load builds the configuration from defaults, the environment and the
// optional tuning file at tuningPath. When envFile is non-empty it is
// loaded into the environment first; a missing default .env is not an
// error, a missing explicit one is.
func Load(envFile, tuningPath string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a .env in the working directory is a convenience,
		// not a requirement.
		_ = godotenv.Load()
	}

	cfg := Default()
	cfg.DeviceID = os.Getenv(EnvDeviceID)
	cfg.StravaClientID = os.Getenv(EnvStravaClientID)
	cfg.StravaClientSecret = os.Getenv(EnvStravaClientSecret)

	if tuningPath != "" {
		tuning, err := LoadTuning(tuningPath)
		if err != nil {
			return nil, err
		}
		tuning.Apply(cfg)
	}

	return cfg, nil
}

// Validate checks that the configuration can actually run the server.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device id is required; set %s", EnvDeviceID)
	}
	if c.InactivityThreshold <= 0 {
		return fmt.Errorf("inactivity threshold must be positive, got %v", c.InactivityThreshold)
	}
	if c.DashboardLimit <= 0 {
		return fmt.Errorf("dashboard limit must be positive, got %d", c.DashboardLimit)
	}
	if !units.IsTimezoneValid(c.Timezone) {
		return fmt.Errorf("invalid timezone %q", c.Timezone)
	}
	if err := c.Scales.Validate(); err != nil {
		return fmt.Errorf("invalid device scales: %w", err)
	}
	// Strava credentials are optional, but half a credential pair is a
	// deployment mistake.
	if (c.StravaClientID == "") != (c.StravaClientSecret == "") {
		return fmt.Errorf("strava client id and secret must be set together")
	}
	return nil
}

// StravaEnabled reports whether upload credentials are configured.
func (c *Config) StravaEnabled() bool {
	return c.StravaClientID != "" && c.StravaClientSecret != ""
}
