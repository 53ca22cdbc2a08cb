package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// writeFile writes content into dir under name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.InactivityThreshold != time.Hour {
		t.Errorf("InactivityThreshold = %v, want 1h", cfg.InactivityThreshold)
	}
	if cfg.DashboardLimit != 20 {
		t.Errorf("DashboardLimit = %d, want 20", cfg.DashboardLimit)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	// Worked example from the firmware docs: raw distance 10 -> 160m.
	if got := cfg.Scales.NormalizeDistance(10); got != 160 {
		t.Errorf("NormalizeDistance(10) = %f, want 160", got)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv(EnvDeviceID, "A1B2C3")
	t.Setenv(EnvStravaClientID, "12345")
	t.Setenv(EnvStravaClientSecret, "hunter2")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DeviceID != "A1B2C3" {
		t.Errorf("DeviceID = %q, want A1B2C3", cfg.DeviceID)
	}
	if !cfg.StravaEnabled() {
		t.Error("StravaEnabled() = false with both credentials set")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Setenv(EnvDeviceID, "")
	os.Unsetenv(EnvDeviceID)

	envPath := writeFile(t, t.TempDir(), "test.env", EnvDeviceID+"=FEED42\n")
	cfg, err := Load(envPath, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DeviceID != "FEED42" {
		t.Errorf("DeviceID = %q, want FEED42", cfg.DeviceID)
	}
}

func TestLoadMissingExplicitEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env"), ""); err == nil {
		t.Error("expected error for missing explicit env file")
	}
}

func TestLoadTuningOverrides(t *testing.T) {
	t.Setenv(EnvDeviceID, "A1B2C3")

	tuningPath := writeFile(t, t.TempDir(), "tuning.json", `{
		"inactivity_threshold": "20m",
		"dashboard_limit": 50,
		"timezone": "Europe/Zurich",
		"distance_scale": 8
	}`)

	cfg, err := Load("", tuningPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.InactivityThreshold != 20*time.Minute {
		t.Errorf("InactivityThreshold = %v, want 20m", cfg.InactivityThreshold)
	}
	if cfg.DashboardLimit != 50 {
		t.Errorf("DashboardLimit = %d, want 50", cfg.DashboardLimit)
	}
	if cfg.Timezone != "Europe/Zurich" {
		t.Errorf("Timezone = %q, want Europe/Zurich", cfg.Timezone)
	}
	if cfg.Scales.Distance != 8 {
		t.Errorf("Scales.Distance = %f, want 8", cfg.Scales.Distance)
	}
	// Fields the file omits keep their defaults.
	if cfg.Scales.AltGain != 2 {
		t.Errorf("Scales.AltGain = %f, want default 2", cfg.Scales.AltGain)
	}
}

func TestLoadTuningErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{
			name:    "wrong extension",
			path:    writeFile(t, dir, "tuning.yaml", "{}"),
			wantErr: ".json extension",
		},
		{
			name:    "missing file",
			path:    filepath.Join(dir, "absent.json"),
			wantErr: "failed to stat",
		},
		{
			name:    "malformed json",
			path:    writeFile(t, dir, "broken.json", "{not json"),
			wantErr: "failed to parse",
		},
		{
			name:    "bad threshold",
			path:    writeFile(t, dir, "threshold.json", `{"inactivity_threshold": "soon"}`),
			wantErr: "inactivity_threshold",
		},
		{
			name:    "negative scale",
			path:    writeFile(t, dir, "scale.json", `{"distance_scale": -4}`),
			wantErr: "distance_scale",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuning(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.DeviceID = "A1B2C3"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing device id", func(c *Config) { c.DeviceID = "" }},
		{"zero threshold", func(c *Config) { c.InactivityThreshold = 0 }},
		{"zero dashboard limit", func(c *Config) { c.DashboardLimit = 0 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }},
		{"bad scales", func(c *Config) { c.Scales.Distance = 0 }},
		{"half strava credentials", func(c *Config) { c.StravaClientID = "12345" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestTuningApplyPartial(t *testing.T) {
	cfg := Default()
	tuning := &Tuning{
		DashboardLimit: ptrInt(100),
		MaxSpeedScale:  ptrFloat64(0.5),
	}
	tuning.Apply(cfg)

	if cfg.DashboardLimit != 100 {
		t.Errorf("DashboardLimit = %d, want 100", cfg.DashboardLimit)
	}
	if cfg.Scales.MaxSpeed != 0.5 {
		t.Errorf("Scales.MaxSpeed = %f, want 0.5", cfg.Scales.MaxSpeed)
	}
	if cfg.InactivityThreshold != time.Hour {
		t.Errorf("InactivityThreshold = %v, want untouched 1h", cfg.InactivityThreshold)
	}
}
