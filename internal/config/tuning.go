package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Tuning is the on-disk tuning file. All fields are pointers so a
// partial file only overrides what it names; omitted fields keep the
// defaults from Default().
type Tuning struct {
	// InactivityThreshold is a duration string like "20m" or "1h".
	InactivityThreshold *string `json:"inactivity_threshold,omitempty"`

	DashboardLimit *int    `json:"dashboard_limit,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`

	// Device scale factors, raw encoding -> SI units. Set these when a
	// firmware generation changes its packing.
	DistanceScale   *float64 `json:"distance_scale,omitempty"`
	AltGainScale    *float64 `json:"alt_gain_scale,omitempty"`
	MaxSpeedScale   *float64 `json:"max_speed_scale,omitempty"`
	MovingTimeScale *float64 `json:"moving_time_scale,omitempty"`
}

// LoadTuning loads and validates a tuning file.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	var tuning Tuning
	if err := json.Unmarshal(data, &tuning); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file %s: %w", cleanPath, err)
	}

	return &tuning, nil
}

// Validate checks the tuning values that are set.
func (t *Tuning) Validate() error {
	if t.InactivityThreshold != nil {
		d, err := time.ParseDuration(*t.InactivityThreshold)
		if err != nil {
			return fmt.Errorf("invalid inactivity_threshold %q: %w", *t.InactivityThreshold, err)
		}
		if d <= 0 {
			return fmt.Errorf("inactivity_threshold must be positive, got %q", *t.InactivityThreshold)
		}
	}
	if t.DashboardLimit != nil && *t.DashboardLimit <= 0 {
		return fmt.Errorf("dashboard_limit must be positive, got %d", *t.DashboardLimit)
	}
	for name, scale := range map[string]*float64{
		"distance_scale":    t.DistanceScale,
		"alt_gain_scale":    t.AltGainScale,
		"max_speed_scale":   t.MaxSpeedScale,
		"moving_time_scale": t.MovingTimeScale,
	} {
		if scale != nil && *scale <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *scale)
		}
	}
	return nil
}

// Apply overlays the set tuning values onto cfg. Validate must have
// passed first; Apply does not re-check.
func (t *Tuning) Apply(cfg *Config) {
	if t.InactivityThreshold != nil {
		if d, err := time.ParseDuration(*t.InactivityThreshold); err == nil {
			cfg.InactivityThreshold = d
		}
	}
	if t.DashboardLimit != nil {
		cfg.DashboardLimit = *t.DashboardLimit
	}
	if t.Timezone != nil {
		cfg.Timezone = *t.Timezone
	}
	if t.DistanceScale != nil {
		cfg.Scales.Distance = *t.DistanceScale
	}
	if t.AltGainScale != nil {
		cfg.Scales.AltGain = *t.AltGainScale
	}
	if t.MaxSpeedScale != nil {
		cfg.Scales.MaxSpeed = *t.MaxSpeedScale
	}
	if t.MovingTimeScale != nil {
		cfg.Scales.MovingTime = *t.MovingTimeScale
	}
}
