package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxTuningFileSize caps the size of a tuning file read at startup.
const maxTuningFileSize = 1 * 1024 * 1024

// Tuning is the optional JSON tuning file loaded at startup.
// Every field is a pointer so omitted keys keep the command-line value.
type Tuning struct {
	// Tracker
	Preset        *string  `json:"preset,omitempty"` // "pose", "kinect", "predictive"
	MaxSlots      *int     `json:"max_slots,omitempty"`
	Matching      *string  `json:"matching,omitempty"` // "nearest", "thresholded", "ordered"
	DistThreshold *float64 `json:"dist_threshold,omitempty"`
	Alpha         *float64 `json:"alpha,omitempty"`
	AlphaPolicy   *string  `json:"alpha_policy,omitempty"` // "fixed", "adaptive"
	AlphaMin      *float64 `json:"alpha_min,omitempty"`
	AlphaMax      *float64 `json:"alpha_max,omitempty"`
	SizeScale     *float64 `json:"size_scale,omitempty"`
	EnergyPolicy  *string  `json:"energy_policy,omitempty"` // "ema", "window"
	EnergyWindow  *int     `json:"energy_window,omitempty"`
	MissForget    *int     `json:"miss_forget,omitempty"`
	DeadReckoning *bool    `json:"dead_reckoning,omitempty"`

	// Detection gating
	ConfidenceMin *float64 `json:"confidence_min,omitempty"`
	MinSize       *float64 `json:"min_size,omitempty"`
	Anchor        *string  `json:"anchor,omitempty"`    // "wrists", "shoulders"
	SizeMode      *string  `json:"size_mode,omitempty"` // "limbs", "all"
	Mirror        *bool    `json:"mirror,omitempty"`

	// Transport
	OSCHost    *string  `json:"osc_host,omitempty"`
	OSCPort    *int     `json:"osc_port,omitempty"`
	MaxRate    *float64 `json:"max_rate,omitempty"`
	Bundle     *bool    `json:"bundle,omitempty"`
	LegacyHand *bool    `json:"legacy_hand,omitempty"`
}

// LoadTuning loads a Tuning from a JSON file.
// The path must have a .json extension and the file must be under 1MB.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	if info.Size() > maxTuningFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxTuningFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	var t Tuning
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse tuning JSON: %w", err)
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning file: %w", err)
	}
	return &t, nil
}

// Validate checks the ranges that do not depend on other settings.
// Cross-field checks happen when the owning package validates its config.
func (t *Tuning) Validate() error {
	if t.MaxSlots != nil && *t.MaxSlots <= 0 {
		return Invalid("max_slots", "must be positive, got %d", *t.MaxSlots)
	}
	if t.Alpha != nil && !(*t.Alpha > 0 && *t.Alpha <= 1) {
		return Invalid("alpha", "must be in (0, 1], got %g", *t.Alpha)
	}
	if t.DistThreshold != nil && !(*t.DistThreshold >= 0) {
		return Invalid("dist_threshold", "must not be negative, got %g", *t.DistThreshold)
	}
	if t.MissForget != nil && *t.MissForget < 0 {
		return Invalid("miss_forget", "must not be negative, got %d", *t.MissForget)
	}
	if t.EnergyWindow != nil && *t.EnergyWindow < 1 {
		return Invalid("energy_window", "must be at least 1, got %d", *t.EnergyWindow)
	}
	if t.ConfidenceMin != nil && !(*t.ConfidenceMin >= 0 && *t.ConfidenceMin <= 1) {
		return Invalid("confidence_min", "must be in [0, 1], got %g", *t.ConfidenceMin)
	}
	if t.MinSize != nil && !(*t.MinSize >= 0) {
		return Invalid("min_size", "must not be negative, got %g", *t.MinSize)
	}
	if t.OSCPort != nil && (*t.OSCPort <= 0 || *t.OSCPort > 65535) {
		return Invalid("osc_port", "must be in 1-65535, got %d", *t.OSCPort)
	}
	if t.MaxRate != nil && !(*t.MaxRate >= 0) {
		return Invalid("max_rate", "must not be negative, got %g", *t.MaxRate)
	}
	return nil
}
