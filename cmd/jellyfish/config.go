package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/pkg/camera"
	"github.com/teslashibe/go-jellyfish/pkg/osc"
	"github.com/teslashibe/go-jellyfish/pkg/pipeline"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection/yolopose"
)

// Config is everything the binary needs to wire one session.
type Config struct {
	Preset   string
	Pipeline pipeline.Config
	Camera   camera.Config
	Model    yolopose.Config
	OSC      osc.Config

	WebPort string // Empty disables the dashboard

	// Replay plays a recording instead of the camera and model.
	ReplayPath string
	ReplayLoop bool
	ReplayFPS  float64

	// RecordPath writes every detected frame for later replay.
	RecordPath string

	// StreamFPS caps dashboard camera frames.
	StreamFPS float64

	LogLevel      string
	Debug         bool
	DebugTracking bool
}

// DefaultConfig returns the camera pose setup sending to the local sketch.
func DefaultConfig() Config {
	return Config{
		Preset:    pipeline.PresetPose,
		Pipeline:  pipeline.DefaultConfig(),
		Camera:    camera.DefaultConfig(),
		Model:     yolopose.DefaultConfig(),
		OSC:       osc.DefaultConfig(),
		WebPort:   config.DefaultWebPort,
		StreamFPS: 10,
		LogLevel:  "info",
	}
}

// LoadEnvConfig applies environment overrides.
func (c *Config) LoadEnvConfig() {
	c.OSC.Host = config.OSCHost(c.OSC.Host)
	c.OSC.Port = config.OSCPort(c.OSC.Port)
	c.WebPort = config.WebPort(c.WebPort)
	c.Model.ModelPath = config.ModelPath(c.Model.ModelPath)
}

// Replaying reports whether the session reads a recording.
func (c Config) Replaying() bool {
	return c.ReplayPath != ""
}

// Validate checks every component config and returns the first failure.
func (c Config) Validate() error {
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.OSC.Validate(); err != nil {
		return fmt.Errorf("osc: %w", err)
	}
	if !c.Replaying() {
		if errs := c.Camera.Validate(); len(errs) > 0 {
			return fmt.Errorf("camera: %s", strings.Join(errs, "; "))
		}
		if err := c.Model.Validate(); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	if c.ReplayLoop && !c.Replaying() {
		return errors.New("--replay-loop needs --replay")
	}
	if c.RecordPath != "" && c.Replaying() {
		return errors.New("--record cannot be combined with --replay")
	}
	if !(c.StreamFPS >= 0) {
		return config.Invalid("StreamFPS", "must not be negative, got %g", c.StreamFPS)
	}
	if !(c.ReplayFPS >= 0) {
		return config.Invalid("ReplayFPS", "must not be negative, got %g", c.ReplayFPS)
	}
	return nil
}

// View is the effective configuration served on /api/config.
func (c Config) View() map[string]any {
	t := c.Pipeline.Tracking
	d := c.Pipeline.Detection
	source := fmt.Sprintf("camera %d (%dx%d@%d)", c.Camera.DeviceIndex, c.Camera.Width, c.Camera.Height, c.Camera.Framerate)
	if c.Replaying() {
		source = "replay " + c.ReplayPath
	}

	return map[string]any{
		"preset": c.Preset,
		"source": source,
		"tracking": map[string]any{
			"max_slots":      t.MaxSlots,
			"miss_forget":    t.MissForget,
			"matching":       t.Matching.String(),
			"dist_threshold": t.DistThreshold,
			"dead_reckoning": t.DeadReckoning,
			"alpha":          t.Alpha,
			"alpha_policy":   t.AlphaPolicy.String(),
			"alpha_min":      t.AlphaMin,
			"alpha_max":      t.AlphaMax,
			"size_scale":     t.SizeScale,
			"energy_policy":  t.EnergyPolicy.String(),
			"energy_window":  t.EnergyWindow,
		},
		"detection": map[string]any{
			"confidence_min": d.ConfidenceMin,
			"min_size":       d.MinSize,
			"anchor":         d.Anchor.String(),
			"size_mode":      d.SizeMode.String(),
			"mirror":         d.Mirror,
		},
		"osc":         c.OSC,
		"legacy_hand": c.Pipeline.LegacyHand,
	}
}
