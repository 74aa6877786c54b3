package pipeline

import (
	"fmt"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/pkg/protocol"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// Preset names
const (
	PresetPose       = "pose"
	PresetKinect     = "kinect"
	PresetPredictive = "predictive"
)

// Config is the per-frame processing configuration. It is fixed for the
// lifetime of a Runner.
type Config struct {
	Detection detection.Config `json:"detection"`
	Tracking  tracking.Config  `json:"tracking"`

	// LegacyHand adds the /hand keypoint list to every payload.
	LegacyHand      bool  `json:"legacy_hand"`
	LegacyKeypoints []int `json:"legacy_keypoints"`
}

// DefaultConfig returns the camera pose configuration.
func DefaultConfig() Config {
	return Config{
		Detection:       detection.DefaultConfig(),
		Tracking:        tracking.DefaultConfig(),
		LegacyKeypoints: protocol.DefaultLegacyKeypoints,
	}
}

// KinectConfig returns the depth-sensor skeleton configuration.
func KinectConfig() Config {
	cfg := DefaultConfig()
	cfg.Detection = detection.KinectConfig()
	cfg.Tracking = tracking.KinectConfig()
	return cfg
}

// PredictiveConfig returns the camera configuration with gated matching
// and dead reckoning.
func PredictiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Tracking = tracking.PredictiveConfig()
	return cfg
}

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetPose:       DefaultConfig(),
		PresetKinect:     KinectConfig(),
		PresetPredictive: PredictiveConfig(),
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks every nested config and returns the first failure.
func (c Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Tracking.Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	if c.LegacyHand {
		if len(c.LegacyKeypoints) == 0 {
			return config.Invalid("LegacyKeypoints", "must not be empty when legacy hand output is on")
		}
		for _, k := range c.LegacyKeypoints {
			if k < 0 || k >= detection.NumKeypoints {
				return config.Invalid("LegacyKeypoints", "index %d outside 0-%d", k, detection.NumKeypoints-1)
			}
		}
	}
	return nil
}
