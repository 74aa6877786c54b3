package tracking

import (
	"fmt"

	"github.com/teslashibe/go-jellyfish/internal/config"
)

// MatchingPolicy selects how detections are assigned to slots each frame.
type MatchingPolicy int

const (
	// MatchUnconditionalNearest always accepts the nearest remaining detection.
	MatchUnconditionalNearest MatchingPolicy = iota
	// MatchThresholdedNearest accepts the nearest detection within DistThreshold.
	MatchThresholdedNearest
	// MatchOrderedIndex assigns the i-th detection (left to right) to slot i.
	// Identities swap when people cross; there is no hysteresis.
	MatchOrderedIndex
)

func (p MatchingPolicy) String() string {
	switch p {
	case MatchUnconditionalNearest:
		return "nearest"
	case MatchThresholdedNearest:
		return "thresholded"
	case MatchOrderedIndex:
		return "ordered"
	default:
		return fmt.Sprintf("matching(%d)", int(p))
	}
}

// ParseMatchingPolicy parses "nearest", "thresholded" or "ordered".
func ParseMatchingPolicy(s string) (MatchingPolicy, error) {
	switch s {
	case "nearest":
		return MatchUnconditionalNearest, nil
	case "thresholded":
		return MatchThresholdedNearest, nil
	case "ordered":
		return MatchOrderedIndex, nil
	default:
		return 0, fmt.Errorf("unknown matching policy %q (want nearest, thresholded or ordered)", s)
	}
}

// AlphaPolicy selects how the smoothing factor is chosen per match.
type AlphaPolicy int

const (
	// AlphaFixed applies Alpha uniformly.
	AlphaFixed AlphaPolicy = iota
	// AlphaSizeAdaptive blends Alpha toward a size-derived factor.
	AlphaSizeAdaptive
)

func (p AlphaPolicy) String() string {
	switch p {
	case AlphaFixed:
		return "fixed"
	case AlphaSizeAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("alpha(%d)", int(p))
	}
}

// ParseAlphaPolicy parses "fixed" or "adaptive".
func ParseAlphaPolicy(s string) (AlphaPolicy, error) {
	switch s {
	case "fixed":
		return AlphaFixed, nil
	case "adaptive":
		return AlphaSizeAdaptive, nil
	default:
		return 0, fmt.Errorf("unknown alpha policy %q (want fixed or adaptive)", s)
	}
}

// EnergyPolicy selects how slot energy is smoothed.
type EnergyPolicy int

const (
	// EnergyExponential smooths energy with the same alpha as position.
	EnergyExponential EnergyPolicy = iota
	// EnergyWindow averages the last EnergyWindow raw samples.
	EnergyWindow
)

func (p EnergyPolicy) String() string {
	switch p {
	case EnergyExponential:
		return "ema"
	case EnergyWindow:
		return "window"
	default:
		return fmt.Sprintf("energy(%d)", int(p))
	}
}

// ParseEnergyPolicy parses "ema" or "window".
func ParseEnergyPolicy(s string) (EnergyPolicy, error) {
	switch s {
	case "ema":
		return EnergyExponential, nil
	case "window":
		return EnergyWindow, nil
	default:
		return 0, fmt.Errorf("unknown energy policy %q (want ema or window)", s)
	}
}

// Config holds all tunable parameters for presence tracking
type Config struct {
	// Slots
	MaxSlots   int // Number of presence slots (fixed for the process)
	MissForget int // Deactivate a slot once its miss count exceeds this

	// Matching
	Matching      MatchingPolicy
	DistThreshold float64 // Max match distance (normalized), thresholded policy only
	DeadReckoning bool    // Advance missed slots by their last velocity

	// Smoothing
	Alpha       float64 // Base EMA factor (0-1, higher = more new data)
	AlphaPolicy AlphaPolicy
	AlphaMin    float64 // Adaptive factor for the smallest targets
	AlphaMax    float64 // Adaptive factor for the largest targets
	SizeScale   float64 // Size multiplier mapping size into [AlphaMin, AlphaMax]

	// Energy
	EnergyPolicy EnergyPolicy
	EnergyWindow int // Samples averaged by the window policy
}

// DefaultConfig returns the configuration for camera-based multi-person tracking
func DefaultConfig() Config {
	return Config{
		MaxSlots:   4,
		MissForget: 14, // ~0.5s grace at 30 FPS

		Matching:      MatchUnconditionalNearest,
		DistThreshold: 0.2,
		DeadReckoning: false,

		Alpha:       0.30,
		AlphaPolicy: AlphaSizeAdaptive,
		AlphaMin:    0.18,
		AlphaMax:    0.9,
		SizeScale:   0.6,

		EnergyPolicy: EnergyExponential,
		EnergyWindow: 3,
	}
}

// KinectConfig returns the configuration for depth-sensor skeleton input,
// where bodies arrive without persistent IDs and are matched by rank.
func KinectConfig() Config {
	cfg := DefaultConfig()
	cfg.Matching = MatchOrderedIndex
	cfg.MissForget = 0
	cfg.Alpha = 0.35
	cfg.AlphaPolicy = AlphaFixed
	cfg.EnergyPolicy = EnergyWindow
	cfg.EnergyWindow = 3
	return cfg
}

// PredictiveConfig returns a gated, velocity-aware configuration that holds
// identities through short occlusions.
func PredictiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Matching = MatchThresholdedNearest
	cfg.DistThreshold = 0.15
	cfg.DeadReckoning = true
	return cfg
}

// Presets returns the named tracker presets.
func Presets() map[string]Config {
	return map[string]Config{
		"pose":       DefaultConfig(),
		"kinect":     KinectConfig(),
		"predictive": PredictiveConfig(),
	}
}

// Validate rejects configurations that are out of domain.
func (c Config) Validate() error {
	if c.MaxSlots <= 0 {
		return config.Invalid("MaxSlots", "must be positive, got %d", c.MaxSlots)
	}
	if c.MissForget < 0 {
		return config.Invalid("MissForget", "must not be negative, got %d", c.MissForget)
	}
	if !(c.DistThreshold >= 0) {
		return config.Invalid("DistThreshold", "must not be negative, got %g", c.DistThreshold)
	}
	switch c.Matching {
	case MatchUnconditionalNearest, MatchOrderedIndex:
	case MatchThresholdedNearest:
		if c.DistThreshold == 0 {
			return config.Invalid("DistThreshold", "must be positive for thresholded matching, got %g", c.DistThreshold)
		}
	default:
		return config.Invalid("Matching", "unknown policy %d", int(c.Matching))
	}
	if !(c.Alpha > 0 && c.Alpha <= 1) {
		return config.Invalid("Alpha", "must be in (0, 1], got %g", c.Alpha)
	}
	switch c.AlphaPolicy {
	case AlphaFixed:
	case AlphaSizeAdaptive:
		if !(c.AlphaMin > 0 && c.AlphaMin <= 1) {
			return config.Invalid("AlphaMin", "must be in (0, 1], got %g", c.AlphaMin)
		}
		if !(c.AlphaMax >= c.AlphaMin && c.AlphaMax <= 1) {
			return config.Invalid("AlphaMax", "must be in [AlphaMin, 1], got %g", c.AlphaMax)
		}
		if !(c.SizeScale >= 0) {
			return config.Invalid("SizeScale", "must not be negative, got %g", c.SizeScale)
		}
	default:
		return config.Invalid("AlphaPolicy", "unknown policy %d", int(c.AlphaPolicy))
	}
	switch c.EnergyPolicy {
	case EnergyExponential:
	case EnergyWindow:
		if c.EnergyWindow < 1 {
			return config.Invalid("EnergyWindow", "must be at least 1, got %d", c.EnergyWindow)
		}
	default:
		return config.Invalid("EnergyPolicy", "unknown policy %d", int(c.EnergyPolicy))
	}
	return nil
}
