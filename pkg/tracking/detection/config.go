package detection

import (
	"fmt"

	"github.com/teslashibe/go-jellyfish/internal/config"
)

// Anchor selects which joints define a detection's position.
type Anchor int

const (
	// AnchorWrists follows the wrist midpoint; reacts to arm motion.
	AnchorWrists Anchor = iota
	// AnchorShoulders follows the shoulder midpoint; steadier.
	AnchorShoulders
)

func (a Anchor) String() string {
	switch a {
	case AnchorWrists:
		return "wrists"
	case AnchorShoulders:
		return "shoulders"
	default:
		return fmt.Sprintf("anchor(%d)", int(a))
	}
}

// ParseAnchor parses "wrists" or "shoulders".
func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case "wrists":
		return AnchorWrists, nil
	case "shoulders":
		return AnchorShoulders, nil
	default:
		return 0, fmt.Errorf("unknown anchor %q (want wrists or shoulders)", s)
	}
}

// SizeMode selects which joints span the size proxy.
type SizeMode int

const (
	// SizeAllLandmarks uses the vertical extent of every keypoint.
	SizeAllLandmarks SizeMode = iota
	// SizeUpperLimbs uses the vertical extent of wrists and shoulders.
	SizeUpperLimbs
)

func (m SizeMode) String() string {
	switch m {
	case SizeAllLandmarks:
		return "all"
	case SizeUpperLimbs:
		return "limbs"
	default:
		return fmt.Sprintf("size_mode(%d)", int(m))
	}
}

// ParseSizeMode parses "all" or "limbs".
func ParseSizeMode(s string) (SizeMode, error) {
	switch s {
	case "all":
		return SizeAllLandmarks, nil
	case "limbs":
		return SizeUpperLimbs, nil
	default:
		return 0, fmt.Errorf("unknown size mode %q (want all or limbs)", s)
	}
}

// Config holds the detection gating and reduction parameters
type Config struct {
	ConfidenceMin float64  // Discard poses whose aggregate confidence is below this
	MinSize       float64  // Discard poses whose size proxy is below this
	Anchor        Anchor   // Joint pair used for position
	SizeMode      SizeMode // Joint set used for the size proxy
	Mirror        bool     // Flip x for screen-facing installations
}

// DefaultConfig returns the defaults for camera-based multi-person pose input
func DefaultConfig() Config {
	return Config{
		ConfidenceMin: 0.55,
		MinSize:       0.03,
		Anchor:        AnchorWrists,
		SizeMode:      SizeAllLandmarks,
		Mirror:        true,
	}
}

// KinectConfig returns the defaults for depth-sensor skeleton input
func KinectConfig() Config {
	return Config{
		ConfidenceMin: 0.35,
		MinSize:       0,
		Anchor:        AnchorWrists,
		SizeMode:      SizeUpperLimbs,
		Mirror:        true,
	}
}

// Validate checks that the gating thresholds are in range.
func (c Config) Validate() error {
	if !(c.ConfidenceMin >= 0 && c.ConfidenceMin <= 1) {
		return config.Invalid("ConfidenceMin", "must be in [0, 1], got %g", c.ConfidenceMin)
	}
	if !(c.MinSize >= 0 && c.MinSize <= 1) {
		return config.Invalid("MinSize", "must be in [0, 1], got %g", c.MinSize)
	}
	if c.Anchor != AnchorWrists && c.Anchor != AnchorShoulders {
		return config.Invalid("Anchor", "unknown anchor %d", int(c.Anchor))
	}
	if c.SizeMode != SizeAllLandmarks && c.SizeMode != SizeUpperLimbs {
		return config.Invalid("SizeMode", "unknown size mode %d", int(c.SizeMode))
	}
	return nil
}
