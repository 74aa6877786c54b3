package tracking

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-jellyfish/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxSlots != 4 {
		t.Errorf("MaxSlots should be 4, got %d", cfg.MaxSlots)
	}
	if cfg.MissForget != 14 {
		t.Errorf("MissForget should be 14, got %d", cfg.MissForget)
	}
	if cfg.Alpha != 0.30 {
		t.Errorf("Alpha should be 0.30, got %.2f", cfg.Alpha)
	}
	if cfg.Matching != MatchUnconditionalNearest {
		t.Errorf("Matching should be nearest, got %v", cfg.Matching)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate: %v", err)
	}
}

func TestPresetsValidate(t *testing.T) {
	for name, cfg := range Presets() {
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestKinectConfig(t *testing.T) {
	cfg := KinectConfig()

	if cfg.Matching != MatchOrderedIndex {
		t.Errorf("Matching should be ordered, got %v", cfg.Matching)
	}
	if cfg.EnergyPolicy != EnergyWindow || cfg.EnergyWindow != 3 {
		t.Errorf("energy should be a 3-sample window, got %v/%d", cfg.EnergyPolicy, cfg.EnergyWindow)
	}
	if cfg.Alpha != 0.35 {
		t.Errorf("Alpha should be 0.35, got %.2f", cfg.Alpha)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero slots", func(c *Config) { c.MaxSlots = 0 }, "MaxSlots"},
		{"negative forget", func(c *Config) { c.MissForget = -1 }, "MissForget"},
		{"zero alpha", func(c *Config) { c.Alpha = 0 }, "Alpha"},
		{"alpha above one", func(c *Config) { c.Alpha = 1.2 }, "Alpha"},
		{"thresholded without distance", func(c *Config) {
			c.Matching = MatchThresholdedNearest
			c.DistThreshold = 0
		}, "DistThreshold"},
		{"unknown matching", func(c *Config) { c.Matching = MatchingPolicy(9) }, "Matching"},
		{"inverted adaptive bounds", func(c *Config) { c.AlphaMin, c.AlphaMax = 0.8, 0.2 }, "AlphaMax"},
		{"negative size scale", func(c *Config) { c.SizeScale = -1 }, "SizeScale"},
		{"NaN alpha", func(c *Config) { c.Alpha = math.NaN() }, "Alpha"},
		{"NaN alpha min", func(c *Config) { c.AlphaMin = math.NaN() }, "AlphaMin"},
		{"NaN alpha max", func(c *Config) { c.AlphaMax = math.NaN() }, "AlphaMax"},
		{"NaN size scale", func(c *Config) { c.SizeScale = math.NaN() }, "SizeScale"},
		{"NaN distance", func(c *Config) {
			c.Matching = MatchThresholdedNearest
			c.DistThreshold = math.NaN()
		}, "DistThreshold"},
		{"NaN distance unused by policy", func(c *Config) { c.DistThreshold = math.NaN() }, "DistThreshold"},
		{"empty energy window", func(c *Config) {
			c.EnergyPolicy = EnergyWindow
			c.EnergyWindow = 0
		}, "EnergyWindow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cfgErr *config.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *config.ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field = %s, want %s", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestParsePolicies(t *testing.T) {
	for _, p := range []MatchingPolicy{MatchUnconditionalNearest, MatchThresholdedNearest, MatchOrderedIndex} {
		got, err := ParseMatchingPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseMatchingPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	for _, p := range []AlphaPolicy{AlphaFixed, AlphaSizeAdaptive} {
		got, err := ParseAlphaPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseAlphaPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	for _, p := range []EnergyPolicy{EnergyExponential, EnergyWindow} {
		got, err := ParseEnergyPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseEnergyPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseMatchingPolicy("hungarian"); err == nil {
		t.Error("ParseMatchingPolicy(hungarian) should fail")
	}
}

func TestSmooth(t *testing.T) {
	tests := []struct {
		name            string
		old, raw, alpha float64
		expect          float64
	}{
		{"first step", 0, 1, 0.3, 0.3},
		{"second step", 0.3, 1, 0.3, 0.51},
		{"alpha one takes raw", 0.2, 0.9, 1, 0.9},
		{"steady state", 0.5, 0.5, 0.3, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Smooth(tt.old, tt.raw, tt.alpha)
			if math.Abs(got-tt.expect) > 1e-9 {
				t.Errorf("got %.4f, want %.4f", got, tt.expect)
			}
		})
	}
}

func TestSmoothConvergence(t *testing.T) {
	v := 0.0
	for k := 1; k <= 5; k++ {
		v = Smooth(v, 1, 0.3)
	}
	if math.Abs(v-0.83193) > 1e-5 {
		t.Errorf("after 5 frames got %.5f, want 0.83193", v)
	}
}

func TestAdaptiveAlpha(t *testing.T) {
	tests := []struct {
		name   string
		size   float64
		expect float64
	}{
		{"zero size", 0, 0.3 + (0.18-0.3)*0.18},
		{"mid size", 0.5, 0.338016},
		{"saturated", 5, 0.3 + (0.9-0.3)*0.9},
	}

	cfg := DefaultConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.alphaFor(tt.size)
			if math.Abs(got-tt.expect) > 1e-9 {
				t.Errorf("got %.6f, want %.6f", got, tt.expect)
			}
		})
	}

	cfg.AlphaPolicy = AlphaFixed
	if got := cfg.alphaFor(0.9); got != cfg.Alpha {
		t.Errorf("fixed policy: got %.3f, want %.3f", got, cfg.Alpha)
	}
}
