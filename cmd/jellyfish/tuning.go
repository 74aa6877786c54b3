package main

import (
	"fmt"

	"github.com/teslashibe/go-jellyfish/internal/config"
	"github.com/teslashibe/go-jellyfish/pkg/pipeline"
	"github.com/teslashibe/go-jellyfish/pkg/tracking"
	"github.com/teslashibe/go-jellyfish/pkg/tracking/detection"
)

// applyPreset replaces the pipeline config with a named preset.
func applyPreset(cfg *Config, name string) error {
	preset := pipeline.GetPreset(name)
	if preset == nil {
		return fmt.Errorf("unknown preset %q (want pose, kinect or predictive)", name)
	}
	legacy, keypoints := cfg.Pipeline.LegacyHand, cfg.Pipeline.LegacyKeypoints
	cfg.Preset = name
	cfg.Pipeline = *preset
	cfg.Pipeline.LegacyHand, cfg.Pipeline.LegacyKeypoints = legacy, keypoints
	return nil
}

// applyTuning overlays the fields set in a tuning file. A preset in the
// file is applied first so the other fields refine it.
func applyTuning(cfg *Config, t *config.Tuning) error {
	if t.Preset != nil {
		if err := applyPreset(cfg, *t.Preset); err != nil {
			return err
		}
	}

	tr := &cfg.Pipeline.Tracking
	if t.MaxSlots != nil {
		tr.MaxSlots = *t.MaxSlots
	}
	if t.Matching != nil {
		m, err := tracking.ParseMatchingPolicy(*t.Matching)
		if err != nil {
			return err
		}
		tr.Matching = m
	}
	if t.DistThreshold != nil {
		tr.DistThreshold = *t.DistThreshold
	}
	if t.Alpha != nil {
		tr.Alpha = *t.Alpha
	}
	if t.AlphaPolicy != nil {
		p, err := tracking.ParseAlphaPolicy(*t.AlphaPolicy)
		if err != nil {
			return err
		}
		tr.AlphaPolicy = p
	}
	if t.AlphaMin != nil {
		tr.AlphaMin = *t.AlphaMin
	}
	if t.AlphaMax != nil {
		tr.AlphaMax = *t.AlphaMax
	}
	if t.SizeScale != nil {
		tr.SizeScale = *t.SizeScale
	}
	if t.EnergyPolicy != nil {
		p, err := tracking.ParseEnergyPolicy(*t.EnergyPolicy)
		if err != nil {
			return err
		}
		tr.EnergyPolicy = p
	}
	if t.EnergyWindow != nil {
		tr.EnergyWindow = *t.EnergyWindow
	}
	if t.MissForget != nil {
		tr.MissForget = *t.MissForget
	}
	if t.DeadReckoning != nil {
		tr.DeadReckoning = *t.DeadReckoning
	}

	det := &cfg.Pipeline.Detection
	if t.ConfidenceMin != nil {
		det.ConfidenceMin = *t.ConfidenceMin
	}
	if t.MinSize != nil {
		det.MinSize = *t.MinSize
	}
	if t.Anchor != nil {
		a, err := detection.ParseAnchor(*t.Anchor)
		if err != nil {
			return err
		}
		det.Anchor = a
	}
	if t.SizeMode != nil {
		m, err := detection.ParseSizeMode(*t.SizeMode)
		if err != nil {
			return err
		}
		det.SizeMode = m
	}
	if t.Mirror != nil {
		det.Mirror = *t.Mirror
		cfg.Camera.MirrorDisplay = *t.Mirror
	}

	if t.OSCHost != nil {
		cfg.OSC.Host = *t.OSCHost
	}
	if t.OSCPort != nil {
		cfg.OSC.Port = *t.OSCPort
	}
	if t.MaxRate != nil {
		cfg.OSC.MaxRate = *t.MaxRate
	}
	if t.Bundle != nil {
		cfg.OSC.Bundle = *t.Bundle
	}
	if t.LegacyHand != nil {
		cfg.Pipeline.LegacyHand = *t.LegacyHand
	}
	return nil
}
