// Package camera captures frames for the pose detector.
// Capture, low-light preprocessing, the debug overlay and JPEG encoding
// all go through gocv.
package camera

import "fmt"

// Config holds all camera configuration parameters.
type Config struct {
	// === Device ===
	DeviceIndex int `json:"device_index"` // OpenCV capture index

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // Dashboard JPEG quality 1-100

	// === Low Light ===
	CLAHE CLAHEConfig `json:"clahe"`

	// === Display ===
	// MirrorDisplay flips the overlay image horizontally so that it
	// matches the mirrored slot coordinates.
	MirrorDisplay bool `json:"mirror_display"`
	ShowOverlay   bool `json:"show_overlay"`
}

// CLAHEConfig controls contrast equalisation of dark frames.
type CLAHEConfig struct {
	Enabled bool `json:"enabled"`

	// BrightnessThreshold is the mean pixel value (0-255) below which a
	// frame counts as dark and is equalised.
	BrightnessThreshold float64 `json:"brightness_threshold"`

	ClipLimit float64 `json:"clip_limit"`
	TileGrid  int     `json:"tile_grid"` // Tiles per side
}

// Capture limits
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns 1280x720 @ 30 with low-light equalisation on.
func DefaultConfig() Config {
	return Config{
		DeviceIndex: 0,
		Width:       1280,
		Height:      720,
		Framerate:   30,
		Quality:     70,

		CLAHE: CLAHEConfig{
			Enabled:             true,
			BrightnessThreshold: 95,
			ClipLimit:           3.0,
			TileGrid:            8,
		},

		MirrorDisplay: true,
		ShowOverlay:   false,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceIndex < 0 {
		errors = append(errors, "device_index must not be negative")
	}

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	// CLAHE
	if c.CLAHE.Enabled {
		if c.CLAHE.BrightnessThreshold <= 0 || c.CLAHE.BrightnessThreshold > 255 {
			errors = append(errors, "clahe.brightness_threshold must be in (0, 255]")
		}
		if c.CLAHE.ClipLimit <= 0 {
			errors = append(errors, "clahe.clip_limit must be positive")
		}
		if c.CLAHE.TileGrid < 1 || c.CLAHE.TileGrid > 64 {
			errors = append(errors, "clahe.tile_grid must be between 1 and 64")
		}
	}

	return errors
}
