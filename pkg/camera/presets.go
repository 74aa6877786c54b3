package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	Preset480p    = "480p"
	Preset1080p   = "1080p"
	PresetBright  = "bright"
	PresetDebug   = "debug"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		Preset480p:    SD480Config(),
		Preset1080p:   HD1080Config(),
		PresetBright:  BrightRoomConfig(),
		PresetDebug:   DebugConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset480p,
		Preset1080p,
		PresetBright,
		PresetDebug,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// SD480Config returns 640x480 for slow machines.
func SD480Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD1080Config returns 1080p. Better keypoints at range, more CPU.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// BrightRoomConfig disables low-light equalisation.
func BrightRoomConfig() Config {
	cfg := DefaultConfig()
	cfg.CLAHE.Enabled = false
	return cfg
}

// DebugConfig opens the overlay window.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.ShowOverlay = true
	return cfg
}
