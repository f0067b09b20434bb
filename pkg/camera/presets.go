package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetFast    = "fast"
	PresetDim     = "dim"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		Preset720p:    HDConfig(),
		Preset1080p:   FullHDConfig(),
		PresetFast:    FastConfig(),
		PresetDim:     DimConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset720p,
		Preset1080p,
		PresetFast,
		PresetDim,
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

// FullHDConfig returns 1080p configuration.
// Identification gets slower; use with a longer sensing interval.
func FullHDConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	return cfg
}

// FastConfig returns a low resolution, high rate configuration for
// small targets close to the camera.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 60
	cfg.Quality = 60
	return cfg
}

// DimConfig raises driver brightness for poorly lit benches.
func DimConfig() Config {
	cfg := DefaultConfig()
	cfg.Brightness = 0.7
	return cfg
}
