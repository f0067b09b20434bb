// Package camera provides the webcam frame source used by the laptop,
// simulated and physical backends, with runtime-configurable settings.
// This follows the same pattern as pkg/tracking for tunable parameters.
package camera

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Device is the OpenCV capture index (0 for the first webcam).
	// A negative device disables the camera.
	Device int `json:"device"`

	// === Resolution ===
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100 for streaming

	// === Orientation ===
	FlipHorizontal bool `json:"flip_horizontal"`
	FlipVertical   bool `json:"flip_vertical"`

	// Brightness is passed to the driver (0 to 1, driver-specific).
	// Set to 0 to leave the driver default.
	Brightness float64 `json:"brightness"`
}

// Capture limits accepted by Validate
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the recommended configuration.
// 640x480 keeps identification within one control tick.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,
	}
}

// HDConfig returns a 1280x720 configuration for sharper detection at
// longer range.
func HDConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}

// Enabled reports whether a capture device is configured.
func (c *Config) Enabled() bool {
	return c.Device >= 0
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	// Brightness
	if c.Brightness < 0 || c.Brightness > 1.0 {
		errors = append(errors, "brightness must be between 0 and 1.0")
	}

	return errors
}

// Capabilities returns the limits the camera API accepts.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"presets":       PresetNames(),
	}
}
