package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// Config holds all tunable parameters for visual servoing
type Config struct {
	// Timing
	SensingInterval time.Duration // How often to capture and identify
	ControlInterval time.Duration // How often to compute and send joint commands

	// Control law
	Gain       float64 // Pixel error to degrees gain
	Smoothness float64 // k in exp(-k); larger is smoother
	Tolerance  float64 // Dead band in pixels

	// Reach joint (screen-space law)
	DriveReach    bool    // Adjust the reach joint from the apparent radius
	DesiredRadius float64 // Apparent radius to hold (px)
	ReachStep     float64 // Multiplier on the radius per tick
	ReachRange    float64 // Symmetric clamp on the reach command (deg)

	// Cartesian law
	ReferenceSize float64 // Real-world target size (m)

	// Joint assignment
	BaseJoint      int
	ReachJoint     int
	ElevationJoint int

	// Logging
	Verbose bool // Log every command at info instead of debug
}

// DefaultConfig returns the recommended configuration for responsive tracking
func DefaultConfig() Config {
	return Config{
		// Timing - ~30 Hz on both loops
		SensingInterval: 33 * time.Millisecond,
		ControlInterval: 33 * time.Millisecond,

		// Control law
		Gain:       1.0,
		Smoothness: 3.0, // exp(-3) ≈ 0.05 per tick
		Tolerance:  5.0,

		// Reach joint - left alone unless asked for
		DriveReach:    false,
		DesiredRadius: 50,
		ReachStep:     3,
		ReachRange:    45,

		// Cartesian law - 2 cm reference ball
		ReferenceSize: 0.02,

		BaseJoint:      kinematics.JointBase,
		ReachJoint:     kinematics.JointShoulder,
		ElevationJoint: kinematics.JointElbow,
	}
}

// SlowConfig returns a configuration for slower, smoother tracking
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.ControlInterval = 50 * time.Millisecond
	cfg.Gain = 0.6
	cfg.Smoothness = 4.0
	cfg.Tolerance = 8.0
	return cfg
}

// AggressiveConfig returns a configuration for very fast tracking
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.SensingInterval = 20 * time.Millisecond
	cfg.ControlInterval = 20 * time.Millisecond
	cfg.Gain = 1.5
	cfg.Smoothness = 2.0
	cfg.Tolerance = 3.0
	return cfg
}

// Validate rejects non-positive gains, intervals and tolerances.
func (c Config) Validate() error {
	var errs []error
	if c.SensingInterval <= 0 {
		errs = append(errs, fmt.Errorf("sensing interval must be positive, got %v", c.SensingInterval))
	}
	if c.ControlInterval <= 0 {
		errs = append(errs, fmt.Errorf("control interval must be positive, got %v", c.ControlInterval))
	}
	if c.Gain <= 0 {
		errs = append(errs, fmt.Errorf("gain must be positive, got %v", c.Gain))
	}
	if c.Smoothness <= 0 {
		errs = append(errs, fmt.Errorf("smoothness must be positive, got %v", c.Smoothness))
	}
	if c.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("tolerance must be positive, got %v", c.Tolerance))
	}
	if c.ReferenceSize <= 0 {
		errs = append(errs, fmt.Errorf("reference size must be positive, got %v", c.ReferenceSize))
	}
	if c.ReachRange < 0 {
		errs = append(errs, fmt.Errorf("reach range must not be negative, got %v", c.ReachRange))
	}
	return errors.Join(errs...)
}
