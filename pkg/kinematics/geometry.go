// Package kinematics provides forward and inverse kinematics for the
// three-joint arm (base yaw, shoulder, elbow).
//
// All functions are pure: the arm geometry is passed explicitly and never
// mutated, so the same ArmGeometry value can be shared by every goroutine.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

// Links holds the six link lengths in centimeters.
type Links struct {
	A1 float64 `json:"a1"` // Base height
	A2 float64 `json:"a2"` // Shoulder lateral offset
	A3 float64 `json:"a3"` // Upper arm
	A4 float64 `json:"a4"` // Elbow lateral offset
	A5 float64 `json:"a5"` // Forearm
	A6 float64 `json:"a6"` // Tool
}

// Reach returns the combined forearm and tool length.
func (l Links) Reach() float64 {
	return l.A5 + l.A6
}

// JointLimit is an inclusive angle range in degrees.
type JointLimit struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultJointLimit applies to any joint without a configured range.
var DefaultJointLimit = JointLimit{Min: 0, Max: 360}

// Clamp limits deg to the range.
func (l JointLimit) Clamp(deg float64) float64 {
	return math.Max(l.Min, math.Min(l.Max, deg))
}

// FocalSource selects which focal length derivation is authoritative.
type FocalSource string

const (
	// FocalFromFOV derives the focal length from field of view and resolution.
	FocalFromFOV FocalSource = "fov"
	// FocalFromLens derives the focal length from the lens and sensor width.
	FocalFromLens FocalSource = "lens"
	// FocalFromHAL asks the backend for its focal length.
	FocalFromHAL FocalSource = "hal"
)

// CameraCalibration describes the arm-mounted camera.
type CameraCalibration struct {
	SensorWidth      float64     `json:"sensor_width"`      // meters
	FocalLength      float64     `json:"focal_length"`      // meters
	SensorResolution float64     `json:"sensor_resolution"` // horizontal pixels
	FOV              float64     `json:"fov"`               // degrees
	MountOffsetY     float64     `json:"mount_offset_y"`    // meters
	MountOffsetZ     float64     `json:"mount_offset_z"`    // meters
	MountTilt        float64     `json:"mount_tilt"`        // degrees
	FocalSource      FocalSource `json:"focal_source"`
}

// FocalPixelsFromLens returns focal_length * resolution / sensor_width.
func (c CameraCalibration) FocalPixelsFromLens() float64 {
	if c.SensorWidth == 0 {
		return 0
	}
	return c.FocalLength * c.SensorResolution / c.SensorWidth
}

// FocalPixelsFromFOV returns resolution / (2 * tan(fov/2)).
func (c CameraCalibration) FocalPixelsFromFOV() float64 {
	t := math.Tan(Radians(c.FOV) / 2)
	if t == 0 {
		return 0
	}
	return c.SensorResolution / (2 * t)
}

// FocalPixels returns the focal length for the configured source. The
// hal source cannot be resolved here and reports the FOV value; callers
// holding a backend should ask it directly.
func (c CameraCalibration) FocalPixels() float64 {
	if c.FocalSource == FocalFromLens {
		return c.FocalPixelsFromLens()
	}
	return c.FocalPixelsFromFOV()
}

// ArmGeometry is the immutable physical description of the arm.
type ArmGeometry struct {
	Links  Links             `json:"links"`
	Limits []JointLimit      `json:"limits"`
	Camera CameraCalibration `json:"camera"`
}

// DefaultGeometry returns the measured parameters of the reference arm.
func DefaultGeometry() ArmGeometry {
	return ArmGeometry{
		Links: Links{
			A1: 13.1,
			A2: 3.25,
			A3: 11.4,
			A4: 3.25,
			A5: 5.8,
			A6: 11.11,
		},
		Limits: []JointLimit{
			{Min: 0, Max: 270}, // base
			{Min: 0, Max: 90},  // shoulder
			{Min: 0, Max: 75},  // elbow
		},
		Camera: CameraCalibration{
			SensorWidth:      0.006,
			FocalLength:      0.0063,
			SensorResolution: 1257,
			FOV:              60,
			MountOffsetY:     0.052454,
			MountOffsetZ:     0.033704,
			MountTilt:        22.5,
			FocalSource:      FocalFromFOV,
		},
	}
}

// Limit returns the configured range for joint i, or DefaultJointLimit.
func (g ArmGeometry) Limit(i int) JointLimit {
	if i < 0 || i >= len(g.Limits) {
		return DefaultJointLimit
	}
	return g.Limits[i]
}

// Validate checks that link lengths and limits are usable.
func (g ArmGeometry) Validate() error {
	var errs []error
	if g.Links.A1 <= 0 {
		errs = append(errs, errors.New("a1 (base height) must be positive"))
	}
	if g.Links.A3 <= 0 {
		errs = append(errs, errors.New("a3 (upper arm) must be positive"))
	}
	if g.Links.Reach() <= 0 {
		errs = append(errs, errors.New("a5+a6 (forearm) must be positive"))
	}
	for i, l := range g.Limits {
		if l.Min > l.Max {
			errs = append(errs, fmt.Errorf("joint %d: min %.1f above max %.1f", i, l.Min, l.Max))
		}
	}
	switch g.Camera.FocalSource {
	case "", FocalFromFOV, FocalFromLens, FocalFromHAL:
	default:
		errs = append(errs, fmt.Errorf("unknown focal source %q", g.Camera.FocalSource))
	}
	return errors.Join(errs...)
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
