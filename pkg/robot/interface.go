// Package robot provides the hardware abstraction layer for the arm.
//
// This package follows the Interface Segregation Principle (ISP) by defining
// small, focused interfaces that can be composed as needed. Consumers should
// depend only on the interfaces they actually use. One backend is chosen at
// startup; callers never branch on which one is active.
package robot

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrNotStarted is returned by operations that need a started backend.
	ErrNotStarted = errors.New("robot: backend not started")
	// ErrJointIndex is returned for a joint index outside 0..JointCount-1.
	ErrJointIndex = errors.New("robot: joint index out of range")
	// ErrNoCamera is returned by backends without a frame source.
	ErrNoCamera = errors.New("robot: no camera")
)

// Lifecycle starts and stops a backend.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// JointController reads and commands joint angles in degrees.
//
// SetJoint clamps into the joint's [min,max] before acting and returns false
// for an invalid index or an unstarted backend. Joint returns 0 when the
// backend is not started.
type JointController interface {
	JointCount() int
	Joint(i int) float64
	SetJoint(i int, deg float64) bool
}

// LimitController exposes per-joint angle limits. Unconfigured joints
// default to [0,360].
type LimitController interface {
	JointMin(i int) float64
	JointMax(i int) float64
	SetJointMin(i int, deg float64)
	SetJointMax(i int, deg float64)
}

// Camera provides frames from the arm-mounted camera.
type Camera interface {
	CaptureImage() (image.Image, error)
	// CameraFocalLength returns the focal length in pixels, or 0 if unknown.
	CameraFocalLength() float64
}

// Gripper opens and closes the end effector.
type Gripper interface {
	GripperOpen() bool
	GripperClose() bool
}

// StatusReporter describes backend state for operators.
type StatusReporter interface {
	Status() string
}

// Arm is the composite interface every backend implements.
type Arm interface {
	Lifecycle
	JointController
	LimitController
	Camera
	Gripper
	StatusReporter
}

// FrameSource supplies camera frames to a backend.
type FrameSource interface {
	Frame() (image.Image, error)
}

// Ensure all backends implement Arm
var (
	_ Arm = (*SimArm)(nil)
	_ Arm = (*SerialArm)(nil)
	_ Arm = (*RemoteArm)(nil)
)

// Joints reads every joint angle from c.
func Joints(c JointController) []float64 {
	n := c.JointCount()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = c.Joint(i)
	}
	return out
}
