package robot

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// SimConfig configures an in-process arm.
type SimConfig struct {
	Joints      int
	Limits      []kinematics.JointLimit
	FocalLength float64     // pixels; 0 when unknown
	Frames      FrameSource // optional camera
	Initial     []float64   // starting joint angles
}

// SimArm is a virtual arm held in memory. With zero joints and a frame
// source it acts as a camera-only rig for developing detection on a laptop.
type SimArm struct {
	limits *JointLimits
	frames FrameSource
	focal  float64
	logger *slog.Logger

	mu      sync.Mutex
	joints  []float64
	started bool
	gripped bool
}

// NewSimArm creates a virtual arm.
func NewSimArm(cfg SimConfig) *SimArm {
	joints := make([]float64, cfg.Joints)
	copy(joints, cfg.Initial)
	return &SimArm{
		limits: NewJointLimits(cfg.Limits),
		frames: cfg.Frames,
		focal:  cfg.FocalLength,
		logger: log.Component("sim-arm"),
		joints: joints,
	}
}

// Start marks the arm as running.
func (s *SimArm) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.logger.Info("simulated arm started", "joints", len(s.joints))
	return nil
}

// Stop marks the arm as stopped.
func (s *SimArm) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// JointCount returns the number of joints.
func (s *SimArm) JointCount() int {
	return len(s.joints)
}

// Joint returns joint i in degrees, or 0 if unstarted or out of range.
func (s *SimArm) Joint(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || i < 0 || i >= len(s.joints) {
		return 0
	}
	return s.joints[i]
}

// SetJoint clamps deg to the joint limits and stores it.
func (s *SimArm) SetJoint(i int, deg float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || i < 0 || i >= len(s.joints) {
		return false
	}
	s.joints[i] = s.limits.Clamp(i, deg)
	return true
}

// JointMin returns the lower limit for joint i.
func (s *SimArm) JointMin(i int) float64 { return s.limits.Min(i) }

// JointMax returns the upper limit for joint i.
func (s *SimArm) JointMax(i int) float64 { return s.limits.Max(i) }

// SetJointMin sets the lower limit for joint i.
func (s *SimArm) SetJointMin(i int, deg float64) { s.limits.SetMin(i, deg) }

// SetJointMax sets the upper limit for joint i.
func (s *SimArm) SetJointMax(i int, deg float64) { s.limits.SetMax(i, deg) }

// CaptureImage returns the next frame from the configured source.
func (s *SimArm) CaptureImage() (image.Image, error) {
	if s.frames == nil {
		return nil, ErrNoCamera
	}
	img, err := s.frames.Frame()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	return img, nil
}

// CameraFocalLength returns the configured focal length in pixels.
func (s *SimArm) CameraFocalLength() float64 {
	return s.focal
}

// GripperOpen opens the virtual gripper.
func (s *SimArm) GripperOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	s.gripped = false
	return true
}

// GripperClose closes the virtual gripper.
func (s *SimArm) GripperClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	s.gripped = true
	return true
}

// Status describes the current joint state.
func (s *SimArm) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "stopped"
	if s.started {
		state = "running"
	}
	grip := "open"
	if s.gripped {
		grip = "closed"
	}
	return fmt.Sprintf("sim %s joints=%v gripper=%s", state, s.joints, grip)
}
