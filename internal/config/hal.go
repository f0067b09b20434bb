package config

import (
	"fmt"

	"github.com/teslashibe/go-armvision/pkg/robot"
)

// NewArm builds the backend named by cfg.HAL. frames may be nil; the
// remote backend ignores it and streams from the remote server instead.
// This is the only place that branches on backend kind.
func NewArm(cfg Config, frames robot.FrameSource) (robot.Arm, error) {
	focal := cfg.Geometry.Camera.FocalPixels()

	switch cfg.HAL {
	case HALSim:
		return robot.NewSimArm(robot.SimConfig{
			Joints:      3,
			Limits:      cfg.Geometry.Limits,
			FocalLength: focal,
			Frames:      frames,
			Initial:     []float64{180, 45, 45},
		}), nil

	case HALLaptop:
		// Camera only: no joints, every SetJoint reports failure.
		return robot.NewSimArm(robot.SimConfig{
			FocalLength: focal,
			Frames:      frames,
		}), nil

	case HALPhysical:
		sc := robot.DefaultSerialConfig()
		sc.Port = cfg.SerialPort
		sc.BaudRate = cfg.SerialBaud
		sc.Limits = cfg.Geometry.Limits
		sc.FocalLength = focal
		sc.Frames = frames
		return robot.NewSerialArm(sc), nil

	case HALRemote:
		return robot.NewRemoteArm(robot.RemoteConfig{
			BaseURL:      cfg.RemoteURL(),
			StreamCamera: true,
		}), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHAL, cfg.HAL)
	}
}

// NeedsLocalCamera reports whether the backend reads frames from a local
// capture device.
func NeedsLocalCamera(cfg Config) bool {
	return cfg.HAL != HALRemote && cfg.Camera.Enabled()
}
