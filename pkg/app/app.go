// Package app wires the arm backend, the identifier, the tracker and the
// web API into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/teslashibe/go-armvision/internal/config"
	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/camera"
	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection/opencv"
	"github.com/teslashibe/go-armvision/pkg/web"
)

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config config.Config

	// Hardware
	webcam *camera.Webcam
	arm    robot.Arm

	// Vision and control
	identifier detection.Identifier
	tracker    *tracking.Tracker
	mover      *tracking.Mover

	// Web API
	cameraManager *camera.Manager
	webServer     *web.Server

	// NoTrack serves the arm without running the tracker.
	NoTrack bool
}

// New creates a new application with the given configuration.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Init(cfg.LogLevel)
	return &App{config: cfg}, nil
}

// Init initializes all components.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	fmt.Println("🦾 Arm Vision")
	fmt.Println("=============")
	fmt.Printf("🔧 Backend: %s, controller: %s, identifier: %s\n",
		a.config.HAL, a.config.Controller, a.config.Identifier)

	if config.NeedsLocalCamera(a.config) {
		fmt.Print("📹 Opening camera... ")
		wc, err := camera.OpenWebcam(a.config.Camera)
		if err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		a.webcam = wc
		fmt.Println("✅")
	}

	var frames robot.FrameSource
	if a.webcam != nil {
		frames = a.webcam
	}
	arm, err := config.NewArm(a.config, frames)
	if err != nil {
		return err
	}
	fmt.Print("🤖 Starting arm... ")
	if err := arm.Start(ctx); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	a.arm = arm
	fmt.Printf("✅ %s\n", arm.Status())

	if arm.JointCount() >= 3 {
		a.mover = tracking.NewMover(a.config.Geometry, arm)
	}

	if !a.NoTrack {
		if err := a.initTracking(); err != nil {
			return fmt.Errorf("tracking: %w", err)
		}
	}

	a.cameraManager = camera.NewManager(a.config.Camera)
	if a.webcam != nil {
		a.cameraManager.OnConfigChange = a.webcam.Apply
	}

	if a.config.UseServer {
		a.webServer = web.NewServer(web.Config{
			Port:    a.config.ServerPort,
			Arm:     a.arm,
			Tracker: a.trackerAPI(),
			Mover:   a.mover,
			Camera:  a.cameraManager,
			Quality: a.config.Camera.Quality,
		})
		if a.tracker != nil {
			a.tracker.SetFrameHandler(a.webServer.PublishFrame)
		}
	}
	return nil
}

// initTracking builds the identifier, the control law and the tracker.
func (a *App) initTracking() error {
	fmt.Print("👁️  Loading identifier... ")
	id, err := NewIdentifier(a.config)
	if err != nil {
		fmt.Println("⚠️")
		return err
	}
	a.identifier = id
	fmt.Printf("✅ %d labels\n", len(id.Labels()))

	law, err := NewLaw(a.config, a.arm)
	if err != nil {
		return err
	}

	a.tracker, err = tracking.New(a.config.TrackingConfig(), a.arm, a.arm, id, law)
	if err != nil {
		return err
	}
	if label := a.config.TargetLabel; label != "" {
		if !a.tracker.SetTargetLabel(label) {
			fmt.Printf("⚠️  Unknown target label %q, following the largest object\n", label)
		}
	}
	if a.arm.JointCount() == 0 {
		fmt.Println("📷 Camera-only backend, joint output paused")
		a.tracker.Pause(true)
	}
	return nil
}

// trackerAPI avoids handing the server a typed nil.
func (a *App) trackerAPI() web.Tracker {
	if a.tracker == nil {
		return nil
	}
	return a.tracker
}

// Run starts background work and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	fmt.Println("\n🎯 Running (Ctrl+C to exit)")

	if a.webServer != nil {
		a.webServer.StartAsync()
		if a.tracker == nil {
			go a.webServer.PumpFrames(ctx, a.config.TrackingConfig().SensingInterval)
		}
	}
	if a.tracker != nil {
		return a.tracker.Run(ctx)
	}

	<-ctx.Done()
	return nil
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	fmt.Println("\n👋 Goodbye!")

	if a.tracker != nil {
		a.tracker.Stop()
	}
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			log.Warn("web shutdown", "error", err)
		}
	}
	if a.arm != nil {
		if err := a.arm.Stop(); err != nil {
			log.Warn("arm stop", "error", err)
		}
	}
	if c, ok := a.identifier.(io.Closer); ok {
		c.Close()
	}
	if a.webcam != nil {
		a.webcam.Close()
	}
}

// NewIdentifier builds the identifier named by cfg.Identifier.
func NewIdentifier(cfg config.Config) (detection.Identifier, error) {
	switch cfg.Identifier {
	case config.IdentifierColor:
		return opencv.NewColorIdentifier(opencv.DefaultColorConfig()), nil
	case config.IdentifierFace:
		fc := opencv.DefaultFaceConfig()
		if cfg.ModelPath != "" {
			fc.ModelPath = cfg.ModelPath
		}
		id, err := opencv.NewFaceIdentifier(fc)
		if err != nil {
			return nil, err
		}
		return id, nil
	case config.IdentifierYOLO:
		yc := opencv.DefaultYOLOConfig()
		if cfg.ModelPath != "" {
			yc.ModelPath = cfg.ModelPath
		}
		id, err := opencv.NewYOLOIdentifier(yc)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownIdentifier, cfg.Identifier)
	}
}

// ErrTooFewJoints is returned when the Cartesian law is asked to drive an
// arm without base, shoulder and elbow joints.
var ErrTooFewJoints = errors.New("app: cartesian control needs 3 joints")

// NewLaw builds the control law named by cfg.Controller. The Cartesian law
// reads the backend focal length when the calibration asks for it.
func NewLaw(cfg config.Config, arm robot.Arm) (tracking.Law, error) {
	switch cfg.Controller {
	case config.ControllerScreen:
		return tracking.NewScreenLaw(), nil
	case config.ControllerCartesian:
		if arm.JointCount() != 0 && arm.JointCount() < 3 {
			return nil, ErrTooFewJoints
		}
		return tracking.NewCartesianLaw(cfg.Geometry, cfg.Tracking.Smoothness, arm.CameraFocalLength), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownController, cfg.Controller)
	}
}
