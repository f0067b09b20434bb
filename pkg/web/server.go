// Package web serves the HTTP and websocket API for a running arm: the
// tracking controller, direct joint access, and live camera and joint
// streams. The same API is what robot.RemoteArm talks to.
package web

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/camera"
	"github.com/teslashibe/go-armvision/pkg/hub"
	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// Tracker is the controller surface the API drives.
type Tracker interface {
	tracking.Controller
	State() tracking.State
	Running() bool
	Paused() bool
	ObjectFound() bool
	FrameCount() uint64
	Objects() []detection.Object
	GetTuningParams() tracking.TuningParams
	SetTuningParams(params tracking.TuningParams)
}

var _ Tracker = (*tracking.Tracker)(nil)

// Config configures the server. Tracker, Mover and Camera are optional;
// routes for a missing component answer 503.
type Config struct {
	Port    string
	Arm     robot.Arm
	Tracker Tracker
	Mover   *tracking.Mover
	Camera  *camera.Manager
	// Quality is the JPEG quality for streamed frames.
	Quality int
}

// Server is the arm API server
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	arm     robot.Arm
	tracker Tracker
	mover   *tracking.Mover
	camera  *camera.Manager
	quality int

	// Latest frame, encoded on demand
	frameMu sync.RWMutex
	frame   image.Image

	// Background context for work started by requests
	ctx    context.Context
	cancel context.CancelFunc

	moveMu     sync.Mutex
	moveCancel context.CancelFunc
	moveGen    uint64
	movePaused bool

	// Hubs for websocket broadcast
	cameraHub *hub.Hub
	jointsHub *hub.Hub
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Quality == 0 {
		cfg.Quality = camera.DefaultConfig().Quality
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		port:      cfg.Port,
		logger:    log.Component("web"),
		arm:       cfg.Arm,
		tracker:   cfg.Tracker,
		mover:     cfg.Mover,
		camera:    cfg.Camera,
		quality:   cfg.Quality,
		ctx:       ctx,
		cancel:    cancel,
		cameraHub: hub.New("camera"),
		jointsHub: hub.New("joints"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Arm Vision",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	// Controller routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/target", s.handleGetTarget)
	api.Post("/target", s.handleSetTarget)
	api.Get("/objects", s.handleObjects)
	api.Get("/objects/detailed", s.handleObjectsDetailed)
	api.Get("/labels", s.handleLabels)
	api.Post("/tracking/:action", s.handleTracking)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Post("/camera/config", s.handleSetCameraConfig)

	// Arm routes
	arm := api.Group("/arm")
	arm.Get("/status", s.handleArmStatus)
	arm.Get("/joints", s.handleJoints)
	arm.Get("/joints/:index", s.handleGetJoint)
	arm.Post("/joints/:index", s.handleSetJoint)
	arm.Get("/joints/:index/limits", s.handleGetLimits)
	arm.Post("/joints/:index/limits", s.handleSetLimits)
	arm.Post("/gripper/:action", s.handleGripper)
	arm.Get("/camera", s.handleCameraInfo)
	arm.Get("/camera/frame", s.handleCameraFrame)
	arm.Post("/move", s.handleMove)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/camera", websocket.New(s.handleHubWS(s.cameraHub)))
	app.Get("/ws/joints", websocket.New(s.handleHubWS(s.jointsHub)))

	s.app = app
	return s
}

// App returns the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and the joint telemetry, then serves until Shutdown.
func (s *Server) Start() error {
	fmt.Printf("🌐 Arm API: http://localhost:%s\n", s.port)

	go s.cameraHub.Run(s.ctx)
	go s.jointsHub.Run(s.ctx)
	go s.runTelemetry(s.ctx, 100*time.Millisecond)

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			fmt.Printf("⚠️  Web server error: %v\n", err)
		}
	}()
}

// PublishFrame records the latest frame and streams it to camera clients.
// It has the tracking.FrameHandler signature.
func (s *Server) PublishFrame(img image.Image, _ []detection.Object) {
	s.frameMu.Lock()
	s.frame = img
	s.frameMu.Unlock()

	if s.cameraHub.ClientCount() == 0 {
		return
	}
	data, err := camera.EncodeJPEG(img, s.quality)
	if err != nil {
		s.logger.Debug("frame encode failed", "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
}

// PumpFrames captures from the arm's camera at interval and publishes
// each frame. Use it when no tracker is feeding PublishFrame.
func (s *Server) PumpFrames(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			img, err := s.arm.CaptureImage()
			if err != nil {
				continue
			}
			s.PublishFrame(img, nil)
		}
	}
}

// runTelemetry broadcasts joint angles while anyone listens.
func (s *Server) runTelemetry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.jointsHub.ClientCount() == 0 {
				continue
			}
			s.jointsHub.BroadcastJSON(robot.JointsPayload{Joints: robot.Joints(s.arm)})
		}
	}
}

// GetCameraHub returns the camera hub for external use
func (s *Server) GetCameraHub() *hub.Hub {
	return s.cameraHub
}

// GetJointsHub returns the joints hub for external use
func (s *Server) GetJointsHub() *hub.Hub {
	return s.jointsHub
}

// Shutdown stops background work and the HTTP server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
