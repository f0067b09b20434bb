package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-armvision/pkg/camera"
	"github.com/teslashibe/go-armvision/pkg/hub"
	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking"
)

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Arm      string    `json:"arm"`
	Joints   []float64 `json:"joints"`
	State    string    `json:"state"`
	Running  bool      `json:"running"`
	Paused   bool      `json:"paused"`
	Found    bool      `json:"found"`
	Frames   uint64    `json:"frames"`
	Target   string    `json:"target"`
	Viewers  int       `json:"viewers"`
	Watchers int       `json:"watchers"`
}

// TargetRequest is the body of POST /api/target
type TargetRequest struct {
	Label string `json:"label"`
}

// MoveRequest is the body of POST /api/arm/move, in centimetres.
type MoveRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// requireTracker answers 503 when the server runs without a tracker.
func (s *Server) requireTracker(c *fiber.Ctx) bool {
	if s.tracker == nil {
		_ = errorJSON(c, fiber.StatusServiceUnavailable, "tracking not configured")
		return false
	}
	return true
}

// jointIndex parses :index and checks it against the arm.
func (s *Server) jointIndex(c *fiber.Ctx) (int, bool) {
	i, err := c.ParamsInt("index")
	if err != nil {
		_ = errorJSON(c, fiber.StatusBadRequest, "invalid joint index")
		return 0, false
	}
	if i < 0 || i >= s.arm.JointCount() {
		_ = errorJSON(c, fiber.StatusNotFound, robot.ErrJointIndex.Error())
		return 0, false
	}
	return i, true
}

// handleStatus returns arm and tracker state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Arm:      s.arm.Status(),
		Joints:   robot.Joints(s.arm),
		State:    tracking.StateIdle.String(),
		Viewers:  s.cameraHub.ClientCount(),
		Watchers: s.jointsHub.ClientCount(),
	}
	if s.tracker != nil {
		resp.State = s.tracker.State().String()
		resp.Running = s.tracker.Running()
		resp.Found = s.tracker.ObjectFound()
		resp.Frames = s.tracker.FrameCount()
		resp.Paused = s.tracker.Paused()
		resp.Target = s.tracker.TargetLabel()
	}
	return c.JSON(resp)
}

func (s *Server) handleGetTarget(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	return c.JSON(fiber.Map{"label": s.tracker.TargetLabel()})
}

// handleSetTarget selects the label to follow; an empty label clears it
func (s *Server) handleSetTarget(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	var req TargetRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !s.tracker.SetTargetLabel(req.Label) {
		return errorJSON(c, fiber.StatusBadRequest, "unknown label: "+req.Label)
	}
	return c.JSON(fiber.Map{"label": s.tracker.TargetLabel()})
}

func (s *Server) handleObjects(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	return c.JSON(nonNil(s.tracker.VisibleObjectLabels()))
}

func (s *Server) handleObjectsDetailed(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	return c.JSON(nonNil(s.tracker.VisibleObjectLabelsDetailed()))
}

func (s *Server) handleLabels(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	return c.JSON(nonNil(s.tracker.AllLabels()))
}

// handleTracking starts, stops, pauses or resumes the tracker
func (s *Server) handleTracking(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	switch action := c.Params("action"); action {
	case "start":
		if err := s.tracker.Start(s.ctx); err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, err.Error())
		}
	case "stop":
		s.tracker.Stop()
	case "pause":
		s.tracker.Pause(true)
	case "resume":
		s.tracker.Pause(false)
	default:
		return errorJSON(c, fiber.StatusBadRequest, "unknown action: "+action)
	}
	return c.JSON(fiber.Map{
		"state":   s.tracker.State().String(),
		"running": s.tracker.Running(),
		"paused":  s.tracker.Paused(),
	})
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	return c.JSON(s.tracker.GetTuningParams())
}

// handleSetTuning applies the fields present in the body
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	if !s.requireTracker(c) {
		return nil
	}
	var params tracking.TuningParams
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	s.tracker.SetTuningParams(params)
	return c.JSON(s.tracker.GetTuningParams())
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	if s.camera == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "camera not configured")
	}
	return c.JSON(fiber.Map{
		"config":  s.camera.GetConfigJSON(),
		"presets": camera.PresetNames(),
	})
}

// handleSetCameraConfig merges field updates, optionally over a preset
func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	if s.camera == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "camera not configured")
	}
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.camera.GetConfigJSON())
}

func (s *Server) handleArmStatus(c *fiber.Ctx) error {
	return c.JSON(robot.StatusPayload{
		Status: s.arm.Status(),
		Joints: s.arm.JointCount(),
	})
}

func (s *Server) handleJoints(c *fiber.Ctx) error {
	return c.JSON(robot.JointsPayload{Joints: robot.Joints(s.arm)})
}

func (s *Server) handleGetJoint(c *fiber.Ctx) error {
	i, ok := s.jointIndex(c)
	if !ok {
		return nil
	}
	return c.JSON(robot.JointPayload{Index: i, Angle: s.arm.Joint(i)})
}

// handleSetJoint commands one joint; the arm clamps to its limits
func (s *Server) handleSetJoint(c *fiber.Ctx) error {
	i, ok := s.jointIndex(c)
	if !ok {
		return nil
	}
	var cmd robot.JointCommand
	if err := c.BodyParser(&cmd); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return c.JSON(robot.OKPayload{OK: s.arm.SetJoint(i, cmd.Angle)})
}

func (s *Server) handleGetLimits(c *fiber.Ctx) error {
	i, ok := s.jointIndex(c)
	if !ok {
		return nil
	}
	lo, hi := s.arm.JointMin(i), s.arm.JointMax(i)
	return c.JSON(robot.LimitsPayload{Min: &lo, Max: &hi})
}

// handleSetLimits updates the limits present in the body
func (s *Server) handleSetLimits(c *fiber.Ctx) error {
	i, ok := s.jointIndex(c)
	if !ok {
		return nil
	}
	var req robot.LimitsPayload
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Min != nil {
		s.arm.SetJointMin(i, *req.Min)
	}
	if req.Max != nil {
		s.arm.SetJointMax(i, *req.Max)
	}
	return c.JSON(robot.OKPayload{OK: true})
}

func (s *Server) handleGripper(c *fiber.Ctx) error {
	var ok bool
	switch action := c.Params("action"); action {
	case "open":
		ok = s.arm.GripperOpen()
	case "close":
		ok = s.arm.GripperClose()
	default:
		return errorJSON(c, fiber.StatusBadRequest, "unknown gripper action: "+action)
	}
	return c.JSON(robot.OKPayload{OK: ok})
}

func (s *Server) handleCameraInfo(c *fiber.Ctx) error {
	return c.JSON(robot.CameraPayload{FocalLength: s.arm.CameraFocalLength()})
}

// handleCameraFrame returns the latest frame as JPEG, capturing one if
// nothing has been published yet
func (s *Server) handleCameraFrame(c *fiber.Ctx) error {
	s.frameMu.RLock()
	img := s.frame
	s.frameMu.RUnlock()

	if img == nil {
		var err error
		if img, err = s.arm.CaptureImage(); err != nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
		}
	}

	data, err := camera.EncodeJPEG(img, s.quality)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(data)
}

// handleMove starts a Cartesian move in the background. A new move
// cancels the one in flight. Tracker output is paused until the last move
// ends so the two never drive the joints at once.
func (s *Server) handleMove(c *fiber.Ctx) error {
	if s.mover == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "cartesian moves not configured")
	}
	var req MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	target := r3.Vector{X: req.X, Y: req.Y, Z: req.Z}

	ctx, cancel := context.WithCancel(s.ctx)
	s.moveMu.Lock()
	if s.moveCancel != nil {
		s.moveCancel()
	}
	s.moveCancel = cancel
	s.moveGen++
	gen := s.moveGen
	if s.tracker != nil && !s.movePaused && !s.tracker.Paused() {
		s.tracker.Pause(true)
		s.movePaused = true
	}
	s.moveMu.Unlock()

	from := s.mover.Position()
	go func() {
		defer cancel()
		defer s.endMove(gen)
		steps, err := s.mover.MoveTo(ctx, target)
		if err != nil {
			s.logger.Info("move interrupted", "steps", steps, "error", err)
			return
		}
		s.logger.Info("move complete", "steps", steps)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"from": fiber.Map{"x": from.X, "y": from.Y, "z": from.Z},
		"to":   req,
	})
}

// endMove resumes the tracker if the move that finished was the latest one
// and it paused the tracker.
func (s *Server) endMove(gen uint64) {
	s.moveMu.Lock()
	defer s.moveMu.Unlock()
	if gen != s.moveGen || !s.movePaused {
		return
	}
	s.movePaused = false
	s.tracker.Pause(false)
}

// handleHubWS registers a websocket connection with h
func (s *Server) handleHubWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		client, err := hub.NewClient(h, c)
		if err != nil {
			return
		}
		client.Run()
	}
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
