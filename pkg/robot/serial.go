package robot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// SerialConfig configures the motor driver link.
type SerialConfig struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Joints      int
	Limits      []kinematics.JointLimit
	FocalLength float64
	Frames      FrameSource
}

// DefaultSerialConfig returns settings for the reference driver board.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Port:        "/dev/ttyUSB0",
		BaudRate:    115200,
		ReadTimeout: 500 * time.Millisecond,
		Joints:      3,
		Limits:      kinematics.DefaultGeometry().Limits,
	}
}

// SerialArm drives the physical arm through a line protocol on a serial
// port. Each request is one line and gets exactly one reply line:
//
//	SET <joint> <deg>   -> OK | ERR <reason>
//	GET <joint>         -> <deg> | ERR <reason>
//	GRIP OPEN|CLOSE     -> OK | ERR <reason>
//
// Requests are serialized; the driver is never sent overlapping commands.
type SerialArm struct {
	cfg    SerialConfig
	limits *JointLimits
	logger *slog.Logger

	// open is replaced in tests.
	open func(cfg SerialConfig) (io.ReadWriteCloser, error)

	mu      sync.Mutex
	port    io.ReadWriteCloser
	pending []byte
	stale   bool
	last    []float64
	started bool
}

// ErrReplyTimeout is returned when the driver does not answer within the
// port read timeout.
var ErrReplyTimeout = errors.New("serial: reply timeout")

// maxReplyLen bounds a reply line so a noisy link cannot grow pending
// without limit.
const maxReplyLen = 256

// inputResetter is implemented by serial.Port.
type inputResetter interface {
	ResetInputBuffer() error
}

// NewSerialArm creates a serial-backed arm. The port is opened by Start.
func NewSerialArm(cfg SerialConfig) *SerialArm {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &SerialArm{
		cfg:    cfg,
		limits: NewJointLimits(cfg.Limits),
		logger: log.Component("serial-arm").With("port", cfg.Port),
		open:   openSerialPort,
		last:   make([]float64, cfg.Joints),
	}
}

func openSerialPort(cfg SerialConfig) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return port, nil
}

// Start opens the serial port and reads the initial joint angles.
func (s *SerialArm) Start(ctx context.Context) error {
	port, err := s.open(s.cfg)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}

	s.mu.Lock()
	s.port = port
	s.pending = s.pending[:0]
	s.stale = false
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Joints; i++ {
		s.Joint(i)
	}
	s.logger.Info("serial arm started", "baud", s.cfg.BaudRate, "joints", s.cfg.Joints)
	return nil
}

// Stop closes the serial port.
func (s *SerialArm) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.port.Close()
}

// request sends one command line and returns the reply line.
func (s *SerialArm) request(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", ErrNotStarted
	}
	if s.stale {
		s.discardInput()
	}
	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", cmd, err)
	}
	line, err := s.readLine()
	if err != nil {
		// A late reply would otherwise answer the next request.
		s.stale = true
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}
	reply := strings.TrimSpace(line)
	if strings.HasPrefix(reply, "ERR") {
		return "", fmt.Errorf("driver rejected %q: %s", cmd, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	}
	return reply, nil
}

// readLine returns the next reply line. The port returns (0, nil) when its
// read timeout expires, which ends the wait immediately. Caller holds s.mu.
func (s *SerialArm) readLine() (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := string(s.pending[:i])
			s.pending = append(s.pending[:0], s.pending[i+1:]...)
			return line, nil
		}
		if len(s.pending) > maxReplyLen {
			s.pending = s.pending[:0]
			return "", fmt.Errorf("reply longer than %d bytes", maxReplyLen)
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			s.pending = append(s.pending, buf[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
		return "", ErrReplyTimeout
	}
}

// discardInput drops buffered and unread input after a failed exchange.
// Caller holds s.mu.
func (s *SerialArm) discardInput() {
	s.pending = s.pending[:0]
	s.stale = false
	if r, ok := s.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			s.logger.Warn("reset input buffer failed", "error", err)
		}
	}
}

// JointCount returns the number of joints.
func (s *SerialArm) JointCount() int {
	return s.cfg.Joints
}

// Joint reads joint i from the driver. On a read failure the last known
// angle is returned.
func (s *SerialArm) Joint(i int) float64 {
	if i < 0 || i >= s.cfg.Joints {
		return 0
	}
	reply, err := s.request(fmt.Sprintf("GET %d", i))
	if err != nil {
		if !errors.Is(err, ErrNotStarted) {
			s.logger.Warn("joint read failed", "joint", i, "error", err)
		}
		return s.cached(i)
	}
	deg, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		s.logger.Warn("joint reply not a number", "joint", i, "reply", reply)
		return s.cached(i)
	}
	s.mu.Lock()
	s.last[i] = deg
	s.mu.Unlock()
	return deg
}

func (s *SerialArm) cached(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0
	}
	return s.last[i]
}

// SetJoint clamps deg to the joint limits and sends it to the driver.
func (s *SerialArm) SetJoint(i int, deg float64) bool {
	if i < 0 || i >= s.cfg.Joints {
		return false
	}
	deg = s.limits.Clamp(i, deg)
	if _, err := s.request(fmt.Sprintf("SET %d %.2f", i, deg)); err != nil {
		if !errors.Is(err, ErrNotStarted) {
			s.logger.Warn("joint write failed", "joint", i, "error", err)
		}
		return false
	}
	s.mu.Lock()
	s.last[i] = deg
	s.mu.Unlock()
	return true
}

// JointMin returns the lower limit for joint i.
func (s *SerialArm) JointMin(i int) float64 { return s.limits.Min(i) }

// JointMax returns the upper limit for joint i.
func (s *SerialArm) JointMax(i int) float64 { return s.limits.Max(i) }

// SetJointMin sets the lower limit for joint i.
func (s *SerialArm) SetJointMin(i int, deg float64) { s.limits.SetMin(i, deg) }

// SetJointMax sets the upper limit for joint i.
func (s *SerialArm) SetJointMax(i int, deg float64) { s.limits.SetMax(i, deg) }

// CaptureImage returns a frame from the attached camera.
func (s *SerialArm) CaptureImage() (image.Image, error) {
	if s.cfg.Frames == nil {
		return nil, ErrNoCamera
	}
	return s.cfg.Frames.Frame()
}

// CameraFocalLength returns the configured focal length in pixels.
func (s *SerialArm) CameraFocalLength() float64 {
	return s.cfg.FocalLength
}

// GripperOpen opens the gripper.
func (s *SerialArm) GripperOpen() bool {
	return s.grip("OPEN")
}

// GripperClose closes the gripper.
func (s *SerialArm) GripperClose() bool {
	return s.grip("CLOSE")
}

func (s *SerialArm) grip(action string) bool {
	if _, err := s.request("GRIP " + action); err != nil {
		s.logger.Warn("gripper command failed", "action", action, "error", err)
		return false
	}
	return true
}

// Status describes the link state and last known joint angles.
func (s *SerialArm) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return fmt.Sprintf("serial %s disconnected", s.cfg.Port)
	}
	return fmt.Sprintf("serial %s @%d joints=%v", s.cfg.Port, s.cfg.BaudRate, s.last)
}
