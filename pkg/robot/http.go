package robot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-armvision/internal/httpc"
	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// RemoteConfig configures a network proxy to an arm served by another
// process.
type RemoteConfig struct {
	BaseURL      string        // e.g. http://192.168.1.20:8090
	Timeout      time.Duration // per request
	StreamCamera bool          // subscribe to /ws/camera instead of polling frames
	FrameMaxAge  time.Duration // streamed frames older than this are not reused
}

// RemoteArm implements Arm by calling the arm HTTP API of a remote
// go-armvision server.
type RemoteArm struct {
	cfg    RemoteConfig
	client *http.Client
	logger *slog.Logger

	mu      sync.RWMutex
	started bool
	joints  int
	last    []float64
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	frameMu sync.RWMutex
	frame   image.Image
	frameAt time.Time
}

// NewRemoteArm creates a remote arm proxy.
func NewRemoteArm(cfg RemoteConfig) *RemoteArm {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FrameMaxAge == 0 {
		cfg.FrameMaxAge = time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &RemoteArm{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: log.Component("remote-arm").With("url", cfg.BaseURL),
	}
}

func (r *RemoteArm) url(format string, args ...any) string {
	return r.cfg.BaseURL + fmt.Sprintf(format, args...)
}

// Start checks that the remote server answers and optionally subscribes to
// its camera stream.
func (r *RemoteArm) Start(ctx context.Context) error {
	var status StatusPayload
	if err := httpc.GetJSON(ctx, r.client, r.url("/api/arm/status"), &status); err != nil {
		return fmt.Errorf("remote arm status: %w", err)
	}

	last := make([]float64, status.Joints)
	var joints JointsPayload
	if err := httpc.GetJSON(ctx, r.client, r.url("/api/arm/joints"), &joints); err != nil {
		r.logger.Warn("initial joint read failed", "error", err)
	} else {
		copy(last, joints.Joints)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.started = true
	r.joints = status.Joints
	r.last = last
	r.cancel = cancel
	r.mu.Unlock()

	if r.cfg.StreamCamera {
		r.wg.Add(1)
		go r.streamFrames(streamCtx)
	}

	r.logger.Info("remote arm connected", "joints", status.Joints, "status", status.Status)
	return nil
}

// Stop cancels the camera stream.
func (r *RemoteArm) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.started = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *RemoteArm) isStarted() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.started
}

// JointCount returns the joint count reported at Start.
func (r *RemoteArm) JointCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joints
}

func (r *RemoteArm) validIndex(i int) bool {
	return i >= 0 && i < r.JointCount()
}

// Joint reads joint i from the remote arm. On a failed read the last
// known angle is returned.
func (r *RemoteArm) Joint(i int) float64 {
	if !r.isStarted() || !r.validIndex(i) {
		return 0
	}
	var out JointPayload
	if err := httpc.GetJSON(context.Background(), r.client, r.url("/api/arm/joints/%d", i), &out); err != nil {
		r.logger.Warn("joint read failed", "joint", i, "error", err)
		return r.cached(i)
	}
	r.mu.Lock()
	if i < len(r.last) {
		r.last[i] = out.Angle
	}
	r.mu.Unlock()
	return out.Angle
}

func (r *RemoteArm) cached(i int) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.started || i >= len(r.last) {
		return 0
	}
	return r.last[i]
}

// SetJoint sends a joint command. The remote side clamps to its limits.
func (r *RemoteArm) SetJoint(i int, deg float64) bool {
	if !r.isStarted() || !r.validIndex(i) {
		return false
	}
	var out OKPayload
	err := httpc.PostJSON(context.Background(), r.client, r.url("/api/arm/joints/%d", i), JointCommand{Angle: deg}, &out)
	if err != nil {
		r.logger.Warn("joint write failed", "joint", i, "error", err)
		return false
	}
	return out.OK
}

func (r *RemoteArm) limits(i int) kinematics.JointLimit {
	lim := kinematics.DefaultJointLimit
	if !r.isStarted() {
		return lim
	}
	var out LimitsPayload
	if err := httpc.GetJSON(context.Background(), r.client, r.url("/api/arm/joints/%d/limits", i), &out); err != nil {
		r.logger.Warn("limit read failed", "joint", i, "error", err)
		return lim
	}
	if out.Min != nil {
		lim.Min = *out.Min
	}
	if out.Max != nil {
		lim.Max = *out.Max
	}
	return lim
}

func (r *RemoteArm) setLimits(i int, payload LimitsPayload) {
	if !r.isStarted() {
		return
	}
	if err := httpc.PostJSON(context.Background(), r.client, r.url("/api/arm/joints/%d/limits", i), payload, nil); err != nil {
		r.logger.Warn("limit write failed", "joint", i, "error", err)
	}
}

// JointMin returns the remote lower limit for joint i.
func (r *RemoteArm) JointMin(i int) float64 { return r.limits(i).Min }

// JointMax returns the remote upper limit for joint i.
func (r *RemoteArm) JointMax(i int) float64 { return r.limits(i).Max }

// SetJointMin sets the remote lower limit for joint i.
func (r *RemoteArm) SetJointMin(i int, deg float64) { r.setLimits(i, LimitsPayload{Min: &deg}) }

// SetJointMax sets the remote upper limit for joint i.
func (r *RemoteArm) SetJointMax(i int, deg float64) { r.setLimits(i, LimitsPayload{Max: &deg}) }

// CaptureImage returns the latest streamed frame while it is fresh, or
// fetches one.
func (r *RemoteArm) CaptureImage() (image.Image, error) {
	if !r.isStarted() {
		return nil, ErrNotStarted
	}

	r.frameMu.RLock()
	frame, at := r.frame, r.frameAt
	r.frameMu.RUnlock()
	if frame != nil && time.Since(at) <= r.cfg.FrameMaxAge {
		return frame, nil
	}

	data, err := httpc.GetBytes(context.Background(), r.client, r.url("/api/arm/camera/frame"))
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// CameraFocalLength returns the remote camera focal length in pixels.
func (r *RemoteArm) CameraFocalLength() float64 {
	if !r.isStarted() {
		return 0
	}
	var out CameraPayload
	if err := httpc.GetJSON(context.Background(), r.client, r.url("/api/arm/camera"), &out); err != nil {
		r.logger.Warn("camera info failed", "error", err)
		return 0
	}
	return out.FocalLength
}

// GripperOpen opens the remote gripper.
func (r *RemoteArm) GripperOpen() bool { return r.grip("open") }

// GripperClose closes the remote gripper.
func (r *RemoteArm) GripperClose() bool { return r.grip("close") }

func (r *RemoteArm) grip(action string) bool {
	if !r.isStarted() {
		return false
	}
	var out OKPayload
	if err := httpc.PostJSON(context.Background(), r.client, r.url("/api/arm/gripper/%s", action), nil, &out); err != nil {
		r.logger.Warn("gripper command failed", "action", action, "error", err)
		return false
	}
	return out.OK
}

// Status returns the remote status line.
func (r *RemoteArm) Status() string {
	if !r.isStarted() {
		return "remote " + r.cfg.BaseURL + " disconnected"
	}
	var out StatusPayload
	if err := httpc.GetJSON(context.Background(), r.client, r.url("/api/arm/status"), &out); err != nil {
		return "remote " + r.cfg.BaseURL + " unreachable: " + err.Error()
	}
	return out.Status
}

// streamFrames keeps the latest JPEG frame from /ws/camera, reconnecting
// until ctx is cancelled.
func (r *RemoteArm) streamFrames(ctx context.Context) {
	defer r.wg.Done()

	wsURL := "ws" + strings.TrimPrefix(r.cfg.BaseURL, "http") + "/ws/camera"
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	backoff := 500 * time.Millisecond

	for ctx.Err() == nil {
		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			r.logger.Debug("camera stream dial failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 500 * time.Millisecond

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		r.readFrames(conn)
		r.setFrame(nil)
		stop()
		conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *RemoteArm) readFrames(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			r.logger.Debug("bad camera frame", "error", err)
			continue
		}
		r.setFrame(img)
	}
}

func (r *RemoteArm) setFrame(img image.Image) {
	r.frameMu.Lock()
	r.frame = img
	r.frameAt = time.Now()
	r.frameMu.Unlock()
}
