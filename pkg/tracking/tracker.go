package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// State is the tracker's state machine position.
type State int32

const (
	StateIdle State = iota
	StateTracking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Controller is the surface exposed to command layers.
type Controller interface {
	// SetTargetLabel returns false if the identifier cannot produce label.
	SetTargetLabel(label string) bool
	TargetLabel() string
	VisibleObjectLabels() []string
	VisibleObjectLabelsDetailed() []string
	AllLabels() []string
	Start(ctx context.Context) error
	Stop()
	Pause(paused bool)
}

var _ Controller = (*Tracker)(nil)

// FrameHandler receives every captured frame with its detections.
type FrameHandler func(img image.Image, objs []detection.Object)

// Tracker runs a sensing loop and a control loop that share only the
// detection snapshot. Law, writer and state are owned by the control loop.
type Tracker struct {
	arm        JointArm
	camera     robot.Camera
	identifier detection.Identifier
	selector   *TargetSelector
	law        Law
	writer     *jointWriter
	snapshot   detection.Snapshot
	logger     *slog.Logger

	mu      sync.RWMutex
	config  Config
	onFrame FrameHandler

	running atomic.Bool
	paused  atomic.Bool
	resync  atomic.Bool
	state   atomic.Int32

	lifeMu sync.Mutex
	cancel context.CancelFunc
	run    uint64
	wg     sync.WaitGroup

	sensingReset chan time.Duration
}

// New creates a tracker. arm is driven by the control loop, camera feeds
// the sensing loop.
func New(cfg Config, arm JointArm, camera robot.Camera, id detection.Identifier, law Law) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	logger := log.Component("tracking")
	return &Tracker{
		arm:          arm,
		camera:       camera,
		identifier:   id,
		selector:     NewTargetSelector(id),
		law:          law,
		writer:       newJointWriter(arm, logger),
		logger:       logger,
		config:       cfg,
		sensingReset: make(chan time.Duration, 1),
	}, nil
}

// SetFrameHandler sets a callback run by the sensing loop after each
// detection. It must not block.
func (t *Tracker) SetFrameHandler(h FrameHandler) {
	t.mu.Lock()
	t.onFrame = h
	t.mu.Unlock()
}

// Config returns a copy of the current configuration.
func (t *Tracker) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// SetTargetLabel sets the label filter.
func (t *Tracker) SetTargetLabel(label string) bool {
	ok := t.selector.SetLabel(label)
	if ok {
		t.logger.Info("target label set", "label", label)
	}
	return ok
}

// TargetLabel returns the label filter.
func (t *Tracker) TargetLabel() string {
	return t.selector.Label()
}

// VisibleObjectLabels returns the labels in the latest snapshot.
func (t *Tracker) VisibleObjectLabels() []string {
	objs, _ := t.snapshot.Load()
	return detection.Labels(objs)
}

// VisibleObjectLabelsDetailed describes every object in the latest snapshot.
func (t *Tracker) VisibleObjectLabelsDetailed() []string {
	objs, _ := t.snapshot.Load()
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = detection.Describe(o)
	}
	return out
}

// AllLabels returns every label the identifier can produce.
func (t *Tracker) AllLabels() []string {
	return t.identifier.Labels()
}

// Objects returns the latest snapshot.
func (t *Tracker) Objects() []detection.Object {
	objs, _ := t.snapshot.Load()
	return objs
}

// ObjectFound reports whether the latest detection contained any object.
func (t *Tracker) ObjectFound() bool {
	return t.snapshot.Found()
}

// FrameCount returns the number of frames processed by the sensing loop.
func (t *Tracker) FrameCount() uint64 {
	return t.snapshot.Seq()
}

// State returns the current state.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Running reports whether the loops are running.
func (t *Tracker) Running() bool {
	return t.running.Load()
}

// Paused reports whether output is frozen.
func (t *Tracker) Paused() bool {
	return t.paused.Load()
}

// Pause freezes or resumes joint output. Both loops keep running. On
// resume the control loop rereads the arm before sending, since the joints
// may have been moved while output was frozen.
func (t *Tracker) Pause(paused bool) {
	if t.paused.Swap(paused) != paused {
		if !paused {
			t.resync.Store(true)
		}
		t.logger.Info("pause changed", "paused", paused)
	}
}

// Start launches both loops. Starting a running tracker is a no-op.
func (t *Tracker) Start(ctx context.Context) error {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	if t.running.Load() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.run++
	t.running.Store(true)
	t.state.Store(int32(StateIdle))
	t.writer.Forget()
	t.law.Reset()

	cfg := t.Config()
	fmt.Printf("🎯 Tracker started (%s law)\n", t.law.Name())
	fmt.Printf("    Sensing: %v, Control: %v, Gain=%.2f, k=%.2f, Tol=%.1fpx\n",
		cfg.SensingInterval, cfg.ControlInterval, cfg.Gain, cfg.Smoothness, cfg.Tolerance)

	t.wg.Add(2)
	go t.sensingLoop(ctx, cfg.SensingInterval)
	go t.controlLoop(ctx, cfg.ControlInterval)
	go t.stopOnDone(ctx, t.run)
	return nil
}

// stopOnDone marks the tracker stopped when the loops end because the
// parent context was cancelled rather than through Stop.
func (t *Tracker) stopOnDone(ctx context.Context, run uint64) {
	<-ctx.Done()

	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()
	if t.run != run {
		return
	}
	t.finish()
}

// Stop clears the running flag and waits for both loops to finish their
// current tick.
func (t *Tracker) Stop() {
	t.lifeMu.Lock()
	defer t.lifeMu.Unlock()

	t.finish()
}

// finish cancels the loops and waits for them. Caller holds lifeMu.
func (t *Tracker) finish() {
	if !t.running.Swap(false) {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.state.Store(int32(StateStopped))
	fmt.Printf("🛑 Tracker stopped\n")
}

// Run starts the tracker and blocks until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	t.Stop()
	return nil
}

func (t *Tracker) sensingLoop(ctx context.Context, interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-t.sensingReset:
			ticker.Reset(d)
		case <-ticker.C:
			if !t.running.Load() {
				return
			}
			t.sense()
		}
	}
}

// sense captures one frame and publishes its detections.
func (t *Tracker) sense() {
	img, err := t.camera.CaptureImage()
	if err != nil {
		t.logger.Debug("capture failed", "error", err)
		return
	}

	objs, err := t.identifier.ProcessFrame(img)
	if err != nil {
		t.logger.Warn("identify failed", "error", err)
		return
	}
	t.snapshot.Publish(objs)

	t.mu.RLock()
	h := t.onFrame
	t.mu.RUnlock()
	if h != nil {
		h(img, objs)
	}
}

func (t *Tracker) controlLoop(ctx context.Context, interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.running.Load() {
				return
			}
			t.control()
		}
	}
}

// control runs one control tick on the latest snapshot.
func (t *Tracker) control() {
	objs, seq := t.snapshot.Load()
	target, ok := t.selector.Select(objs)
	if !ok {
		if t.state.CompareAndSwap(int32(StateTracking), int32(StateIdle)) {
			t.law.Reset()
			t.logger.Info("target lost", "label", t.TargetLabel())
		}
		return
	}
	if t.state.CompareAndSwap(int32(StateIdle), int32(StateTracking)) {
		t.logger.Info("target acquired", "label", target.Label, "radius", target.Radius)
	}

	if t.paused.Load() {
		return
	}
	if t.resync.Swap(false) {
		t.writer.Forget()
		t.law.Reset()
	}

	cfg := t.Config()
	cmds, err := t.law.Step(Tick{Target: target, Seq: seq}, t.arm, cfg)
	if err != nil {
		if errors.Is(err, ErrInvalidFrame) {
			t.logger.Warn("skipping frame", "error", err)
		} else {
			t.logger.Error("control step failed", "error", err)
		}
		return
	}

	sent := t.writer.Write(cmds)
	if sent > 0 {
		level := slog.LevelDebug
		if cfg.Verbose {
			level = slog.LevelInfo
		}
		t.logger.Log(context.Background(), level, "joints commanded", "commands", cmds, "target", target.Label)
	}
}
