package robot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

func TestSimArm_UnstartedDefaults(t *testing.T) {
	arm := NewSimArm(SimConfig{Joints: 3, Initial: []float64{10, 20, 30}})

	if got := arm.Joint(1); got != 0 {
		t.Errorf("Expected 0 from unstarted arm, got %v", got)
	}
	if arm.SetJoint(0, 45) {
		t.Error("Expected SetJoint to fail before Start")
	}
	if arm.GripperOpen() {
		t.Error("Expected gripper to fail before Start")
	}
}

func TestSimArm_SetJointClamps(t *testing.T) {
	arm := NewSimArm(SimConfig{Joints: 3, Limits: kinematics.DefaultGeometry().Limits})
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		joint int
		req   float64
		want  float64
	}{
		{0, 300, 270},
		{0, -10, 0},
		{1, 120, 90},
		{2, 50, 50},
	}

	for _, tt := range tests {
		if !arm.SetJoint(tt.joint, tt.req) {
			t.Errorf("joint %d: expected SetJoint to succeed", tt.joint)
		}
		if got := arm.Joint(tt.joint); got != tt.want {
			t.Errorf("joint %d: requested %v, expected %v, got %v", tt.joint, tt.req, tt.want, got)
		}
	}
}

func TestSimArm_BadIndex(t *testing.T) {
	arm := NewSimArm(SimConfig{Joints: 3})
	arm.Start(context.Background())

	if arm.SetJoint(3, 10) {
		t.Error("Expected SetJoint(3) to fail on a 3-joint arm")
	}
	if arm.SetJoint(-1, 10) {
		t.Error("Expected SetJoint(-1) to fail")
	}
	if got := arm.Joint(5); got != 0 {
		t.Errorf("Expected 0 for bad index, got %v", got)
	}
}

func TestSimArm_NoCamera(t *testing.T) {
	arm := NewSimArm(SimConfig{Joints: 3})
	if _, err := arm.CaptureImage(); err != ErrNoCamera {
		t.Errorf("Expected ErrNoCamera, got %v", err)
	}
}

type staticFrames struct{ img image.Image }

func (s staticFrames) Frame() (image.Image, error) { return s.img, nil }

func TestSimArm_CameraOnly(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	arm := NewSimArm(SimConfig{Frames: staticFrames{img}, FocalLength: 500})
	arm.Start(context.Background())

	if arm.JointCount() != 0 {
		t.Errorf("Expected camera-only rig to have no joints, got %d", arm.JointCount())
	}
	got, err := arm.CaptureImage()
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds().Dx() != 64 {
		t.Errorf("Expected 64px frame, got %v", got.Bounds())
	}
	if arm.CameraFocalLength() != 500 {
		t.Errorf("Expected focal 500, got %v", arm.CameraFocalLength())
	}
}

func TestJointLimits(t *testing.T) {
	l := NewJointLimits([]kinematics.JointLimit{{Min: 0, Max: 90}})

	if l.Min(4) != 0 || l.Max(4) != 360 {
		t.Errorf("Expected default [0,360] for unset joint, got [%v,%v]", l.Min(4), l.Max(4))
	}

	l.SetMin(0, 10)
	l.SetMax(4, 180)
	if got := l.Clamp(0, 5); got != 10 {
		t.Errorf("Expected clamp to narrowed min 10, got %v", got)
	}
	if got := l.Clamp(4, 200); got != 180 {
		t.Errorf("Expected clamp to 180, got %v", got)
	}
	if l.Min(4) != 0 {
		t.Errorf("Expected SetMax to keep default min, got %v", l.Min(4))
	}
}

func TestJoints(t *testing.T) {
	arm := NewSimArm(SimConfig{Joints: 3, Initial: []float64{1, 2, 3}})
	arm.Start(context.Background())

	got := Joints(arm)
	if fmt.Sprint(got) != "[1 2 3]" {
		t.Errorf("Expected [1 2 3], got %v", got)
	}
}

// fakeDriver answers the serial line protocol from memory.
type fakeDriver struct {
	mu     sync.Mutex
	joints []float64
	out    bytes.Buffer
	lines  []string
	closed bool
}

func (d *fakeDriver) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		d.lines = append(d.lines, line)
		d.out.WriteString(d.reply(strings.Fields(line)) + "\n")
	}
	return len(p), nil
}

func (d *fakeDriver) reply(f []string) string {
	switch {
	case len(f) == 2 && f[0] == "GET":
		i, _ := strconv.Atoi(f[1])
		if i >= len(d.joints) {
			return "ERR bad joint"
		}
		return strconv.FormatFloat(d.joints[i], 'f', 2, 64)
	case len(f) == 3 && f[0] == "SET":
		i, _ := strconv.Atoi(f[1])
		v, _ := strconv.ParseFloat(f[2], 64)
		if i >= len(d.joints) {
			return "ERR bad joint"
		}
		d.joints[i] = v
		return "OK"
	case len(f) == 2 && f[0] == "GRIP":
		return "OK"
	}
	return "ERR unknown command"
}

func (d *fakeDriver) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out.Len() == 0 {
		return 0, io.EOF
	}
	return d.out.Read(p)
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func newTestSerialArm(t *testing.T, d *fakeDriver) *SerialArm {
	t.Helper()
	cfg := DefaultSerialConfig()
	arm := NewSerialArm(cfg)
	arm.open = func(SerialConfig) (io.ReadWriteCloser, error) { return d, nil }
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return arm
}

func TestSerialArm_Protocol(t *testing.T) {
	d := &fakeDriver{joints: []float64{180, 45, 30}}
	arm := newTestSerialArm(t, d)

	if got := arm.Joint(0); got != 180 {
		t.Errorf("Expected joint 0 at 180, got %v", got)
	}

	if !arm.SetJoint(1, 120) {
		t.Fatal("Expected SetJoint to succeed")
	}
	sent := d.sent()
	if last := sent[len(sent)-1]; last != "SET 1 90.00" {
		t.Errorf("Expected clamped command 'SET 1 90.00', got %q", last)
	}
	if got := arm.Joint(1); got != 90 {
		t.Errorf("Expected joint 1 at 90, got %v", got)
	}

	if !arm.GripperClose() {
		t.Error("Expected gripper close to succeed")
	}

	if err := arm.Stop(); err != nil {
		t.Fatal(err)
	}
	if !d.closed {
		t.Error("Expected Stop to close the port")
	}
	if got := arm.Joint(0); got != 0 {
		t.Errorf("Expected 0 after Stop, got %v", got)
	}
}

func TestSerialArm_DriverError(t *testing.T) {
	d := &fakeDriver{joints: []float64{0, 0}} // driver only knows two joints
	arm := newTestSerialArm(t, d)

	if arm.SetJoint(2, 10) {
		t.Error("Expected SetJoint to report driver rejection")
	}
	if arm.SetJoint(7, 10) {
		t.Error("Expected SetJoint to reject an index beyond JointCount")
	}
}

// silentPort accepts writes but never answers, like a driver that has
// hung. Read returns (0, nil) the way a serial port does on timeout.
type silentPort struct {
	mu     sync.Mutex
	reads  int
	resets int
	late   string
}

func (p *silentPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *silentPort) Read(b []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.late != "" {
		n := copy(b, p.late)
		p.late = p.late[n:]
		return n, nil
	}
	return 0, nil
}

func (p *silentPort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	p.late = ""
	return nil
}

func (p *silentPort) Close() error { return nil }

func TestSerialArm_SilentDriverTimesOut(t *testing.T) {
	port := &silentPort{}
	arm := NewSerialArm(DefaultSerialConfig())
	arm.open = func(SerialConfig) (io.ReadWriteCloser, error) { return port, nil }

	start := time.Now()
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if arm.SetJoint(0, 90) {
		t.Error("Expected SetJoint to fail without a reply")
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("Expected each request to give up after one empty read, took %v", elapsed)
	}

	port.mu.Lock()
	reads := port.reads
	port.late = "OK\n"
	port.mu.Unlock()
	if reads != 4 {
		t.Errorf("Expected one read per request (4), got %d", reads)
	}

	// The late reply to the timed-out request must not answer this one.
	if got := arm.Joint(0); got != 0 {
		t.Errorf("Expected cached 0 after a discarded late reply, got %v", got)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if port.resets == 0 {
		t.Error("Expected the input buffer to be reset after a timeout")
	}
}

// fakeArmServer serves the arm HTTP API backed by a SimArm.
func fakeArmServer(t *testing.T, arm *SimArm) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	index := func(r *http.Request) int {
		i, _ := strconv.Atoi(r.PathValue("index"))
		return i
	}

	mux.HandleFunc("GET /api/arm/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, StatusPayload{Status: arm.Status(), Joints: arm.JointCount()})
	})
	mux.HandleFunc("GET /api/arm/joints", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, JointsPayload{Joints: Joints(arm)})
	})
	mux.HandleFunc("GET /api/arm/joints/{index}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, JointPayload{Index: index(r), Angle: arm.Joint(index(r))})
	})
	mux.HandleFunc("POST /api/arm/joints/{index}", func(w http.ResponseWriter, r *http.Request) {
		var cmd JointCommand
		json.NewDecoder(r.Body).Decode(&cmd)
		writeJSON(w, OKPayload{OK: arm.SetJoint(index(r), cmd.Angle)})
	})
	mux.HandleFunc("GET /api/arm/joints/{index}/limits", func(w http.ResponseWriter, r *http.Request) {
		lo, hi := arm.JointMin(index(r)), arm.JointMax(index(r))
		writeJSON(w, LimitsPayload{Min: &lo, Max: &hi})
	})
	mux.HandleFunc("POST /api/arm/joints/{index}/limits", func(w http.ResponseWriter, r *http.Request) {
		var p LimitsPayload
		json.NewDecoder(r.Body).Decode(&p)
		if p.Min != nil {
			arm.SetJointMin(index(r), *p.Min)
		}
		if p.Max != nil {
			arm.SetJointMax(index(r), *p.Max)
		}
		writeJSON(w, OKPayload{OK: true})
	})
	mux.HandleFunc("POST /api/arm/gripper/{action}", func(w http.ResponseWriter, r *http.Request) {
		ok := arm.GripperOpen()
		if r.PathValue("action") == "close" {
			ok = arm.GripperClose()
		}
		writeJSON(w, OKPayload{OK: ok})
	})
	mux.HandleFunc("GET /api/arm/camera", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, CameraPayload{FocalLength: arm.CameraFocalLength()})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteArm_RoundTrip(t *testing.T) {
	sim := NewSimArm(SimConfig{Joints: 3, Limits: kinematics.DefaultGeometry().Limits, FocalLength: 1088})
	sim.Start(context.Background())
	srv := fakeArmServer(t, sim)

	arm := NewRemoteArm(RemoteConfig{BaseURL: srv.URL + "/"})
	if arm.Joint(0) != 0 || arm.SetJoint(0, 10) {
		t.Error("Expected unstarted remote arm to return defaults")
	}

	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer arm.Stop()

	if arm.JointCount() != 3 {
		t.Fatalf("Expected 3 joints, got %d", arm.JointCount())
	}
	if !arm.SetJoint(1, 200) {
		t.Fatal("Expected remote SetJoint to succeed")
	}
	if got := arm.Joint(1); got != 90 {
		t.Errorf("Expected remote clamp to 90, got %v", got)
	}
	if arm.SetJoint(3, 10) {
		t.Error("Expected out-of-range joint to fail locally")
	}

	arm.SetJointMax(2, 60)
	if got := arm.JointMax(2); got != 60 {
		t.Errorf("Expected remote max 60, got %v", got)
	}
	if got := arm.JointMin(2); got != 0 {
		t.Errorf("Expected remote min 0, got %v", got)
	}

	if got := arm.CameraFocalLength(); got != 1088 {
		t.Errorf("Expected focal 1088, got %v", got)
	}
	if !arm.GripperClose() {
		t.Error("Expected gripper close to succeed")
	}
	if !strings.Contains(arm.Status(), "closed") {
		t.Errorf("Expected status to report closed gripper, got %q", arm.Status())
	}
}

func TestRemoteArm_StartFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	arm := NewRemoteArm(RemoteConfig{BaseURL: srv.URL})
	if err := arm.Start(context.Background()); err == nil {
		t.Error("Expected Start to fail against a closed server")
	}
}

func TestRemoteArm_JointKeepsLastAngleOnFailure(t *testing.T) {
	sim := NewSimArm(SimConfig{Joints: 3, Initial: []float64{180, 45, 45}})
	sim.Start(context.Background())
	backend := fakeArmServer(t, sim)

	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		backend.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	arm := NewRemoteArm(RemoteConfig{BaseURL: srv.URL})
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer arm.Stop()

	if got := arm.Joint(0); got != 180 {
		t.Fatalf("Expected 180, got %v", got)
	}
	failing.Store(true)
	if got := arm.Joint(0); got != 180 {
		t.Errorf("Expected last known 180 after a failed read, got %v", got)
	}
	if got := arm.Joint(2); got != 45 {
		t.Errorf("Expected joint 2 primed at Start to 45, got %v", got)
	}

	arm.Stop()
	if got := arm.Joint(0); got != 0 {
		t.Errorf("Expected 0 after Stop, got %v", got)
	}
}

func jpegOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// cameraServer serves a 4x4 frame over HTTP. The first /ws/camera
// connection streams one 8x8 frame and drops; later ones close at once.
func cameraServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	httpFrame, wsFrame := jpegOf(t, 4, 4), jpegOf(t, 8, 8)
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/arm/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(StatusPayload{Status: "camera", Joints: 0})
	})
	mux.HandleFunc("GET /api/arm/joints", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JointsPayload{})
	})
	mux.HandleFunc("GET /api/arm/camera/frame", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(httpFrame)
	})
	mux.HandleFunc("GET /ws/camera", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conns.Add(1) == 1 {
			conn.WriteMessage(websocket.BinaryMessage, wsFrame)
			time.Sleep(20 * time.Millisecond)
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestRemoteArm_DroppedStreamFallsBackToFetch(t *testing.T) {
	srv, conns := cameraServer(t)

	arm := NewRemoteArm(RemoteConfig{BaseURL: srv.URL, StreamCamera: true})
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer arm.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for conns.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Expected the camera stream to reconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	img, err := arm.CaptureImage()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Dx(); got != 4 {
		t.Errorf("Expected the fetched 4px frame after the stream dropped, got %dpx", got)
	}
}

func TestRemoteArm_StaleFrameExpires(t *testing.T) {
	srv, _ := cameraServer(t)

	arm := NewRemoteArm(RemoteConfig{BaseURL: srv.URL, FrameMaxAge: 100 * time.Millisecond})
	if err := arm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer arm.Stop()

	arm.setFrame(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	img, err := arm.CaptureImage()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Dx(); got != 8 {
		t.Errorf("Expected the fresh streamed frame, got %dpx", got)
	}

	arm.frameMu.Lock()
	arm.frameAt = time.Now().Add(-time.Second)
	arm.frameMu.Unlock()
	img, err = arm.CaptureImage()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.Bounds().Dx(); got != 4 {
		t.Errorf("Expected an expired frame to be refetched, got %dpx", got)
	}
}
