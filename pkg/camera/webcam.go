package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// ErrClosed is returned by a closed webcam.
var ErrClosed = errors.New("camera: closed")

// Webcam reads frames from an OpenCV capture device. It implements
// robot.FrameSource.
type Webcam struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frame   gocv.Mat
	config  Config
	closed  bool
}

// OpenWebcam opens the configured device and applies cfg.
func OpenWebcam(cfg Config) (*Webcam, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("camera disabled (device %d)", cfg.Device)
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}

	w := &Webcam{
		capture: capture,
		frame:   gocv.NewMat(),
	}
	w.apply(cfg)
	return w, nil
}

// Apply changes capture settings. It is suitable as a
// Manager.OnConfigChange callback. Changing the device is not supported.
func (w *Webcam) Apply(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if cfg.Device != w.config.Device {
		return fmt.Errorf("camera device change %d -> %d requires restart", w.config.Device, cfg.Device)
	}
	w.apply(cfg)
	return nil
}

func (w *Webcam) apply(cfg Config) {
	w.capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	w.capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	w.capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness > 0 {
		w.capture.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	w.config = cfg
}

// Frame reads the next frame.
func (w *Webcam) Frame() (image.Image, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	if ok := w.capture.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("cannot read webcam device: %d", w.config.Device)
	}

	if code, ok := flipCode(w.config); ok {
		gocv.Flip(w.frame, &w.frame, code)
	}

	img, err := w.frame.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.frame.Close()
	return w.capture.Close()
}

// flipCode maps the flip flags to OpenCV's flip code: 0 around the x axis,
// 1 around the y axis, -1 around both.
func flipCode(cfg Config) (int, bool) {
	switch {
	case cfg.FlipHorizontal && cfg.FlipVertical:
		return -1, true
	case cfg.FlipHorizontal:
		return 1, true
	case cfg.FlipVertical:
		return 0, true
	default:
		return 0, false
	}
}

// EncodeJPEG encodes img at the given quality for streaming.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
