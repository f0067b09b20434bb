package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// FaceLabel is the label given to every face.
const FaceLabel = "face"

// FaceConfig holds face identifier configuration.
type FaceConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultFaceConfig returns production defaults for YuNet.
func DefaultFaceConfig() FaceConfig {
	return FaceConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// FaceIdentifier uses OpenCV's FaceDetectorYN to find faces.
type FaceIdentifier struct {
	detector gocv.FaceDetectorYN
	config   FaceConfig
	mu       sync.Mutex // Protects inference
}

// NewFaceIdentifier loads the YuNet model.
func NewFaceIdentifier(cfg FaceConfig) (*FaceIdentifier, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FaceIdentifier{
		detector: detector,
		config:   cfg,
	}, nil
}

// Labels returns the single face label.
func (f *FaceIdentifier) Labels() []string {
	return []string{FaceLabel}
}

// ProcessFrame finds faces in img.
func (f *FaceIdentifier) ProcessFrame(img image.Image) ([]detection.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	mat, err := toMat(img)
	defer mat.Close()
	if err != nil {
		return nil, err
	}

	f.detector.SetInputSize(image.Pt(mat.Cols(), mat.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	f.detector.Detect(mat, &faces)

	objs := make([]detection.Object, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// YuNet rows: x, y, w, h, 5 landmark pairs, score
		box := image.Rect(
			int(faces.GetFloatAt(r, 0)),
			int(faces.GetFloatAt(r, 1)),
			int(faces.GetFloatAt(r, 0)+faces.GetFloatAt(r, 2)),
			int(faces.GetFloatAt(r, 1)+faces.GetFloatAt(r, 3)),
		)
		objs = append(objs, detection.Object{
			Label:       FaceLabel,
			FrameWidth:  mat.Cols(),
			FrameHeight: mat.Rows(),
			X:           box.Min.X,
			Y:           box.Min.Y,
			Width:       box.Dx(),
			Height:      box.Dy(),
			Radius:      radiusOf(box),
			Metadata:    map[string]any{"score": float64(faces.GetFloatAt(r, 14))},
			Source:      img,
		})
	}
	return objs, nil
}

// Close releases the detector resources.
func (f *FaceIdentifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detector.Close()
	return nil
}
