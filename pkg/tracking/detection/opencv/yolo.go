package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// YOLOConfig holds YOLO identifier configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Classes          []string // defaults to COCOClasses
}

// DefaultYOLOConfig returns production defaults for YOLOv8n.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// YOLOIdentifier labels objects with a YOLOv8 ONNX model.
type YOLOIdentifier struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLOIdentifier loads the model.
func NewYOLOIdentifier(cfg YOLOConfig) (*YOLOIdentifier, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if len(cfg.Classes) == 0 {
		cfg.Classes = COCOClasses
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLOIdentifier{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Labels returns the model's class names.
func (d *YOLOIdentifier) Labels() []string {
	return d.config.Classes
}

// ProcessFrame runs the model on img.
func (d *YOLOIdentifier) ProcessFrame(img image.Image) ([]detection.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := toMat(img)
	defer mat.Close()
	if err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	boxes, scores, classIDs := d.parse(output, float32(mat.Cols()), float32(mat.Rows()))
	if len(boxes) == 0 {
		return nil, nil
	}

	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)
	objs := make([]detection.Object, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		objs = append(objs, detection.Object{
			Label:       d.className(classIDs[idx]),
			FrameWidth:  mat.Cols(),
			FrameHeight: mat.Rows(),
			X:           box.Min.X,
			Y:           box.Min.Y,
			Width:       box.Dx(),
			Height:      box.Dy(),
			Radius:      radiusOf(box),
			Metadata: map[string]any{
				"score":   float64(scores[idx]),
				"classid": classIDs[idx],
			},
			Source: img,
		})
	}
	return objs, nil
}

func (d *YOLOIdentifier) className(id int) string {
	if id < 0 || id >= len(d.config.Classes) {
		return fmt.Sprintf("class %d", id)
	}
	return d.config.Classes[id]
}

// parse decodes the [1, 4+classes, N] YOLOv8 output into frame-space boxes.
func (d *YOLOIdentifier) parse(output gocv.Mat, imgW, imgH float32) ([]image.Rectangle, []float32, []int) {
	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	sizes := output.Size()
	if len(sizes) < 3 {
		return nil, nil, nil
	}
	cols, rows := sizes[1], sizes[2]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, nil, nil
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)
	for i := 0; i < rows; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > best {
				best = score
				bestID = c - 4
			}
		}
		if best < d.config.ConfidenceThresh {
			continue
		}

		cx, cy := data[i], data[rows+i]
		w, h := data[2*rows+i], data[3*rows+i]
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		scores = append(scores, best)
		classIDs = append(classIDs, bestID)
	}
	return boxes, scores, classIDs
}

// Close releases the network.
func (d *YOLOIdentifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
