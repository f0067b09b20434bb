package opencv

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// discImage draws a filled disc on a black background.
func discImage(w, h, cx, cy, r int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, c)
			} else {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestColorIdentifier_FindsDisc(t *testing.T) {
	id := NewColorIdentifier(DefaultColorConfig())
	defer id.Close()

	img := discImage(200, 150, 100, 75, 20, color.RGBA{0, 255, 0, 255})
	objs, err := id.ProcessFrame(img)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	disc, ok := detection.SelectLargest(objs, "green object")
	if !ok {
		t.Fatalf("Expected a green object, got %v", detection.Labels(objs))
	}
	if disc.Radius < 17 || disc.Radius > 22 {
		t.Errorf("Expected radius near 20, got %v", disc.Radius)
	}
	cx, cy := disc.Center()
	if abs(cx-100) > 2 || abs(cy-75) > 2 {
		t.Errorf("Expected center near (100,75), got (%d,%d)", cx, cy)
	}
	if disc.FrameWidth != 200 || disc.FrameHeight != 150 {
		t.Errorf("Expected 200x150 frame, got %dx%d", disc.FrameWidth, disc.FrameHeight)
	}
	if disc.Metadata["color"] != "Green" {
		t.Errorf("Expected color metadata Green, got %v", disc.Metadata["color"])
	}
}

func TestColorIdentifier_IgnoresSmallBlobs(t *testing.T) {
	cfg := DefaultColorConfig()
	cfg.MinArea = 5000
	id := NewColorIdentifier(cfg)
	defer id.Close()

	objs, err := id.ProcessFrame(discImage(200, 150, 100, 75, 20, color.RGBA{0, 255, 0, 255}))
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 0 {
		t.Errorf("Expected blobs below MinArea to be dropped, got %d", len(objs))
	}
}

func TestColorIdentifier_Labels(t *testing.T) {
	id := NewColorIdentifier(DefaultColorConfig())
	defer id.Close()

	labels := id.Labels()
	if len(labels) != 8 {
		t.Errorf("Expected 8 distinct color labels, got %d: %v", len(labels), labels)
	}
	if !detection.HasLabel(id, "red OBJECT") {
		t.Error("Expected red object in label universe")
	}
}

func TestColorIdentifier_NilFrame(t *testing.T) {
	id := NewColorIdentifier(DefaultColorConfig())
	defer id.Close()

	if _, err := id.ProcessFrame(nil); err == nil {
		t.Error("Expected error for nil frame")
	}
}

func TestQuadShape(t *testing.T) {
	if got := quadShape(10, 10); got != "Square" {
		t.Errorf("Expected Square, got %s", got)
	}
	if got := quadShape(30, 10); got != "Rectangle" {
		t.Errorf("Expected Rectangle, got %s", got)
	}
}

func TestNewFaceIdentifier_InvalidPath(t *testing.T) {
	cfg := DefaultFaceConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"
	if _, err := NewFaceIdentifier(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestNewYOLOIdentifier_InvalidPath(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"
	if _, err := NewYOLOIdentifier(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestFaceIdentifier_SolidImage(t *testing.T) {
	modelPath := findModelPath("face_detection_yunet.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultFaceConfig()
	cfg.ModelPath = modelPath
	id, err := NewFaceIdentifier(cfg)
	if err != nil {
		t.Fatalf("NewFaceIdentifier failed: %v", err)
	}
	defer id.Close()

	objs, err := id.ProcessFrame(discImage(320, 240, 0, 0, 0, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if len(objs) > 0 {
		t.Errorf("Expected no faces in a blank image, got %d", len(objs))
	}
}

func findModelPath(name string) string {
	paths := []string{
		filepath.Join("../../../../models", name),
		filepath.Join("../../../models", name),
		filepath.Join("models", name),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return ""
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
