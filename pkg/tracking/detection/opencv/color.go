package opencv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// HSVRange is an inclusive OpenCV HSV range (H 0-180, S and V 0-255).
type HSVRange struct {
	Lower [3]float64
	Upper [3]float64
}

// ColorBand maps an HSV range to a color name. Several bands may share a
// name when the hue wraps.
type ColorBand struct {
	Name  string
	Range HSVRange
}

// DefaultColorBands covers the hue circle with saturated colors.
var DefaultColorBands = []ColorBand{
	{"Red", HSVRange{[3]float64{0, 50, 50}, [3]float64{10, 255, 255}}},
	{"Orange", HSVRange{[3]float64{10, 50, 50}, [3]float64{20, 255, 255}}},
	{"Yellow", HSVRange{[3]float64{20, 50, 50}, [3]float64{35, 255, 255}}},
	{"Green", HSVRange{[3]float64{35, 50, 50}, [3]float64{85, 255, 255}}},
	{"Cyan", HSVRange{[3]float64{85, 50, 50}, [3]float64{100, 255, 255}}},
	{"Blue", HSVRange{[3]float64{100, 50, 50}, [3]float64{125, 255, 255}}},
	{"Purple", HSVRange{[3]float64{125, 50, 50}, [3]float64{145, 255, 255}}},
	{"Magenta", HSVRange{[3]float64{145, 50, 50}, [3]float64{160, 255, 255}}},
	{"Red", HSVRange{[3]float64{160, 50, 50}, [3]float64{180, 255, 255}}},
}

// ColorConfig holds color identifier configuration.
type ColorConfig struct {
	Bands   []ColorBand
	MinArea float64 // contours smaller than this (px²) are ignored
}

// DefaultColorConfig returns production defaults.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		Bands:   DefaultColorBands,
		MinArea: 50,
	}
}

// ColorIdentifier finds solid-colored blobs and labels them
// "<Color> object".
type ColorIdentifier struct {
	config ColorConfig
	kernel gocv.Mat
	mu     sync.Mutex
}

// NewColorIdentifier creates a color segmentation identifier.
func NewColorIdentifier(cfg ColorConfig) *ColorIdentifier {
	if len(cfg.Bands) == 0 {
		cfg.Bands = DefaultColorBands
	}
	return &ColorIdentifier{
		config: cfg,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// ColorLabel returns the object label for a color name.
func ColorLabel(color string) string {
	return color + " object"
}

// Labels returns one label per distinct color band.
func (c *ColorIdentifier) Labels() []string {
	seen := make(map[string]bool, len(c.config.Bands))
	var out []string
	for _, b := range c.config.Bands {
		if seen[b.Name] {
			continue
		}
		seen[b.Name] = true
		out = append(out, ColorLabel(b.Name))
	}
	return out
}

// ProcessFrame segments img by color band and returns one object per
// external contour.
func (c *ColorIdentifier) ProcessFrame(img image.Image) ([]detection.Object, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bgr, err := toMat(img)
	defer bgr.Close()
	if err != nil {
		return nil, err
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	width, height := bgr.Cols(), bgr.Rows()

	mask := gocv.NewMat()
	defer mask.Close()

	var objs []detection.Object
	for _, band := range c.config.Bands {
		lo, hi := band.Range.Lower, band.Range.Upper
		gocv.InRangeWithScalar(hsv,
			gocv.NewScalar(lo[0], lo[1], lo[2], 0),
			gocv.NewScalar(hi[0], hi[1], hi[2], 0),
			&mask)
		gocv.MorphologyEx(mask, &mask, gocv.MorphClose, c.kernel)

		contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		for i := 0; i < contours.Size(); i++ {
			contour := contours.At(i)
			area := gocv.ContourArea(contour)
			if area < c.config.MinArea {
				continue
			}

			cx, cy, radius := gocv.MinEnclosingCircle(contour)
			box := gocv.BoundingRect(contour)
			objs = append(objs, detection.Object{
				Label:       ColorLabel(band.Name),
				FrameWidth:  width,
				FrameHeight: height,
				X:           box.Min.X,
				Y:           box.Min.Y,
				Width:       box.Dx(),
				Height:      box.Dy(),
				Radius:      float64(int(radius)),
				Metadata: map[string]any{
					"color":  band.Name,
					"shape":  shapeOf(contour),
					"center": fmt.Sprintf("(%d, %d)", int(cx), int(cy)),
					"area":   area,
				},
				Source: img,
			})
		}
		contours.Close()
	}

	return objs, nil
}

// shapeOf classifies a contour by the vertex count of its polygon
// approximation.
func shapeOf(contour gocv.PointVector) string {
	approx := gocv.ApproxPolyDP(contour, 0.04*gocv.ArcLength(contour, true), true)
	defer approx.Close()

	switch approx.Size() {
	case 3:
		return "Triangle"
	case 4:
		r := gocv.BoundingRect(approx)
		return quadShape(r.Dx(), r.Dy())
	case 5:
		return "Pentagon"
	case 6:
		return "Hexagon"
	default:
		return "Circle"
	}
}

func quadShape(w, h int) string {
	if h == 0 {
		return "Rectangle"
	}
	aspect := float64(w) / float64(h)
	if aspect >= 0.9 && aspect <= 1.1 {
		return "Square"
	}
	return "Rectangle"
}

// Close releases OpenCV resources.
func (c *ColorIdentifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kernel.Close()
}
