// Package opencv provides detection.Identifier implementations backed by
// gocv: HSV color segmentation, YuNet faces and YOLO objects.
package opencv

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var errEmptyFrame = errors.New("empty frame")

// toMat converts a frame to a BGR Mat. The caller closes the Mat.
func toMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), errEmptyFrame
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return mat, fmt.Errorf("convert frame: %w", err)
	}
	if mat.Empty() {
		return mat, errEmptyFrame
	}
	return mat, nil
}

// radiusOf returns half the larger box side.
func radiusOf(r image.Rectangle) float64 {
	return float64(max(r.Dx(), r.Dy())) / 2
}
