// Package detection defines the objects produced by visual identifiers and
// the shared snapshot the sensing loop publishes them through.
package detection

import (
	"fmt"
	"image"
	"sort"
	"strings"
)

// Object is one identified target in a frame. Objects are immutable once
// created; each frame produces a fresh list.
type Object struct {
	Label string

	FrameWidth  int
	FrameHeight int

	// Bounding box in pixels.
	X, Y          int
	Width, Height int

	// Radius is the apparent radius in pixels.
	Radius float64

	Metadata map[string]any

	// Source is the frame the object was found in.
	Source image.Image
}

// Center returns the box center using integer halving.
func (o Object) Center() (x, y int) {
	return o.X + o.Width/2, o.Y + o.Height/2
}

// ScreenCenter returns the frame center using integer halving.
func (o Object) ScreenCenter() (x, y int) {
	return o.FrameWidth / 2, o.FrameHeight / 2
}

// Identifier finds objects in frames.
type Identifier interface {
	// ProcessFrame returns the objects found in img.
	ProcessFrame(img image.Image) ([]Object, error)

	// Labels returns every label this identifier can produce.
	Labels() []string
}

// HasLabel reports whether label is in id's label universe, ignoring case.
func HasLabel(id Identifier, label string) bool {
	for _, l := range id.Labels() {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// SelectLargest returns the object with the strictly largest radius among
// those matching label (case-insensitive). An empty label matches any
// object. Ties keep the first encountered. ok is false if nothing matches.
func SelectLargest(objs []Object, label string) (best Object, ok bool) {
	for _, o := range objs {
		if label != "" && !strings.EqualFold(o.Label, label) {
			continue
		}
		if !ok || o.Radius > best.Radius {
			best, ok = o, true
		}
	}
	return best, ok
}

// Describe renders an object as "<label> radius: <r> <metadata>".
func Describe(o Object) string {
	return fmt.Sprintf("%s radius: %g %s", o.Label, o.Radius, formatMetadata(o.Metadata))
}

func formatMetadata(md map[string]any) string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, md[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Labels returns the label of every object in order.
func Labels(objs []Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Label
	}
	return out
}
