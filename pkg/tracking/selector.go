package tracking

import (
	"sync"

	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// TargetSelector filters detections by label and picks the largest.
type TargetSelector struct {
	identifier detection.Identifier

	mu    sync.RWMutex
	label string
}

// NewTargetSelector creates a selector with no label filter.
func NewTargetSelector(id detection.Identifier) *TargetSelector {
	return &TargetSelector{identifier: id}
}

// SetLabel sets the filter. It returns false and keeps the previous filter
// if label is not one the identifier can produce. An empty label clears
// the filter.
func (s *TargetSelector) SetLabel(label string) bool {
	if label != "" && !detection.HasLabel(s.identifier, label) {
		return false
	}
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
	return true
}

// Label returns the current filter.
func (s *TargetSelector) Label() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}

// Select returns the largest object matching the filter.
func (s *TargetSelector) Select(objs []detection.Object) (detection.Object, bool) {
	return detection.SelectLargest(objs, s.Label())
}
