package tracking

import "math"

// MotionSmoother pulls each joint command toward its target by a fixed
// fraction exp(-k) per tick. The first command for a joint starts from the
// measured angle.
type MotionSmoother struct {
	alpha float64
	prev  map[int]float64
}

// NewMotionSmoother creates a smoother with factor exp(-smoothness).
func NewMotionSmoother(smoothness float64) *MotionSmoother {
	return &MotionSmoother{
		alpha: SmoothingFactor(smoothness),
		prev:  make(map[int]float64),
	}
}

// SmoothingFactor returns exp(-k), in (0,1] for k >= 0.
func SmoothingFactor(k float64) float64 {
	return math.Exp(-k)
}

// Alpha returns the per-tick factor.
func (s *MotionSmoother) Alpha() float64 {
	return s.alpha
}

// SetSmoothness changes k.
func (s *MotionSmoother) SetSmoothness(k float64) {
	s.alpha = SmoothingFactor(k)
}

// Smooth returns the next command for joint.
func (s *MotionSmoother) Smooth(joint int, target, measured float64) float64 {
	prev, ok := s.prev[joint]
	if !ok {
		prev = measured
	}
	next := prev + s.alpha*(target-prev)
	s.prev[joint] = next
	return next
}

// Reset forgets every previous command.
func (s *MotionSmoother) Reset() {
	clear(s.prev)
}
