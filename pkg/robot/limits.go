package robot

import (
	"sync"

	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// JointLimits is a thread-safe table of per-joint angle limits.
// Joints without an entry use kinematics.DefaultJointLimit.
type JointLimits struct {
	mu     sync.RWMutex
	limits map[int]kinematics.JointLimit
}

// NewJointLimits creates a table seeded from configured limits.
func NewJointLimits(configured []kinematics.JointLimit) *JointLimits {
	l := &JointLimits{limits: make(map[int]kinematics.JointLimit, len(configured))}
	for i, lim := range configured {
		l.limits[i] = lim
	}
	return l
}

// Get returns the limit for joint i.
func (l *JointLimits) Get(i int) kinematics.JointLimit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lim, ok := l.limits[i]; ok {
		return lim
	}
	return kinematics.DefaultJointLimit
}

// Min returns the lower bound for joint i.
func (l *JointLimits) Min(i int) float64 {
	return l.Get(i).Min
}

// Max returns the upper bound for joint i.
func (l *JointLimits) Max(i int) float64 {
	return l.Get(i).Max
}

// SetMin sets the lower bound for joint i.
func (l *JointLimits) SetMin(i int, deg float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limits[i]
	if !ok {
		lim = kinematics.DefaultJointLimit
	}
	lim.Min = deg
	l.limits[i] = lim
}

// SetMax sets the upper bound for joint i.
func (l *JointLimits) SetMax(i int, deg float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limits[i]
	if !ok {
		lim = kinematics.DefaultJointLimit
	}
	lim.Max = deg
	l.limits[i] = lim
}

// Clamp limits deg to joint i's range.
func (l *JointLimits) Clamp(i int, deg float64) float64 {
	return l.Get(i).Clamp(deg)
}
