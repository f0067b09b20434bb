package tracking

import (
	"math"

	"github.com/teslashibe/go-armvision/pkg/robot"
)

// ScreenLaw drives joints directly from the pixel error between the
// screen center and the target center.
type ScreenLaw struct {
	reach    float64
	hasReach bool
}

// NewScreenLaw creates a screen-space law.
func NewScreenLaw() *ScreenLaw {
	return &ScreenLaw{}
}

func (l *ScreenLaw) Name() string { return "screen" }

// Step applies the per-axis rule
//
//	angle = measured - gain * error * exp(-smoothness)
//
// to each axis whose error is outside the tolerance. Axes inside the
// tolerance produce no command.
func (l *ScreenLaw) Step(tick Tick, arm robot.JointController, cfg Config) ([]Command, error) {
	ex, ey := ScreenError(tick)
	decay := SmoothingFactor(cfg.Smoothness)

	var cmds []Command
	if math.Abs(ex) > cfg.Tolerance {
		base := arm.Joint(cfg.BaseJoint) - cfg.Gain*ex*decay
		cmds = append(cmds, Command{Joint: cfg.BaseJoint, Angle: floorZero(base)})
	}
	if math.Abs(ey) > cfg.Tolerance {
		elev := arm.Joint(cfg.ElevationJoint) - cfg.Gain*ey*decay
		cmds = append(cmds, Command{Joint: cfg.ElevationJoint, Angle: floorZero(elev)})
	}

	if cfg.DriveReach {
		if reach, ok := l.stepReach(tick.Target.Radius, arm.Joint(cfg.ReachJoint), cfg, decay); ok {
			cmds = append(cmds, Command{Joint: cfg.ReachJoint, Angle: reach})
		}
	}
	return cmds, nil
}

// stepReach moves the reach joint toward the desired apparent radius:
// out when the target looks small, in when it looks big.
func (l *ScreenLaw) stepReach(radius, measured float64, cfg Config, decay float64) (float64, bool) {
	if !l.hasReach {
		l.reach, l.hasReach = measured, true
	}
	diff := radius - cfg.DesiredRadius
	switch {
	case diff < 0:
		l.reach += cfg.ReachStep * radius * decay
	case diff > 0:
		l.reach -= cfg.ReachStep * radius * decay
	default:
		return 0, false
	}
	l.reach = clamp(l.reach, -cfg.ReachRange, cfg.ReachRange)
	return l.reach, true
}

func (l *ScreenLaw) Reset() {
	l.hasReach = false
}

// ScreenError returns screen center minus target center, per axis.
func ScreenError(tick Tick) (ex, ey float64) {
	cx, cy := tick.Target.ScreenCenter()
	ox, oy := tick.Target.Center()
	return float64(cx - ox), float64(cy - oy)
}

func floorZero(deg float64) float64 {
	if deg < 0 {
		return 0
	}
	return deg
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
