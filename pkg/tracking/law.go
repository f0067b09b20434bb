package tracking

import (
	"errors"

	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

// ErrInvalidFrame is returned when a detection cannot be back-projected
// with the current camera geometry. The tick is skipped.
var ErrInvalidFrame = errors.New("tracking: invalid camera geometry for frame")

// Command is one joint angle to transmit, in degrees.
type Command struct {
	Joint int
	Angle float64
}

// Tick is what the control loop hands to a law each tick.
type Tick struct {
	Target detection.Object
	// Seq is the snapshot sequence the target came from. Repeated values
	// mean no new detection arrived since the previous tick.
	Seq uint64
}

// Law turns a selected target into joint commands. Laws are driven only
// by the control loop and need not be safe for concurrent use.
type Law interface {
	Name() string
	Step(tick Tick, arm robot.JointController, cfg Config) ([]Command, error)
	// Reset drops per-target state, called when the target is lost.
	Reset()
}
