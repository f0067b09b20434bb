package tracking

import (
	"context"
	"time"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

// Mover walks the end effector to a Cartesian point in fixed steps,
// solving IK at every step.
type Mover struct {
	geometry kinematics.ArmGeometry
	servo    kinematics.ServoMap
	writer   *jointWriter
	arm      JointArm

	// Step is the distance covered per tick (cm).
	Step float64
	// Interval is the time between steps.
	Interval time.Duration
}

// NewMover creates a mover with a 1 cm step every 30 ms.
func NewMover(g kinematics.ArmGeometry, arm JointArm) *Mover {
	return &Mover{
		geometry: g,
		writer:   newJointWriter(arm, log.Component("moveto")),
		arm:      arm,
		Step:     1.0,
		Interval: 30 * time.Millisecond,
	}
}

// Position returns the end effector position for the measured angles.
func (m *Mover) Position() r3.Vector {
	measured := make([]float64, 3)
	for j := range measured {
		measured[j] = m.arm.Joint(j)
	}
	return kinematics.Forward(m.geometry, m.servo.FromServo(measured)).End()
}

// MoveTo steps toward target until it is reached or ctx is done. It
// returns the number of steps taken.
func (m *Mover) MoveTo(ctx context.Context, target r3.Vector) (int, error) {
	current := m.Position()
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	steps := 0
	for {
		current = StepToward(current, target, m.Step)
		m.writer.Write(m.commands(current))
		steps++
		if current == target {
			return steps, nil
		}

		select {
		case <-ctx.Done():
			return steps, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Mover) commands(p r3.Vector) []Command {
	servo := m.servo.ToServo(kinematics.Solve(m.geometry, p))
	cmds := make([]Command, len(servo))
	for j, angle := range servo {
		cmds[j] = Command{Joint: j, Angle: angle}
	}
	return cmds
}

// StepToward moves from by at most step toward to, snapping onto to when
// closer than step.
func StepToward(from, to r3.Vector, step float64) r3.Vector {
	d := to.Sub(from)
	dist := d.Norm()
	if dist < step || dist == 0 {
		return to
	}
	return from.Add(d.Mul(step / dist))
}
