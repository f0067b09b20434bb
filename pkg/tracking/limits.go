package tracking

import (
	"log/slog"

	"github.com/teslashibe/go-armvision/pkg/robot"
)

// JointArm is the part of the backend the control loop drives.
type JointArm interface {
	robot.JointController
	robot.LimitController
}

// jointWriter clamps commands to the backend's limits and sends only those
// that differ from the last value sent for the joint.
type jointWriter struct {
	arm    JointArm
	logger *slog.Logger
	last   map[int]float64
}

func newJointWriter(arm JointArm, logger *slog.Logger) *jointWriter {
	return &jointWriter{
		arm:    arm,
		logger: logger,
		last:   make(map[int]float64),
	}
}

// Write sends cmds and returns how many were accepted by the backend.
// A rejected command is logged and dropped for that joint only.
func (w *jointWriter) Write(cmds []Command) int {
	sent := 0
	for _, c := range cmds {
		angle := clamp(c.Angle, w.arm.JointMin(c.Joint), w.arm.JointMax(c.Joint))
		if prev, ok := w.last[c.Joint]; ok && prev == angle {
			continue
		}
		if !w.arm.SetJoint(c.Joint, angle) {
			w.logger.Warn("set joint failed", "joint", c.Joint, "angle", angle)
			continue
		}
		w.last[c.Joint] = angle
		sent++
	}
	return sent
}

// Forget clears the sent cache so the next command is always sent.
func (w *jointWriter) Forget() {
	clear(w.last)
}
