package kinematics

import "math"

// Joint indices on the arm.
const (
	JointBase = iota
	JointShoulder
	JointElbow
)

// ServoMap converts between kinematic angles and the angles the joint
// backends expect. The base servo is centered at 180 degrees and the
// shoulder and elbow servos read 90 at the kinematic zero.
type ServoMap struct{}

// ToServo maps a solution to backend joint angles. A degraded solution
// drives the elbow to 0.
func (ServoMap) ToServo(s Solution) []float64 {
	elbow := 90 - s.Elbow
	if s.Degraded {
		elbow = 0
	}
	return []float64{
		wrap360(s.Base + 180),
		90 - s.Shoulder,
		elbow,
	}
}

// FromServo maps backend joint angles back to kinematic angles so they
// can be fed to Forward.
func (ServoMap) FromServo(servo []float64) []float64 {
	out := make([]float64, 3)
	if len(servo) > JointBase {
		out[JointBase] = servo[JointBase] - 180
	}
	if len(servo) > JointShoulder {
		out[JointShoulder] = 90 - servo[JointShoulder]
	}
	if len(servo) > JointElbow {
		out[JointElbow] = 90 - servo[JointElbow]
	}
	return out
}

func wrap360(deg float64) float64 {
	w := math.Mod(deg, 360)
	if w < 0 {
		w += 360
	}
	return w
}
