package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is the result of forward kinematics.
type Pose struct {
	// Joints holds the base origin followed by each joint origin; the last
	// entry is the end effector.
	Joints []r3.Vector
	// Forward is the end effector's pointing direction.
	Forward r3.Vector
}

// End returns the end effector position.
func (p Pose) End() r3.Vector {
	if len(p.Joints) == 0 {
		return r3.Vector{}
	}
	return p.Joints[len(p.Joints)-1]
}

// DH returns the homogeneous link transform for parameters (theta, alpha, r, d).
// Angles are in radians.
func DH(theta, alpha, r, d float64) *mat.Dense {
	ct, st := math.Cos(theta), math.Sin(theta)
	ca, sa := math.Cos(alpha), math.Sin(alpha)
	return mat.NewDense(4, 4, []float64{
		ct, -st * ca, st * sa, r * ct,
		st, ct * ca, -ct * sa, r * st,
		0, sa, ca, d,
		0, 0, 0, 1,
	})
}

// Chain returns the four link transforms for the given angles (degrees):
// base yaw, shoulder, elbow and the fixed tool link. Missing angles are 0.
func Chain(g ArmGeometry, angles []float64) []*mat.Dense {
	at := func(i int) float64 {
		if i < len(angles) {
			return Radians(angles[i])
		}
		return 0
	}
	l := g.Links
	return []*mat.Dense{
		DH(at(0), math.Pi/2, 0, l.A1),
		DH(at(1), 0, l.A3, -l.A2),
		DH(at(2), math.Pi/2, 0, l.A4),
		DH(0, 0, 0, l.Reach()),
	}
}

// Forward computes joint origins and the end effector direction for the
// given angles in degrees. It is defined for any input.
func Forward(g ArmGeometry, angles []float64) Pose {
	chain := Chain(g, angles)

	acc := identity4()
	pose := Pose{Joints: make([]r3.Vector, 0, len(chain)+1)}
	pose.Joints = append(pose.Joints, translation(acc))
	for _, t := range chain {
		next := mat.NewDense(4, 4, nil)
		next.Mul(acc, t)
		acc = next
		pose.Joints = append(pose.Joints, translation(acc))
	}
	pose.Forward = r3.Vector{X: acc.At(0, 2), Y: acc.At(1, 2), Z: acc.At(2, 2)}
	return pose
}

func identity4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

func translation(m mat.Matrix) r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}
