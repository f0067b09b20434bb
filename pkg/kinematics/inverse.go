package kinematics

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// ErrUnreachable is returned when no exact solution exists for a target.
var ErrUnreachable = errors.New("kinematics: target unreachable")

// Solution is a set of kinematic joint angles in degrees.
type Solution struct {
	Base     float64
	Shoulder float64
	Elbow    float64
	// Degraded is set when the angles come from the fallback solver. The
	// elbow is then left at its neutral position.
	Degraded bool
}

// Angles returns the solution as a joint-indexed slice.
func (s Solution) Angles() []float64 {
	return []float64{s.Base, s.Shoulder, s.Elbow}
}

// Reachable reports whether target lies inside either feasibility region.
//
// Region A sits at or below the shoulder plane: the target must be within
// forearm reach of the upper arm's tip and outside the upper arm's radius.
// Region B sits above the shoulder plane: the target must be within the
// combined reach and outside the upper arm's radius.
func Reachable(g ArmGeometry, target r3.Vector) bool {
	l := g.Links
	h := math.Hypot(target.X, target.Y)
	dz := target.Z - l.A1
	reach := l.Reach()
	r2 := h*h + dz*dz

	regionA := target.Z > 0 && target.Z <= l.A1 &&
		(h-l.A3)*(h-l.A3)+dz*dz < reach*reach &&
		r2 > l.A3*l.A3
	regionB := target.Z > l.A1 &&
		r2 > l.A3*l.A3 &&
		r2 < (l.A3+reach)*(l.A3+reach)

	return regionA || regionB
}

// baseYaw returns atan2(y, x), or 0 at the vertical axis.
func baseYaw(x, y float64) float64 {
	if x == 0 && y == 0 {
		return 0
	}
	return math.Atan2(y, x)
}

// Inverse solves for the joint angles that place the end effector at
// target (centimeters, base frame). Only the elbow-up branch is produced.
// It returns ErrUnreachable when the target is outside the workspace or the
// law of cosines has no real solution; angles are never NaN.
func Inverse(g ArmGeometry, target r3.Vector) (Solution, error) {
	if !Reachable(g, target) {
		return Solution{}, ErrUnreachable
	}

	yaw := baseYaw(target.X, target.Y)

	// Express the target in the shoulder frame to get a planar problem.
	var inv mat.Dense
	if err := inv.Inverse(DH(yaw, math.Pi/2, 0, g.Links.A1)); err != nil {
		return Solution{}, ErrUnreachable
	}
	var local mat.VecDense
	local.MulVec(&inv, mat.NewVecDense(4, []float64{target.X, target.Y, target.Z, 1}))
	lx, ly := local.AtVec(0), local.AtVec(1)

	l1 := g.Links.A3
	l2 := g.Links.Reach()
	r := math.Hypot(lx, ly)
	if r == 0 {
		return Solution{}, ErrUnreachable
	}

	var theta float64
	if lx == 0 {
		theta = math.Copysign(math.Pi/2, ly)
	} else {
		theta = math.Atan(ly / lx)
	}

	cosArg := (r*r - l1*l1 - l2*l2) / (-2 * l1 * l2)
	if cosArg < -1 || cosArg > 1 || math.IsNaN(cosArg) {
		return Solution{}, ErrUnreachable
	}
	beta := math.Acos(cosArg)

	sinArg := l2 * math.Sin(beta) / r
	if sinArg > 1 || sinArg < -1 {
		return Solution{}, ErrUnreachable
	}
	alpha := math.Asin(sinArg)

	return Solution{
		Base:     Degrees(yaw),
		Shoulder: Degrees(theta + alpha),
		Elbow:    Degrees(beta - math.Pi/2),
	}, nil
}

// Fallback computes a degraded solution that keeps the arm pointed at the
// target: base yaw plus a direct pitch toward it, elbow neutral.
func Fallback(g ArmGeometry, target r3.Vector) Solution {
	dist := math.Hypot(target.X, target.Y)
	pitch := 90.0
	if dist != 0 {
		pitch = Degrees(math.Atan((target.Z - g.Links.A1) / dist))
	}
	return Solution{
		Base:     Degrees(baseYaw(target.X, target.Y)),
		Shoulder: pitch,
		Elbow:    0,
		Degraded: true,
	}
}

// Solve runs Inverse and falls back to Fallback when the target is
// unreachable.
func Solve(g ArmGeometry, target r3.Vector) Solution {
	sol, err := Inverse(g, target)
	if err != nil {
		return Fallback(g, target)
	}
	return sol
}

// Extremes returns the four workspace corners used to exercise the arm:
// maximum reach along x and y at base height and at full height.
func Extremes(g ArmGeometry) []r3.Vector {
	l := g.Links
	maxReach := l.A3 + l.Reach()
	zMin := l.A1
	zMax := l.A1 + l.A3 + l.Reach()
	return []r3.Vector{
		{X: maxReach, Y: 0, Z: zMin},
		{X: 0, Y: maxReach, Z: zMin},
		{X: maxReach, Y: 0, Z: zMax},
		{X: 0, Y: maxReach, Z: zMax},
	}
}
