package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

const angleTol = 1e-3

func TestForward_ZeroAngles(t *testing.T) {
	g := DefaultGeometry()
	pose := Forward(g, []float64{0, 0, 0})

	if len(pose.Joints) != 5 {
		t.Fatalf("Expected 5 joint origins, got %d", len(pose.Joints))
	}
	if pose.Joints[0] != (r3.Vector{}) {
		t.Errorf("Expected base origin at zero, got %v", pose.Joints[0])
	}
	if math.Abs(pose.Joints[1].Z-g.Links.A1) > 1e-9 {
		t.Errorf("Expected shoulder at height a1, got %v", pose.Joints[1])
	}

	// Upper arm horizontal, forearm hanging straight down.
	want := r3.Vector{X: g.Links.A3, Y: 0, Z: g.Links.A1 - g.Links.Reach()}
	if pose.End().Sub(want).Norm() > 1e-9 {
		t.Errorf("Expected end effector at %v, got %v", want, pose.End())
	}
	if math.Abs(pose.Forward.Z+1) > 1e-9 {
		t.Errorf("Expected forward vector pointing down, got %v", pose.Forward)
	}
}

func TestForward_MissingAnglesAreZero(t *testing.T) {
	g := DefaultGeometry()
	a := Forward(g, nil).End()
	b := Forward(g, []float64{0, 0, 0}).End()
	if a.Sub(b).Norm() > 1e-12 {
		t.Errorf("Expected nil angles to equal zeros, got %v vs %v", a, b)
	}
}

func TestInverse_RoundTrip(t *testing.T) {
	g := DefaultGeometry()

	tests := [][]float64{
		{0, 60, 0},
		{30, 80, 20},
		{-45, 60, 0},
		{120, 80, 20},
		{0, 70, 10},
	}

	for _, angles := range tests {
		target := Forward(g, angles).End()
		sol, err := Inverse(g, target)
		if err != nil {
			t.Errorf("angles %v: expected solution for %v, got %v", angles, target, err)
			continue
		}
		got := sol.Angles()
		for i := range angles {
			if math.Abs(got[i]-angles[i]) > angleTol {
				t.Errorf("angles %v: joint %d expected %.4f, got %.4f", angles, i, angles[i], got[i])
			}
		}
		if sol.Degraded {
			t.Errorf("angles %v: expected exact solution, got degraded", angles)
		}
	}
}

func TestInverse_Unreachable(t *testing.T) {
	g := DefaultGeometry()

	tests := []r3.Vector{
		{X: 1000, Y: 0, Z: 1000},
		{X: 0, Y: 0, Z: -5},
		{X: 0, Y: 0, Z: g.Links.A1 + 1}, // inside the upper arm radius
		{X: 100, Y: 0, Z: 5},
	}

	for _, target := range tests {
		sol, err := Inverse(g, target)
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("%v: expected ErrUnreachable, got %v (%+v)", target, err, sol)
		}
	}
}

func TestInverse_KnownReachable(t *testing.T) {
	g := DefaultGeometry()
	target := r3.Vector{X: 0, Y: 10, Z: 5}

	sol, err := Inverse(g, target)
	if err != nil {
		t.Fatalf("Expected solution, got %v", err)
	}
	for i, a := range sol.Angles() {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			t.Errorf("joint %d: expected finite angle, got %v", i, a)
		}
	}
	if math.Abs(sol.Base-90) > angleTol {
		t.Errorf("Expected base yaw 90, got %.4f", sol.Base)
	}

	end := Forward(g, sol.Angles()).End()
	if end.Sub(target).Norm() > 1e-6 {
		t.Errorf("Expected FK to return %v, got %v", target, end)
	}
}

func TestInverse_VerticalTarget(t *testing.T) {
	g := DefaultGeometry()
	target := r3.Vector{X: 0, Y: 0, Z: 40}

	if !Reachable(g, target) {
		t.Fatal("Expected (0,0,40) to be reachable")
	}

	sol, err := Inverse(g, target)
	if err != nil {
		t.Fatalf("Expected solution, got %v", err)
	}
	if sol.Base != 0 {
		t.Errorf("Expected base yaw 0 on the vertical axis, got %v", sol.Base)
	}
	if math.Abs(sol.Shoulder-112.2575) > 1e-3 {
		t.Errorf("Expected shoulder near 112.26, got %.4f", sol.Shoulder)
	}
	if math.Abs(sol.Elbow-52.9481) > 1e-3 {
		t.Errorf("Expected elbow near 52.95, got %.4f", sol.Elbow)
	}

	end := Forward(g, sol.Angles()).End()
	if end.Sub(target).Norm() > 0.5 {
		t.Errorf("Expected FK within 0.5cm of %v, got %v", target, end)
	}
}

func TestFallback(t *testing.T) {
	g := DefaultGeometry()

	tests := []struct {
		name     string
		target   r3.Vector
		base     float64
		shoulder float64
	}{
		{"vertical axis", r3.Vector{X: 0, Y: 0, Z: 100}, 0, 90},
		{"level with shoulder", r3.Vector{X: 0, Y: 50, Z: g.Links.A1}, 90, 0},
		{"45 degrees up", r3.Vector{X: 50, Y: 0, Z: g.Links.A1 + 50}, 0, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol := Fallback(g, tt.target)
			if !sol.Degraded {
				t.Error("Expected degraded solution")
			}
			if math.Abs(sol.Base-tt.base) > angleTol {
				t.Errorf("Expected base %.2f, got %.4f", tt.base, sol.Base)
			}
			if math.Abs(sol.Shoulder-tt.shoulder) > angleTol {
				t.Errorf("Expected shoulder %.2f, got %.4f", tt.shoulder, sol.Shoulder)
			}
			if sol.Elbow != 0 {
				t.Errorf("Expected neutral elbow, got %v", sol.Elbow)
			}
		})
	}
}

func TestSolve_FallsBack(t *testing.T) {
	g := DefaultGeometry()

	sol := Solve(g, r3.Vector{X: 1000, Y: 0, Z: 1000})
	if !sol.Degraded {
		t.Error("Expected Solve to fall back for an unreachable target")
	}

	sol = Solve(g, r3.Vector{X: 0, Y: 0, Z: 40})
	if sol.Degraded {
		t.Error("Expected exact solution for a reachable target")
	}
}

func TestExtremes(t *testing.T) {
	g := DefaultGeometry()
	pts := Extremes(g)
	if len(pts) != 4 {
		t.Fatalf("Expected 4 points, got %d", len(pts))
	}
	for _, p := range pts {
		sol := Solve(g, p)
		for i, a := range sol.Angles() {
			if math.IsNaN(a) {
				t.Errorf("%v joint %d: NaN angle", p, i)
			}
		}
	}
}

func TestGeometry_Validate(t *testing.T) {
	g := DefaultGeometry()
	if err := g.Validate(); err != nil {
		t.Fatalf("Expected default geometry to be valid, got %v", err)
	}

	bad := DefaultGeometry()
	bad.Links.A3 = 0
	bad.Limits = []JointLimit{{Min: 10, Max: 5}}
	bad.Camera.FocalSource = "guess"
	if err := bad.Validate(); err == nil {
		t.Error("Expected validation errors")
	}
}

func TestGeometry_LimitDefaults(t *testing.T) {
	g := DefaultGeometry()
	if l := g.Limit(1); l.Max != 90 {
		t.Errorf("Expected shoulder max 90, got %v", l.Max)
	}
	if l := g.Limit(7); l != DefaultJointLimit {
		t.Errorf("Expected default limit for unconfigured joint, got %v", l)
	}
	if got := g.Limit(0).Clamp(300); got != 270 {
		t.Errorf("Expected clamp to 270, got %v", got)
	}
}

func TestCameraCalibration_FocalPixels(t *testing.T) {
	c := DefaultGeometry().Camera

	fov := c.FocalPixelsFromFOV()
	want := 1257 / (2 * math.Tan(math.Pi/6))
	if math.Abs(fov-want) > 1e-9 {
		t.Errorf("Expected FOV focal %.3f, got %.3f", want, fov)
	}

	lens := c.FocalPixelsFromLens()
	if math.Abs(lens-1319.85) > 1e-6 {
		t.Errorf("Expected lens focal 1319.85, got %.3f", lens)
	}

	if c.FocalPixels() != fov {
		t.Error("Expected FOV to be the default focal source")
	}
	c.FocalSource = FocalFromLens
	if c.FocalPixels() != lens {
		t.Error("Expected lens focal when configured")
	}
}

func TestServoMap(t *testing.T) {
	var m ServoMap

	servo := m.ToServo(Solution{Base: 0, Shoulder: 60, Elbow: 20})
	want := []float64{180, 30, 70}
	for i := range want {
		if math.Abs(servo[i]-want[i]) > 1e-9 {
			t.Errorf("joint %d: expected %v, got %v", i, want[i], servo[i])
		}
	}

	if got := m.ToServo(Solution{Base: -170})[0]; math.Abs(got-10) > 1e-9 {
		t.Errorf("Expected base wrapped to 10, got %v", got)
	}
	if got := m.ToServo(Solution{Base: 270})[0]; math.Abs(got-90) > 1e-9 {
		t.Errorf("Expected base wrapped to 90, got %v", got)
	}

	if got := m.ToServo(Solution{Elbow: 30, Degraded: true})[2]; got != 0 {
		t.Errorf("Expected degraded elbow command 0, got %v", got)
	}

	sol := Solution{Base: -45, Shoulder: 70, Elbow: 10}
	back := m.FromServo(m.ToServo(sol))
	for i, a := range sol.Angles() {
		if math.Abs(back[i]-a) > 1e-9 {
			t.Errorf("joint %d: expected %v after round trip, got %v", i, a, back[i])
		}
	}
}
