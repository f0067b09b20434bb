package tracking

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/teslashibe/go-armvision/internal/log"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
	"github.com/teslashibe/go-armvision/pkg/robot"
	"github.com/teslashibe/go-armvision/pkg/tracking/detection"
)

const (
	metersPerCM = 0.01
	cmPerMeter  = 100.0
)

// CartesianLaw reconstructs the target's 3-D position from its apparent
// size and screen offset, then solves for joint angles.
type CartesianLaw struct {
	geometry kinematics.ArmGeometry
	servo    kinematics.ServoMap
	smoother *MotionSmoother
	focal    func() float64
	logger   *slog.Logger

	lastSeq uint64
	seen    bool
}

// NewCartesianLaw creates a law for the given geometry. halFocal is
// consulted only when the geometry's focal source is "hal".
func NewCartesianLaw(g kinematics.ArmGeometry, smoothness float64, halFocal func() float64) *CartesianLaw {
	l := &CartesianLaw{
		geometry: g,
		smoother: NewMotionSmoother(smoothness),
		logger:   log.Component("cartesian"),
	}
	l.focal = g.Camera.FocalPixels
	if g.Camera.FocalSource == kinematics.FocalFromHAL && halFocal != nil {
		l.focal = halFocal
	}
	return l
}

func (l *CartesianLaw) Name() string { return "cartesian" }

// Step acts once per detection; repeated ticks on the same snapshot
// produce no command.
func (l *CartesianLaw) Step(tick Tick, arm robot.JointController, cfg Config) ([]Command, error) {
	if l.seen && tick.Seq == l.lastSeq {
		return nil, nil
	}
	l.lastSeq, l.seen = tick.Seq, true

	measured := make([]float64, 3)
	for j := range measured {
		measured[j] = arm.Joint(j)
	}

	target, err := l.Target(tick.Target, measured, cfg.ReferenceSize)
	if err != nil {
		return nil, err
	}

	sol, err := kinematics.Inverse(l.geometry, target)
	if errors.Is(err, kinematics.ErrUnreachable) {
		sol = kinematics.Fallback(l.geometry, target)
		l.logger.Warn("target unreachable, degraded mode",
			"x", target.X, "y", target.Y, "z", target.Z,
			"base", sol.Base, "shoulder", sol.Shoulder)
	}

	l.smoother.SetSmoothness(cfg.Smoothness)
	servo := l.servo.ToServo(sol)
	cmds := make([]Command, len(servo))
	for j, angle := range servo {
		cmds[j] = Command{Joint: j, Angle: l.smoother.Smooth(j, angle, measured[j])}
	}
	return cmds, nil
}

func (l *CartesianLaw) Reset() {
	l.seen = false
	l.smoother.Reset()
}

// Target returns the absolute target position in cm: the end effector
// position for the measured joint angles plus the back-projected offset.
func (l *CartesianLaw) Target(obj detection.Object, measured []float64, refSize float64) (r3.Vector, error) {
	offset, err := BackProject(l.geometry.Camera, l.focal(), refSize, obj, measured)
	if err != nil {
		return r3.Vector{}, err
	}

	fk := kinematics.Forward(l.geometry, l.servo.FromServo(measured)).End().Mul(metersPerCM)
	merged := r3.Vector{
		X: fk.X + offset.X,
		Y: fk.Y - offset.Y,
		Z: fk.Z + offset.Z,
	}
	return merged.Mul(cmPerMeter), nil
}

// BackProject turns a detection into an offset in meters in the arm's
// base orientation, with y flipped. measured holds the backend joint
// angles in degrees.
func BackProject(cam kinematics.CameraCalibration, focal, refSize float64, obj detection.Object, measured []float64) (r3.Vector, error) {
	if obj.Radius <= 0 || focal <= 0 {
		return r3.Vector{}, fmt.Errorf("%w: radius=%v focal=%v", ErrInvalidFrame, obj.Radius, focal)
	}

	distance := focal * refSize / (2 * obj.Radius)

	ex, ey := ScreenError(Tick{Target: obj})
	xOff := math.Tan(ex/focal) * distance
	yOff := -math.Tan(ey/focal) * distance

	radicand := distance*distance - xOff*xOff - yOff*yOff
	if radicand < 0 {
		return r3.Vector{}, fmt.Errorf("%w: negative depth radicand %v", ErrInvalidFrame, radicand)
	}
	depth := math.Sqrt(radicand)

	joint := func(i int) float64 {
		if i < len(measured) {
			return kinematics.Radians(measured[i])
		}
		return 0
	}
	rx := rotX(-kinematics.Radians(cam.MountTilt))
	ry := rotY(-joint(kinematics.JointShoulder) - joint(kinematics.JointElbow))
	rz := rotZ(joint(kinematics.JointBase))

	// Undo the shoulder and elbow rotation, shift by the camera mount,
	// then undo base yaw and camera tilt together.
	v := mat.NewVecDense(3, []float64{xOff, yOff, depth})
	step, err := solveRotation(ry, v)
	if err != nil {
		return r3.Vector{}, err
	}
	step.SetVec(1, step.AtVec(1)+cam.MountOffsetY)
	step.SetVec(2, step.AtVec(2)+cam.MountOffsetZ)

	var baseTilt mat.Dense
	baseTilt.Mul(rx, rz)
	out, err := solveRotation(&baseTilt, step)
	if err != nil {
		return r3.Vector{}, err
	}

	return r3.Vector{X: out.AtVec(0), Y: -out.AtVec(1), Z: out.AtVec(2)}, nil
}

// solveRotation returns inv(r) * v.
func solveRotation(r mat.Matrix, v mat.Vector) (*mat.VecDense, error) {
	var inv mat.Dense
	if err := inv.Inverse(r); err != nil {
		return nil, fmt.Errorf("invert rotation: %w", err)
	}
	var out mat.VecDense
	out.MulVec(&inv, v)
	return &out, nil
}

func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func rotY(b float64) *mat.Dense {
	c, s := math.Cos(b), math.Sin(b)
	return mat.NewDense(3, 3, []float64{
		c, 0, -s,
		0, 1, 0,
		s, 0, c,
	})
}

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
	})
}
