// armik - offline forward/inverse kinematics calculator for the arm
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/teslashibe/go-armvision/internal/config"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
)

func main() {
	path := flag.String("config", config.DefaultPath, "Path to the JSON config file (geometry)")
	fk := flag.String("fk", "", "Kinematic angles base,shoulder,elbow in degrees")
	servo := flag.String("servo", "", "Servo angles base,shoulder,elbow in degrees")
	ik := flag.String("ik", "", "Target x,y,z in centimeters")
	extremes := flag.Bool("extremes", false, "Solve the four workspace corners")
	flag.Parse()

	cfg, err := config.Read(*path)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}
	g := cfg.Geometry
	var servoMap kinematics.ServoMap

	fmt.Printf("📐 Links: a1=%.2f a2=%.2f a3=%.2f a4=%.2f a5=%.2f a6=%.2f (reach %.2f cm)\n",
		g.Links.A1, g.Links.A2, g.Links.A3, g.Links.A4, g.Links.A5, g.Links.A6, g.Links.Reach())

	ran := false
	if *fk != "" {
		angles := mustTriple("fk", *fk)
		printForward(g, angles)
		ran = true
	}
	if *servo != "" {
		angles := servoMap.FromServo(mustTriple("servo", *servo))
		fmt.Printf("🔁 Servo %s -> kinematic %s\n", *servo, formatAngles(angles))
		printForward(g, angles)
		ran = true
	}
	if *ik != "" {
		t := mustTriple("ik", *ik)
		printInverse(g, servoMap, r3.Vector{X: t[0], Y: t[1], Z: t[2]})
		ran = true
	}
	if *extremes {
		for _, p := range kinematics.Extremes(g) {
			printInverse(g, servoMap, p)
		}
		ran = true
	}
	if !ran {
		flag.Usage()
	}
}

func printForward(g kinematics.ArmGeometry, angles []float64) {
	pose := kinematics.Forward(g, angles)
	fmt.Printf("➡️  FK %s\n", formatAngles(angles))
	for i, p := range pose.Joints {
		fmt.Printf("    joint %d: %s\n", i, formatPoint(p))
	}
	fmt.Printf("    end:     %s  facing %s\n", formatPoint(pose.End()), formatPoint(pose.Forward))
}

func printInverse(g kinematics.ArmGeometry, servoMap kinematics.ServoMap, target r3.Vector) {
	fmt.Printf("🎯 IK %s\n", formatPoint(target))
	sol, err := kinematics.Inverse(g, target)
	if err != nil {
		sol = kinematics.Fallback(g, target)
		fmt.Printf("    ⚠️  %v, fallback %s\n", err, formatAngles(sol.Angles()))
	} else {
		fmt.Printf("    ✅ kinematic %s\n", formatAngles(sol.Angles()))
	}
	fmt.Printf("    servo %s\n", formatAngles(servoMap.ToServo(sol)))

	got := kinematics.Forward(g, sol.Angles()).End()
	fmt.Printf("    check %s (error %.3f cm)\n", formatPoint(got), got.Sub(target).Norm())
}

func mustTriple(name, s string) []float64 {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		log.Fatalf("❌ -%s wants three comma-separated values, got %q", name, s)
	}
	out := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			log.Fatalf("❌ -%s: %v", name, err)
		}
		out[i] = v
	}
	return out
}

func formatAngles(a []float64) string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = fmt.Sprintf("%.2f°", v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatPoint(p r3.Vector) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}
