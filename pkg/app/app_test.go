package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-armvision/internal/config"
	"github.com/teslashibe/go-armvision/pkg/robot"
)

func headlessConfig() config.Config {
	cfg := config.Default()
	cfg.Camera.Device = -1
	cfg.UseServer = false
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := headlessConfig()
	cfg.Controller = "pid"
	if _, err := New(cfg); !errors.Is(err, config.ErrUnknownController) {
		t.Errorf("Expected ErrUnknownController, got %v", err)
	}
}

func TestNewLaw(t *testing.T) {
	arm := robot.NewSimArm(robot.SimConfig{Joints: 3})

	cfg := headlessConfig()
	law, err := NewLaw(cfg, arm)
	if err != nil {
		t.Fatal(err)
	}
	if law.Name() != "screen" {
		t.Errorf("Expected screen law, got %s", law.Name())
	}

	cfg.Controller = config.ControllerCartesian
	law, err = NewLaw(cfg, arm)
	if err != nil {
		t.Fatal(err)
	}
	if law.Name() != "cartesian" {
		t.Errorf("Expected cartesian law, got %s", law.Name())
	}

	two := robot.NewSimArm(robot.SimConfig{Joints: 2})
	if _, err := NewLaw(cfg, two); !errors.Is(err, ErrTooFewJoints) {
		t.Errorf("Expected ErrTooFewJoints, got %v", err)
	}
}

func TestNewIdentifier(t *testing.T) {
	cfg := headlessConfig()
	id, err := NewIdentifier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(id.Labels()) == 0 {
		t.Error("Expected color labels")
	}

	cfg.Identifier = config.IdentifierYOLO
	cfg.ModelPath = "/nonexistent/model.onnx"
	if _, err := NewIdentifier(cfg); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestApp_InitRunShutdown(t *testing.T) {
	cfg := headlessConfig()
	cfg.TargetLabel = "Red object"

	a, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if a.tracker == nil || a.mover == nil {
		t.Fatal("Expected tracker and mover for a 3-joint sim")
	}
	if got := a.tracker.TargetLabel(); got != "Red object" {
		t.Errorf("Expected target label Red object, got %q", got)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	if !a.tracker.Running() {
		t.Error("Expected tracker running")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	a.Shutdown()
}
