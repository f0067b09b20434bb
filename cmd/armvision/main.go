// Arm Vision - visual-servoing tracker for a 3-joint camera arm
// Follows a labelled object with the screen or Cartesian control law
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-armvision/internal/config"
	"github.com/teslashibe/go-armvision/pkg/app"
)

func main() {
	cfg, noTrack := parseFlags()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	a.NoTrack = noTrack

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (config.Config, bool) {
	path := flag.String("config", config.DefaultPath, "Path to the JSON config file")
	hal := flag.String("hal", "", "Backend: sim, physical, remote, laptop")
	controller := flag.String("controller", "", "Control law: screen, cartesian")
	identifier := flag.String("identifier", "", "Identifier: color, face, yolo")
	model := flag.String("model", "", "ONNX model path for the face and yolo identifiers")
	target := flag.String("target", "", "Label to follow (empty follows the largest object)")
	port := flag.String("port", "", "Web API port")
	remote := flag.String("remote-host", "", "Remote arm host for the remote backend")
	noServer := flag.Bool("no-server", false, "Disable the web API")
	noTrack := flag.Bool("no-track", false, "Serve the arm without tracking")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("❌ Config: %v", err)
	}

	if *hal != "" {
		cfg.HAL = *hal
	}
	if *controller != "" {
		cfg.Controller = *controller
	}
	if *identifier != "" {
		cfg.Identifier = *identifier
	}
	if *model != "" {
		cfg.ModelPath = *model
	}
	if *target != "" {
		cfg.TargetLabel = *target
	}
	if *port != "" {
		cfg.ServerPort = *port
	}
	if *remote != "" {
		cfg.RemoteHost = *remote
	}
	if *noServer {
		cfg.UseServer = false
	}
	if *debug {
		cfg.LogLevel = "debug"
		cfg.Tracking.Verbose = true
	}
	return cfg, *noTrack
}
