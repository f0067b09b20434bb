// Package config provides configuration loading for go-armvision commands.
//
// Settings live in a JSON file merged over defaults. Keys missing from the
// file are filled in and the file is rewritten, so new settings appear in
// existing installs. Environment variables override the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-armvision/pkg/camera"
	"github.com/teslashibe/go-armvision/pkg/kinematics"
	"github.com/teslashibe/go-armvision/pkg/tracking"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.json"

// Backend kinds.
const (
	HALSim      = "sim"
	HALPhysical = "physical"
	HALRemote   = "remote"
	HALLaptop   = "laptop"
)

// Controller kinds.
const (
	ControllerScreen    = "screen"
	ControllerCartesian = "cartesian"
)

// Identifier kinds.
const (
	IdentifierColor = "color"
	IdentifierFace  = "face"
	IdentifierYOLO  = "yolo"
)

var (
	// ErrUnknownHAL is returned for an unsupported backend kind.
	ErrUnknownHAL = errors.New("config: unknown hal")
	// ErrUnknownController is returned for an unsupported controller kind.
	ErrUnknownController = errors.New("config: unknown controller")
	// ErrUnknownIdentifier is returned for an unsupported identifier kind.
	ErrUnknownIdentifier = errors.New("config: unknown identifier")
)

// Tracking is the file form of tracking.Config.
type Tracking struct {
	SensingHz     float64 `json:"sensing_hz"`
	ControlHz     float64 `json:"control_hz"`
	Gain          float64 `json:"gain"`
	Smoothness    float64 `json:"smoothness"`
	Tolerance     float64 `json:"tolerance"`
	DriveReach    bool    `json:"drive_reach"`
	DesiredRadius float64 `json:"desired_radius"`
	ReachRange    float64 `json:"reach_range"`
	ReferenceSize float64 `json:"reference_size"`
	Verbose       bool    `json:"verbose"`
}

// Config is the process configuration.
type Config struct {
	HAL        string `json:"hal"`
	RemoteHost string `json:"remote_host"`
	RemotePort string `json:"remote_port"`
	SerialPort string `json:"serial_port"`
	SerialBaud int    `json:"serial_baud"`

	UseServer  bool   `json:"use_server"`
	ServerPort string `json:"server_port"`
	LogLevel   string `json:"log_level"`

	Controller  string `json:"controller"`
	Identifier  string `json:"identifier"`
	ModelPath   string `json:"model_path"`
	TargetLabel string `json:"target_label"`

	Camera   camera.Config          `json:"camera"`
	Geometry kinematics.ArmGeometry `json:"geometry"`
	Tracking Tracking               `json:"tracking"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	t := tracking.DefaultConfig()
	return Config{
		HAL:        HALSim,
		RemoteHost: "localhost",
		RemotePort: "8090",
		SerialPort: "/dev/ttyUSB0",
		SerialBaud: 115200,

		UseServer:  true,
		ServerPort: "8090",
		LogLevel:   "info",

		Controller: ControllerScreen,
		Identifier: IdentifierColor,

		Camera:   camera.DefaultConfig(),
		Geometry: kinematics.DefaultGeometry(),
		Tracking: Tracking{
			SensingHz:     hz(t.SensingInterval),
			ControlHz:     hz(t.ControlInterval),
			Gain:          t.Gain,
			Smoothness:    t.Smoothness,
			Tolerance:     t.Tolerance,
			DriveReach:    t.DriveReach,
			DesiredRadius: t.DesiredRadius,
			ReachRange:    t.ReachRange,
			ReferenceSize: t.ReferenceSize,
		},
	}
}

// Load reads path over the defaults, rewrites the file if keys were
// missing, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		missing, err := missingKeys(data, cfg)
		if err != nil {
			return cfg, err
		}
		if len(missing) > 0 {
			fmt.Printf("📝 Config updated with new keys %v, saving %s\n", missing, path)
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
		}
	}

	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Read is Load without writing: a missing file yields the defaults and
// missing keys are filled in memory only.
func Read(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg as indented JSON.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// missingKeys lists top-level keys of cfg absent from the raw file.
func missingKeys(raw []byte, cfg Config) ([]string, error) {
	var have map[string]json.RawMessage
	if err := json.Unmarshal(raw, &have); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	full, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var want map[string]json.RawMessage
	if err := json.Unmarshal(full, &want); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	var missing []string
	for k := range want {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// ApplyEnv overrides cfg from ARM_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("ARM_HAL"); v != "" {
		cfg.HAL = strings.ToLower(v)
	}
	if v := os.Getenv("ARM_REMOTE_HOST"); v != "" {
		cfg.RemoteHost = v
	}
	if v := os.Getenv("ARM_SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("ARM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ARM_SERVER_PORT"); v != "" {
		cfg.ServerPort = v
	}
	if v := os.Getenv("ARM_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Device = n
		}
	}
}

// Validate checks kinds, geometry and tracking values.
func (c Config) Validate() error {
	var errs []error

	switch c.HAL {
	case HALSim, HALPhysical, HALRemote, HALLaptop:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownHAL, c.HAL))
	}
	switch c.Controller {
	case ControllerScreen, ControllerCartesian:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownController, c.Controller))
	}
	switch c.Identifier {
	case IdentifierColor, IdentifierFace, IdentifierYOLO:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownIdentifier, c.Identifier))
	}

	if err := c.Geometry.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.TrackingConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Camera.Enabled() {
		if v := c.Camera.Validate(); len(v) > 0 {
			errs = append(errs, fmt.Errorf("camera: %s", strings.Join(v, "; ")))
		}
	}
	return errors.Join(errs...)
}

// TrackingConfig converts the file form into tracking.Config.
func (c Config) TrackingConfig() tracking.Config {
	t := tracking.DefaultConfig()
	t.SensingInterval = interval(c.Tracking.SensingHz)
	t.ControlInterval = interval(c.Tracking.ControlHz)
	t.Gain = c.Tracking.Gain
	t.Smoothness = c.Tracking.Smoothness
	t.Tolerance = c.Tracking.Tolerance
	t.DriveReach = c.Tracking.DriveReach
	t.DesiredRadius = c.Tracking.DesiredRadius
	t.ReachRange = c.Tracking.ReachRange
	t.ReferenceSize = c.Tracking.ReferenceSize
	t.Verbose = c.Tracking.Verbose
	return t
}

// RemoteURL returns the base URL of the remote arm server.
func (c Config) RemoteURL() string {
	return fmt.Sprintf("http://%s:%s", c.RemoteHost, c.RemotePort)
}

func hz(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return 1 / d.Seconds()
}

func interval(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}
