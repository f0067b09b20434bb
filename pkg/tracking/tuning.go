package tracking

import "time"

// TuningParams holds the real-time adjustable tracking parameters.
// These can be modified via the tuning API without restarting the tracker.
type TuningParams struct {
	// Control law
	Gain       float64 `json:"gain"`       // Pixel error to degrees gain
	Smoothness float64 `json:"smoothness"` // k in exp(-k)
	Tolerance  float64 `json:"tolerance"`  // Dead band (px)

	// Reach
	DesiredRadius float64 `json:"desired_radius"` // Apparent radius to hold (px)
	DriveReach    *bool   `json:"drive_reach,omitempty"`

	// Sensing rate
	SensingHz float64 `json:"sensing_hz"` // Frames identified per second (1-60 Hz)

	// Logging
	Verbose *bool `json:"verbose,omitempty"`
}

// GetTuningParams returns current tuning parameters from the tracker.
func (t *Tracker) GetTuningParams() TuningParams {
	t.mu.RLock()
	defer t.mu.RUnlock()

	driveReach := t.config.DriveReach
	verbose := t.config.Verbose
	return TuningParams{
		Gain:          t.config.Gain,
		Smoothness:    t.config.Smoothness,
		Tolerance:     t.config.Tolerance,
		DesiredRadius: t.config.DesiredRadius,
		DriveReach:    &driveReach,
		SensingHz:     1.0 / t.config.SensingInterval.Seconds(),
		Verbose:       &verbose,
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only positive values and non-nil flags are applied, so every tunable
// stays strictly positive.
func (t *Tracker) SetTuningParams(params TuningParams) {
	t.mu.Lock()
	if params.Gain > 0 {
		t.config.Gain = params.Gain
	}
	if params.Smoothness > 0 {
		t.config.Smoothness = params.Smoothness
	}
	if params.Tolerance > 0 {
		t.config.Tolerance = params.Tolerance
	}
	if params.DesiredRadius > 0 {
		t.config.DesiredRadius = params.DesiredRadius
	}
	if params.DriveReach != nil {
		t.config.DriveReach = *params.DriveReach
	}
	if params.Verbose != nil {
		t.config.Verbose = *params.Verbose
	}
	t.mu.Unlock()

	// Sensing rate (handled outside lock via channel)
	if params.SensingHz > 0 {
		t.setSensingHz(params.SensingHz)
	}
}

// setSensingHz updates the sensing rate at runtime.
// Valid range: 1-60 Hz
func (t *Tracker) setSensingHz(hz float64) {
	hz = clamp(hz, 1, 60)
	interval := time.Duration(float64(time.Second) / hz)

	t.mu.Lock()
	t.config.SensingInterval = interval
	t.mu.Unlock()

	// Send to the ticker reset channel (non-blocking)
	select {
	case t.sensingReset <- interval:
	default:
		// Channel full, skip (previous update still pending)
	}
}
