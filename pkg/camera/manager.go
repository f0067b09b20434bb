package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownPreset is returned for a preset name not in Presets.
var ErrUnknownPreset = errors.New("camera: unknown preset")

// Manager holds the live camera configuration. Updates are validated and
// applied to the device before they become current.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnConfigChange applies a new config to the capture device. When it
	// fails the previous config stays current.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with the given config.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig validates cfg, applies it and makes it current.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid camera config: %s", strings.Join(problems, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("apply camera config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// ApplyPreset switches to a named preset.
func (m *Manager) ApplyPreset(name string) error {
	preset := GetPreset(name)
	if preset == nil {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return m.SetConfig(*preset)
}

// UpdateConfig merges params over the current config using the JSON field
// names. A "preset" key selects the base config before the other fields
// are merged. Unknown keys are ignored.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	if name, ok := params["preset"].(string); ok {
		preset := GetPreset(name)
		if preset == nil {
			return fmt.Errorf("%w: %q", ErrUnknownPreset, name)
		}
		cfg = *preset
	}

	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k != "preset" {
			fields[k] = v
		}
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode camera update: %w", err)
	}
	if err := json.Unmarshal(patch, &cfg); err != nil {
		return fmt.Errorf("invalid camera update: %w", err)
	}
	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config keyed by JSON field name.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	data, err := json.Marshal(m.GetConfig())
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
