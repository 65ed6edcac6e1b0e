package motor

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/banshee-data/rumble/internal/fsutil"
)

// Config is the on-disk schema of a per-axis configuration file. The
// schema is strict: the four clock/pin keys are mandatory, the rest are
// optional, and any other key is rejected so a typo cannot silently
// drop a limit or calibration.
type Config struct {
	ClockRoll    int64    `json:"clock_roll"`
	ClockDivisor int64    `json:"clock_divisor"`
	DirPin       int      `json:"dir_pin"`
	PulsePin     int      `json:"pulse_pin"`
	HomePin      *int     `json:"home_pin,omitempty"`
	Invert       *bool    `json:"invert,omitempty"`
	CalSlope     *float64 `json:"cal_slope,omitempty"`
	CalZero      *float64 `json:"cal_zero,omitempty"`
	CalUnits     *string  `json:"cal_units,omitempty"`
	LimUpper     *int64   `json:"lim_upper,omitempty"`
	LimLower     *int64   `json:"lim_lower,omitempty"`
}

var configMandatoryKeys = []string{"clock_roll", "clock_divisor", "dir_pin", "pulse_pin"}

var configAllowedKeys = map[string]bool{
	"clock_roll":    true,
	"clock_divisor": true,
	"dir_pin":       true,
	"pulse_pin":     true,
	"home_pin":      true,
	"invert":        true,
	"cal_slope":     true,
	"cal_zero":      true,
	"cal_units":     true,
	"lim_upper":     true,
	"lim_lower":     true,
}

// ParseConfig decodes and validates a configuration file body.
func ParseConfig(data []byte) (Config, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var illegal []string
	for key := range raw {
		if !configAllowedKeys[key] {
			illegal = append(illegal, key)
		}
	}
	if len(illegal) > 0 {
		sort.Strings(illegal)
		return Config{}, fmt.Errorf("illegal configuration parameters: %v", illegal)
	}

	var missing []string
	for _, key := range configMandatoryKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing mandatory parameters: %v", missing)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the decoded values for physical sense.
func (c Config) Validate() error {
	if c.ClockRoll <= 0 {
		return fmt.Errorf("clock_roll must be positive, got %d", c.ClockRoll)
	}
	if c.ClockDivisor <= 0 {
		return fmt.Errorf("clock_divisor must be positive, got %d", c.ClockDivisor)
	}
	if c.DirPin < 0 {
		return fmt.Errorf("dir_pin must be non-negative, got %d", c.DirPin)
	}
	if c.PulsePin < 0 {
		return fmt.Errorf("pulse_pin must be non-negative, got %d", c.PulsePin)
	}
	if c.CalSlope != nil && *c.CalSlope <= 0 {
		return fmt.Errorf("cal_slope must be positive, got %v", *c.CalSlope)
	}
	if c.LimUpper != nil && c.LimLower != nil && *c.LimLower > *c.LimUpper {
		return fmt.Errorf("lim_lower %d above lim_upper %d", *c.LimLower, *c.LimUpper)
	}
	return nil
}

// Encode renders the configuration in the file format.
func (c Config) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadConfig loads and validates a configuration file.
func ReadConfig(fsys fsutil.FileSystem, path string) (Config, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyConfig installs a configuration on the motor: pins, cached clock
// values, calibration, limits, and direction inversion. No device IO
// happens here; call SetClock/SetPins (or let the rig loader do it) to
// push the settings to hardware.
func (m *Motor) ApplyConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pins = Pins{Dir: cfg.DirPin, Pulse: cfg.PulsePin, Home: -1}
	if cfg.HomePin != nil {
		m.pins.Home = *cfg.HomePin
	}
	m.clockRoll = cfg.ClockRoll
	m.clockDivisor = cfg.ClockDivisor

	if cfg.Invert != nil {
		m.invert = *cfg.Invert
	}
	if cfg.CalSlope != nil {
		m.cal.Slope = *cfg.CalSlope
	}
	if cfg.CalZero != nil {
		m.cal.Zero = *cfg.CalZero
	}
	if cfg.CalUnits != nil {
		m.cal.Units = *cfg.CalUnits
	}
	m.limUpper = cloneLimit(cfg.LimUpper)
	m.limLower = cloneLimit(cfg.LimLower)
	return nil
}

func cloneLimit(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// LoadConfig reads a configuration file and applies it to the motor.
func (m *Motor) LoadConfig(fsys fsutil.FileSystem, path string) error {
	cfg, err := ReadConfig(fsys, path)
	if err != nil {
		return err
	}
	return m.ApplyConfig(cfg)
}

// Config snapshots the motor state in the file schema. Optional keys
// are present only when they differ from their defaults, so a freshly
// constructed axis round-trips to a minimal file.
func (m *Motor) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Config{
		ClockRoll:    m.clockRoll,
		ClockDivisor: m.clockDivisor,
		DirPin:       m.pins.Dir,
		PulsePin:     m.pins.Pulse,
	}
	if m.pins.Home >= 0 {
		home := m.pins.Home
		cfg.HomePin = &home
	}
	if m.invert {
		inv := true
		cfg.Invert = &inv
	}
	if m.cal.Slope != 1 || m.cal.Zero != 0 || m.cal.Units != "counts" {
		slope, zero, units := m.cal.Slope, m.cal.Zero, m.cal.Units
		cfg.CalSlope = &slope
		cfg.CalZero = &zero
		cfg.CalUnits = &units
	}
	cfg.LimUpper = cloneLimit(m.limUpper)
	cfg.LimLower = cloneLimit(m.limLower)
	return cfg
}

// SaveConfig writes the motor's current configuration to a file.
func (m *Motor) SaveConfig(fsys fsutil.FileSystem, path string) error {
	data, err := m.Config().Encode()
	if err != nil {
		return fmt.Errorf("%s: %w", m.name, err)
	}
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%s: save config %s: %w", m.name, path, err)
	}
	return nil
}
