package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"wristdisp/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// BasicAuthConfig holds HTTP Basic Auth credentials for the debug API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PanelConfig describes the display panel and how it is wired.
type PanelConfig struct {
	// Driver selects the panel implementation:
	//   - "st7789": real controller over SPI (periph.io)
	//   - "memory": in-memory GRAM, for development without hardware
	Driver string `yaml:"driver" json:"driver"`

	// Width and Height are the visible size in pixels.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// TotalLines is the controller GRAM height used as the scroll ring.
	// It must be >= Height; 320 for an ST7789.
	TotalLines int `yaml:"total_lines" json:"total_lines"`

	// SPIPort is the periph SPI port name ("" for the first port).
	SPIPort string `yaml:"spi_port" json:"spi_port"`
	// SPISpeedHz is the SPI clock.
	SPISpeedHz int64 `yaml:"spi_speed_hz" json:"spi_speed_hz"`

	// Pin names as known to periph's gpioreg (e.g. "GPIO25").
	DCPin        string `yaml:"dc_pin" json:"dc_pin"`
	ResetPin     string `yaml:"reset_pin" json:"reset_pin"`
	BacklightPin string `yaml:"backlight_pin" json:"backlight_pin"`

	// MADCTL is the ST7789 memory access control byte (rotation, BGR).
	MADCTL int `yaml:"madctl" json:"madctl"`
	// ColumnOffset/RowOffset place the glass inside GRAM.
	ColumnOffset int `yaml:"column_offset" json:"column_offset"`
	RowOffset    int `yaml:"row_offset" json:"row_offset"`
	// NoInvert leaves display inversion off (non-IPS glass).
	NoInvert bool `yaml:"no_invert" json:"no_invert"`
}

// TouchConfig describes the touch controller.
type TouchConfig struct {
	// Driver is one of "cst816s", "evdev", "mock" or "none".
	Driver string `yaml:"driver" json:"driver"`
	// I2CBus is the periph I2C bus name ("" for the default bus).
	I2CBus string `yaml:"i2c_bus" json:"i2c_bus"`
	// I2CAddr is the 7-bit controller address (0x15 for CST816S).
	I2CAddr int `yaml:"i2c_addr" json:"i2c_addr"`
	// EvdevPath is the input device; empty means autodetect.
	EvdevPath string `yaml:"evdev_path" json:"evdev_path"`
	// PollInterval is how often the controller is read.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// RenderConfig controls the graphics host loop.
type RenderConfig struct {
	// RefreshInterval is the host tick period.
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval"`
	// FlushTimeout bounds every panel operation made while flushing.
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
	// BufferLines is the draw buffer height in full-width lines.
	BufferLines int `yaml:"buffer_lines" json:"buffer_lines"`
}

// ScrollConfig enables the hardware-scroll transitions.
type ScrollConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// StripLines is the band height of the animated transitions.
	StripLines int `yaml:"strip_lines" json:"strip_lines"`
}

// TransitionConfig requests a full refresh on a cron schedule.
type TransitionConfig struct {
	// Schedule is a cron spec ("*/5 * * * *", "@every 1m").
	Schedule string `yaml:"schedule" json:"schedule"`
	// Direction is the transition to request ("down", "left_anim", ...).
	Direction model.Direction `yaml:"direction" json:"direction"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the debug API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Panel  PanelConfig  `yaml:"panel" json:"panel"`
	Touch  TouchConfig  `yaml:"touch" json:"touch"`
	Render RenderConfig `yaml:"render" json:"render"`
	Scroll ScrollConfig `yaml:"scroll" json:"scroll"`

	// Transitions are scheduled full refreshes.
	Transitions []TransitionConfig `yaml:"transitions" json:"transitions"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration: a 240x240
// memory panel with the mock touch reader, so a fresh install runs on any
// machine.
func DefaultConfig() *Config {
	c := &Config{
		Transitions: []TransitionConfig{},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	p := &c.Panel
	if p.Driver == "" {
		p.Driver = "memory"
	}
	if p.Width <= 0 {
		p.Width = 240
	}
	if p.Height <= 0 {
		p.Height = 240
	}
	if p.TotalLines <= 0 {
		p.TotalLines = 320
	}
	if p.SPISpeedHz <= 0 {
		p.SPISpeedHz = 40_000_000
	}
	if p.DCPin == "" {
		p.DCPin = "GPIO25"
	}

	t := &c.Touch
	if t.Driver == "" {
		t.Driver = "mock"
	}
	if t.I2CAddr == 0 {
		t.I2CAddr = 0x15
	}
	if t.PollInterval <= 0 {
		t.PollInterval = 20 * time.Millisecond
	}

	r := &c.Render
	if r.RefreshInterval <= 0 {
		r.RefreshInterval = 20 * time.Millisecond
	}
	if r.FlushTimeout <= 0 {
		r.FlushTimeout = 200 * time.Millisecond
	}
	if r.BufferLines <= 0 {
		r.BufferLines = 40
	}

	if c.Scroll.StripLines <= 0 {
		c.Scroll.StripLines = 4
	}
	if c.Transitions == nil {
		c.Transitions = []TransitionConfig{}
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel))
	}
	switch c.Panel.Driver {
	case "st7789", "memory":
	default:
		errs = append(errs, fmt.Errorf("panel.driver %q: want st7789 or memory", c.Panel.Driver))
	}
	if c.Panel.TotalLines < c.Panel.Height {
		errs = append(errs, fmt.Errorf("panel.total_lines %d is less than panel.height %d", c.Panel.TotalLines, c.Panel.Height))
	}
	if c.Panel.MADCTL < 0 || c.Panel.MADCTL > 0xFF {
		errs = append(errs, fmt.Errorf("panel.madctl %#x does not fit a byte", c.Panel.MADCTL))
	}
	switch c.Touch.Driver {
	case "cst816s", "evdev", "mock", "none":
	default:
		errs = append(errs, fmt.Errorf("touch.driver %q: want cst816s, evdev, mock or none", c.Touch.Driver))
	}
	if c.Touch.I2CAddr < 0 || c.Touch.I2CAddr > 0x7F {
		errs = append(errs, fmt.Errorf("touch.i2c_addr %#x is not a 7-bit address", c.Touch.I2CAddr))
	}
	if c.Render.BufferLines > c.Panel.Height {
		errs = append(errs, fmt.Errorf("render.buffer_lines %d exceeds panel.height %d", c.Render.BufferLines, c.Panel.Height))
	}
	if c.Scroll.StripLines > c.Panel.Height || c.Scroll.StripLines > c.Panel.Width {
		errs = append(errs, fmt.Errorf("scroll.strip_lines %d does not fit the panel", c.Scroll.StripLines))
	}
	for i, t := range c.Transitions {
		if t.Schedule == "" {
			errs = append(errs, fmt.Errorf("transitions[%d]: schedule is empty", i))
		}
		if t.Direction == model.None {
			errs = append(errs, fmt.Errorf("transitions[%d]: direction is required", i))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".wristdisp-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
