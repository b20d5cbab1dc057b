package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wristdisp/internal/model"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Panel.Driver != "memory" || cfg.Touch.Driver != "mock" || cfg.Scroll.Enabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Render != cfg.Render || again.Panel != cfg.Panel {
		t.Errorf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log_level: debug
panel:
  driver: st7789
  madctl: 0x00
  dc_pin: GPIO24
touch:
  driver: cst816s
  i2c_addr: 0x15
  poll_interval: 15ms
render:
  flush_timeout: 1s
scroll:
  enabled: true
  strip_lines: 8
transitions:
  - schedule: "@every 1m"
    direction: left-anim
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Panel.Driver != "st7789" || cfg.Panel.DCPin != "GPIO24" || cfg.Panel.Width != 240 {
		t.Errorf("panel = %+v", cfg.Panel)
	}
	if cfg.Touch.PollInterval != 15*time.Millisecond || cfg.Touch.I2CAddr != 0x15 {
		t.Errorf("touch = %+v", cfg.Touch)
	}
	if cfg.Render.FlushTimeout != time.Second || cfg.Render.RefreshInterval != 20*time.Millisecond {
		t.Errorf("render = %+v", cfg.Render)
	}
	if !cfg.Scroll.Enabled || cfg.Scroll.StripLines != 8 {
		t.Errorf("scroll = %+v", cfg.Scroll)
	}
	if len(cfg.Transitions) != 1 || cfg.Transitions[0].Direction != model.LeftAnim {
		t.Errorf("transitions = %+v", cfg.Transitions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadRejectsBadDirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "transitions:\n  - schedule: \"@hourly\"\n    direction: sideways\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("unknown direction accepted")
	}
}

func TestSaveRoundTripKeepsDurationsReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Transitions = append(cfg.Transitions, TransitionConfig{Schedule: "*/5 * * * *", Direction: model.Down})
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"poll_interval: 20ms", "direction: down"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("saved config missing %q:\n%s", want, raw)
		}
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Transitions) != 1 || got.Transitions[0] != cfg.Transitions[0] {
		t.Errorf("transitions = %+v", got.Transitions)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"panel driver", func(c *Config) { c.Panel.Driver = "ssd1306" }, "panel.driver"},
		{"short gram", func(c *Config) { c.Panel.TotalLines = 200 }, "panel.total_lines"},
		{"madctl", func(c *Config) { c.Panel.MADCTL = 0x100 }, "panel.madctl"},
		{"touch driver", func(c *Config) { c.Touch.Driver = "usb" }, "touch.driver"},
		{"i2c addr", func(c *Config) { c.Touch.I2CAddr = 0x80 }, "touch.i2c_addr"},
		{"buffer lines", func(c *Config) { c.Render.BufferLines = 241 }, "render.buffer_lines"},
		{"strip", func(c *Config) { c.Scroll.StripLines = 300 }, "scroll.strip_lines"},
		{"empty schedule", func(c *Config) {
			c.Transitions = []TransitionConfig{{Direction: model.Up}}
		}, "schedule is empty"},
		{"no direction", func(c *Config) {
			c.Transitions = []TransitionConfig{{Schedule: "@hourly"}}
		}, "direction is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
