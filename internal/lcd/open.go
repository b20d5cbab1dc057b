package lcd

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Pins names the bus and GPIOs the panel is wired to, as known to the
// periph registries ("GPIO25", "SPI0.0", ...).
type Pins struct {
	SPIPort   string
	SPISpeed  physic.Frequency
	DC        string
	Reset     string
	Backlight string
}

// Open initializes periph, resolves pins and returns an initialized panel.
// Reset and Backlight may be empty.
func Open(p Pins, opts *Opts) (*Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("lcd: periph host init failed: %w", err)
	}

	dc, err := outPin(p.DC, true)
	if err != nil {
		return nil, err
	}
	rst, err := outPin(p.Reset, false)
	if err != nil {
		return nil, err
	}
	bl, err := outPin(p.Backlight, false)
	if err != nil {
		return nil, err
	}

	port, err := spireg.Open(p.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("lcd: failed to open SPI port %q: %w", p.SPIPort, err)
	}
	speed := p.SPISpeed
	if speed == 0 {
		speed = 40 * physic.MegaHertz
	}
	c, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("lcd: failed to connect SPI: %w", err)
	}

	d, err := New(c, dc, rst, bl, opts)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	d.closer = port.Close
	return d, nil
}

func outPin(name string, required bool) (gpio.PinOut, error) {
	if name == "" {
		if required {
			return nil, fmt.Errorf("lcd: required pin not configured")
		}
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("lcd: gpio %s not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("lcd: gpio %s Out failed: %w", name, err)
	}
	return p, nil
}
