package touch

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// CST816SAddr is the controller's fixed 7-bit I2C address.
const CST816SAddr = 0x15

// Register map (subset).
//   - 0x01: gesture, 0x02: finger count
//   - 0x03/0x04: X high nibble (event in bits 7:6) / X low byte
//   - 0x05/0x06: Y high nibble / Y low byte
//   - 0xA7: chip ID
const (
	regGesture = 0x01
	regChipID  = 0xA7
)

// Gesture is the controller's gesture code.
type Gesture byte

const (
	GestureNone       Gesture = 0x00
	GestureSlideDown  Gesture = 0x01
	GestureSlideUp    Gesture = 0x02
	GestureSlideLeft  Gesture = 0x03
	GestureSlideRight Gesture = 0x04
	GestureSingleTap  Gesture = 0x05
	GestureDoubleTap  Gesture = 0x0B
	GestureLongPress  Gesture = 0x0C
)

func (g Gesture) String() string {
	switch g {
	case GestureNone:
		return "none"
	case GestureSlideDown:
		return "slide_down"
	case GestureSlideUp:
		return "slide_up"
	case GestureSlideLeft:
		return "slide_left"
	case GestureSlideRight:
		return "slide_right"
	case GestureSingleTap:
		return "tap"
	case GestureDoubleTap:
		return "double_tap"
	case GestureLongPress:
		return "long_press"
	}
	return fmt.Sprintf("gesture(%#02x)", byte(g))
}

// Known chip IDs: CST816S, CST816T, CST816D.
var cst816IDs = map[byte]bool{0xB4: true, 0xB5: true, 0xB6: true}

// CST816S reads touch points from a Hynitron CST816 family controller.
type CST816S struct {
	mu  sync.Mutex
	dev i2c.Dev
	id  byte
	bus i2c.BusCloser
	buf [6]byte
}

// NewCST816S checks the chip ID on bus and returns a reader.
func NewCST816S(bus i2c.Bus, addr uint16) (*CST816S, error) {
	if addr == 0 {
		addr = CST816SAddr
	}
	c := &CST816S{dev: i2c.Dev{Bus: bus, Addr: addr}}
	id := []byte{0}
	if err := c.dev.Tx([]byte{regChipID}, id); err != nil {
		return nil, fmt.Errorf("touch: cst816s: read chip id: %w", err)
	}
	if !cst816IDs[id[0]] {
		return nil, fmt.Errorf("touch: cst816s: unexpected chip id %#02x", id[0])
	}
	c.id = id[0]
	return c, nil
}

// OpenCST816S initializes periph and opens busName ("" for the default
// bus). The bus is closed by Close.
func OpenCST816S(busName string, addr uint16) (*CST816S, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("touch: periph host init failed: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("touch: open i2c bus %q: %w", busName, err)
	}
	c, err := NewCST816S(bus, addr)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	c.bus = bus
	return c, nil
}

func (c *CST816S) ChipID() byte { return c.id }

// Read implements Reader.
func (c *CST816S) Read(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rd := c.buf[:]
	if err := c.dev.Tx([]byte{regGesture}, rd); err != nil {
		return Report{}, fmt.Errorf("touch: cst816s: read point: %w", err)
	}
	return Report{
		Gesture: Gesture(rd[0]),
		Contact: rd[1] > 0,
		X:       int(rd[2]&0x0F)<<8 | int(rd[3]),
		Y:       int(rd[4]&0x0F)<<8 | int(rd[5]),
	}, nil
}

func (c *CST816S) Close() error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Close()
}
