package lcd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"wristdisp/internal/convert"
)

// ST7789 commands used by the driver.
const (
	cmdSWRESET  = 0x01
	cmdSLPIN    = 0x10
	cmdSLPOUT   = 0x11
	cmdNORON    = 0x13
	cmdINVON    = 0x21
	cmdDISPOFF  = 0x28
	cmdDISPON   = 0x29
	cmdCASET    = 0x2A
	cmdRASET    = 0x2B
	cmdRAMWR    = 0x2C
	cmdVSCRDEF  = 0x33
	cmdMADCTL   = 0x36
	cmdVSCRSADD = 0x37
	cmdCOLMOD   = 0x3A
)

// colmod16 selects 65K colors, 16 bits per pixel.
const colmod16 = 0x55

// defaultMaxTx matches the spidev default bufsiz.
const defaultMaxTx = 4096

var sleep = time.Sleep

// Opts is the configuration for the ST7789 panel.
type Opts struct {
	W, H int // visible size (default: 240x240)
	// TotalLines is the GRAM height covered by the scroll area (default: 320).
	TotalLines int
	// Offsets of the visible window inside GRAM, for glass smaller than the
	// controller's 240x320.
	ColumnOffset int
	RowOffset    int
	// MADCTL is the memory access control byte (rotation, RGB/BGR order).
	MADCTL byte
	// NoInvert leaves display inversion off; most IPS glass needs it on.
	NoInvert bool
}

// Dev is a handle to an ST7789 on SPI.
type Dev struct {
	mu sync.Mutex

	c   spi.Conn
	dc  gpio.PinOut
	rst gpio.PinOut
	bl  gpio.PinOut

	w, h, total    int
	colOff, rowOff int
	maxTx          int
	buf            []byte

	frames uint64
	halted bool
	asleep bool
	closer func() error
}

// New initializes the panel behind c. dc is required; rst and bl may be
// nil when the pins are hard-wired. opts can be nil for a 240x240 panel.
func New(c spi.Conn, dc, rst, bl gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	o := *opts
	if o.W == 0 {
		o.W = 240
	}
	if o.H == 0 {
		o.H = 240
	}
	if o.TotalLines == 0 {
		o.TotalLines = 320
	}
	switch {
	case c == nil || dc == nil:
		return nil, errors.New("st7789: spi connection and dc pin are required")
	case o.W < 0 || o.W > 240:
		return nil, fmt.Errorf("st7789: width %d outside 1..240", o.W)
	case o.H < 0 || o.H > 320:
		return nil, fmt.Errorf("st7789: height %d outside 1..320", o.H)
	case o.TotalLines < o.H || o.TotalLines > 320:
		return nil, fmt.Errorf("st7789: total lines %d outside %d..320", o.TotalLines, o.H)
	}

	maxTx := defaultMaxTx
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		maxTx = l.MaxTxSize()
	}
	maxTx &^= 1

	d := &Dev{
		c:      c,
		dc:     dc,
		rst:    rst,
		bl:     bl,
		w:      o.W,
		h:      o.H,
		total:  o.TotalLines,
		colOff: o.ColumnOffset,
		rowOff: o.RowOffset,
		maxTx:  maxTx,
		buf:    make([]byte, maxTx),
	}
	if err := d.init(&o); err != nil {
		return nil, err
	}
	return d, nil
}

type initStep struct {
	cmd   byte
	data  []byte
	delay time.Duration
}

func (d *Dev) init(o *Opts) error {
	if d.rst != nil {
		for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
			if err := d.rst.Out(l); err != nil {
				return fmt.Errorf("st7789: reset pin: %w", err)
			}
			sleep(10 * time.Millisecond)
		}
	}

	steps := []initStep{
		{cmdSWRESET, nil, 150 * time.Millisecond},
		{cmdSLPOUT, nil, 120 * time.Millisecond},
		{cmdCOLMOD, []byte{colmod16}, 10 * time.Millisecond},
		{cmdMADCTL, []byte{o.MADCTL}, 0},
	}
	if !o.NoInvert {
		steps = append(steps, initStep{cmdINVON, nil, 0})
	}
	for _, s := range steps {
		if err := d.command(s.cmd, s.data...); err != nil {
			return err
		}
		if s.delay > 0 {
			sleep(s.delay)
		}
	}

	// One scroll area spanning the whole GRAM, no fixed bands.
	if err := d.command(cmdVSCRDEF, 0, 0, byte(d.total>>8), byte(d.total), 0, 0); err != nil {
		return err
	}
	if err := d.command(cmdNORON); err != nil {
		return err
	}
	sleep(10 * time.Millisecond)
	if err := d.command(cmdDISPON); err != nil {
		return err
	}
	sleep(10 * time.Millisecond)
	return d.setBacklight(true)
}

func (d *Dev) String() string {
	return fmt.Sprintf("st7789.Dev{%dx%d, gram %d}", d.w, d.h, d.total)
}

func (d *Dev) Size() (int, int) { return d.w, d.h }
func (d *Dev) TotalLines() int  { return d.total }

// DrawBuffer implements Panel. Pixels are byte-swapped to the controller's
// big-endian order and sent in chunks no larger than the SPI limit; ctx is
// checked between chunks.
func (d *Dev) DrawBuffer(ctx context.Context, x, y, w, h int, px []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if err := checkWindow(x, y, w, h, d.w, d.total, len(px)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.setWindow(x, y, w, h); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st7789: dc pin: %w", err)
	}
	n := w * h * convert.BytesPerPixel
	for off := 0; off < n; off += d.maxTx {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("st7789: blit interrupted at byte %d: %w", off, err)
		}
		k := convert.SwapBytes(d.buf, px[off:min(off+d.maxTx, n)])
		if err := d.c.Tx(d.buf[:k], nil); err != nil {
			return fmt.Errorf("st7789: pixel data: %w", err)
		}
	}
	return nil
}

func (d *Dev) setWindow(x, y, w, h int) error {
	x0, x1 := x+d.colOff, x+w-1+d.colOff
	y0, y1 := y+d.rowOff, y+h-1+d.rowOff
	if err := d.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.command(cmdRAMWR)
}

// VerticalScrollStartAddress implements Panel.
func (d *Dev) VerticalScrollStartAddress(ctx context.Context, line int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if line < 0 || line >= d.total {
		return fmtBounds("scroll line %d outside 0..%d", line, d.total-1)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.command(cmdVSCRSADD, byte(line>>8), byte(line))
}

// FrameComplete implements FrameCompleter.
func (d *Dev) FrameComplete() {
	d.mu.Lock()
	d.frames++
	d.mu.Unlock()
}

// Frames counts completed refresh passes.
func (d *Dev) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Sleep turns the backlight off and puts the controller in sleep mode.
func (d *Dev) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if d.asleep {
		return nil
	}
	if err := d.setBacklight(false); err != nil {
		return err
	}
	if err := d.command(cmdSLPIN); err != nil {
		return err
	}
	sleep(5 * time.Millisecond)
	d.asleep = true
	return nil
}

// Wakeup leaves sleep mode. GRAM content and the scroll offset survive.
func (d *Dev) Wakeup() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	if !d.asleep {
		return nil
	}
	if err := d.command(cmdSLPOUT); err != nil {
		return err
	}
	sleep(120 * time.Millisecond)
	d.asleep = false
	return d.setBacklight(true)
}

func (d *Dev) SetBacklight(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return ErrHalted
	}
	return d.setBacklight(on)
}

func (d *Dev) setBacklight(on bool) error {
	if d.bl == nil {
		return nil
	}
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := d.bl.Out(l); err != nil {
		return fmt.Errorf("st7789: backlight pin: %w", err)
	}
	return nil
}

// Halt turns the display off. The Dev is unusable afterwards.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.halted {
		return nil
	}
	d.halted = true
	err := d.command(cmdDISPOFF)
	if berr := d.setBacklight(false); err == nil {
		err = berr
	}
	return err
}

// Close halts the display and releases the SPI port when Open created it.
func (d *Dev) Close() error {
	err := d.Halt()
	if d.closer != nil {
		if cerr := d.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

func (d *Dev) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("st7789: dc pin: %w", err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("st7789: command %#02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st7789: dc pin: %w", err)
	}
	if err := d.c.Tx(data, nil); err != nil {
		return fmt.Errorf("st7789: command %#02x data: %w", cmd, err)
	}
	return nil
}
