// Package lcd drives the watch's RGB565 panel: a Sitronix ST7789 over SPI
// for hardware and an in-memory GRAM emulation for render-only runs and
// tests. Both expose the hardware vertical scroll register, so GRAM is
// addressed as TotalLines lines of which the panel height is visible.
package lcd

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrHalted is returned by every operation after Halt.
	ErrHalted = errors.New("lcd: halted")
	// ErrOutOfBounds is returned for a window or scroll line outside GRAM.
	ErrOutOfBounds = errors.New("lcd: out of bounds")
)

// Panel is what the flush path needs from a display.
type Panel interface {
	// Size is the visible panel size in pixels.
	Size() (w, h int)
	// TotalLines is the GRAM height addressable through the scroll register.
	TotalLines() int
	// DrawBuffer writes a w×h block of little-endian RGB565 pixels at GRAM
	// column x, line y.
	DrawBuffer(ctx context.Context, x, y, w, h int, px []byte) error
	// VerticalScrollStartAddress selects the GRAM line shown at the top.
	VerticalScrollStartAddress(ctx context.Context, line int) error
}

// FrameCompleter is implemented by panels that want to know when a
// forwarded flush has been written.
type FrameCompleter interface {
	FrameComplete()
}

// Power is implemented by panels with a sleep mode and a switchable
// backlight.
type Power interface {
	Sleep() error
	Wakeup() error
	SetBacklight(on bool) error
}

func checkWindow(x, y, w, h, width, total, n int) error {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > width || y+h > total {
		return fmtBounds("window %dx%d at (%d,%d) outside %dx%d GRAM", w, h, x, y, width, total)
	}
	if n < w*h*2 {
		return fmtBounds("buffer holds %d bytes, window needs %d", n, w*h*2)
	}
	return nil
}

func fmtBounds(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrOutOfBounds}, args...)...)
}
