// Package touch carries touch-panel samples from the controller drivers to
// the graphics host.
//
// A single Buffer holds the latest sample. The input poller overwrites it
// and the render loop reads it once per tick; intermediate samples are
// dropped, last write wins.
package touch

import (
	"image"
	"sync/atomic"

	"wristdisp/internal/gfx"
	"wristdisp/internal/model"
)

const contactBit = 1 << 32

// Buffer is the one-slot touch sample exchange. The sample is packed into
// a single word so a reader never sees X from one write and Y from another.
// The zero value is released at (0, 0).
type Buffer struct {
	v atomic.Uint64
}

// SetNewTouchPoint overwrites the stored sample. No validation is done.
func (b *Buffer) SetNewTouchPoint(x, y uint16, contact bool) {
	v := uint64(x) | uint64(y)<<16
	if contact {
		v |= contactBit
	}
	b.v.Store(v)
}

// Sample returns the stored sample.
func (b *Buffer) Sample() model.TouchSample {
	v := b.v.Load()
	return model.TouchSample{
		X:       uint16(v),
		Y:       uint16(v >> 16),
		Contact: v&contactBit != 0,
	}
}

// GetTouchPadInfo reports the stored sample in the graphics host's input
// shape. There is never more than one sample pending.
func (b *Buffer) GetTouchPadInfo() (gfx.InputData, bool) {
	s := b.Sample()
	d := gfx.InputData{Point: image.Pt(int(s.X), int(s.Y)), State: gfx.Released}
	if s.Contact {
		d.State = gfx.Pressed
	}
	return d, false
}

// ReadInput implements gfx.InputReader.
func (b *Buffer) ReadInput() (gfx.InputData, bool) {
	return b.GetTouchPadInfo()
}
