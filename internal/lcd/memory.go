package lcd

import (
	"context"
	"fmt"
	"image"
	"sync"

	"wristdisp/internal/convert"
)

// Memory emulates a panel in RAM with the same GRAM and scroll semantics
// as the ST7789: display line i shows GRAM line (scroll+i) mod TotalLines.
type Memory struct {
	mu      sync.Mutex
	w, h    int
	total   int
	gram    []byte
	scroll  int
	frames  uint64
	blits   uint64
	scrolls uint64

	asleep    bool
	backlight bool
}

// NewMemory returns a w×h panel over total GRAM lines (total 0 means h).
func NewMemory(w, h, total int) (*Memory, error) {
	if total == 0 {
		total = h
	}
	if w <= 0 || h <= 0 || total < h {
		return nil, fmt.Errorf("lcd: invalid memory panel %dx%d over %d lines", w, h, total)
	}
	return &Memory{
		w:         w,
		h:         h,
		total:     total,
		gram:      make([]byte, w*total*convert.BytesPerPixel),
		backlight: true,
	}, nil
}

func (m *Memory) String() string {
	return fmt.Sprintf("lcd.Memory{%dx%d, gram %d}", m.w, m.h, m.total)
}

func (m *Memory) Size() (int, int) { return m.w, m.h }
func (m *Memory) TotalLines() int  { return m.total }

// DrawBuffer implements Panel.
func (m *Memory) DrawBuffer(ctx context.Context, x, y, w, h int, px []byte) error {
	if err := checkWindow(x, y, w, h, m.w, m.total, len(px)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rowBytes := w * convert.BytesPerPixel
	for row := 0; row < h; row++ {
		to := ((y+row)*m.w + x) * convert.BytesPerPixel
		copy(m.gram[to:to+rowBytes], px[row*rowBytes:])
	}
	m.blits++
	return nil
}

// VerticalScrollStartAddress implements Panel.
func (m *Memory) VerticalScrollStartAddress(ctx context.Context, line int) error {
	if line < 0 || line >= m.total {
		return fmtBounds("scroll line %d outside 0..%d", line, m.total-1)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.scroll = line
	m.scrolls++
	m.mu.Unlock()
	return nil
}

// FrameComplete implements FrameCompleter.
func (m *Memory) FrameComplete() {
	m.mu.Lock()
	m.frames++
	m.mu.Unlock()
}

// Sleep implements Power. Like the controller it turns the backlight off.
func (m *Memory) Sleep() error {
	m.mu.Lock()
	m.asleep, m.backlight = true, false
	m.mu.Unlock()
	return nil
}

// Wakeup implements Power.
func (m *Memory) Wakeup() error {
	m.mu.Lock()
	m.asleep, m.backlight = false, true
	m.mu.Unlock()
	return nil
}

// SetBacklight implements Power.
func (m *Memory) SetBacklight(on bool) error {
	m.mu.Lock()
	m.backlight = on
	m.mu.Unlock()
	return nil
}

// Power reports the emulated sleep and backlight state.
func (m *Memory) Power() (asleep, backlight bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.asleep, m.backlight
}

// Stats reports the scroll line and the frame, blit and scroll counters.
func (m *Memory) Stats() (scroll int, frames, blits, scrolls uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scroll, m.frames, m.blits, m.scrolls
}

// Snapshot renders what the glass shows now.
func (m *Memory) Snapshot() *image.RGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	rowBytes := m.w * convert.BytesPerPixel
	visible := make([]byte, m.h*rowBytes)
	for i := 0; i < m.h; i++ {
		from := ((m.scroll + i) % m.total) * rowBytes
		copy(visible[i*rowBytes:], m.gram[from:from+rowBytes])
	}
	img, _ := convert.ToRGBA(visible, m.w, m.h)
	return img
}
