// Package gfx is the graphics-host side of the display glue: an RGB565
// canvas with invalid-area tracking that pushes dirty rectangles to a
// registered flusher and polls a registered input reader on every tick.
//
// It only models what a display/touch adapter talks to (flush callbacks,
// flush-ready signalling, input polling, timer-driven refresh); layout and
// widgets are left to whoever draws on the canvas.
package gfx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"wristdisp/internal/convert"
	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
)

// ErrFlushTimeout is returned when a flusher does not call FlushReady
// within the configured bound.
var ErrFlushTimeout = errors.New("gfx: flush not acknowledged in time")

const maxInvalid = 16

// Flusher receives rendered areas. px holds a.Width()*a.Height() RGB565
// pixels, little-endian, and is only valid until FlushReady is called.
// last marks the final flush of a refresh pass.
type Flusher interface {
	Flush(ctx context.Context, a model.Area, px []byte, last bool)
}

// DisplayDriver binds a flusher to a Screen.
type DisplayDriver struct {
	Flusher Flusher
}

// InputDriver binds a pointer reader to a Screen.
type InputDriver struct {
	Reader InputReader
}

// Task runs once per tick before the refresh.
type Task func(ctx context.Context)

// Options configures a Screen.
type Options struct {
	Width  int
	Height int
	// BufferLines is the draw buffer height in full-width lines.
	BufferLines int
	// ReadyTimeout bounds the wait for FlushReady after each flush.
	ReadyTimeout time.Duration
}

// Screen is a single display: canvas, invalid areas, drivers and tasks.
type Screen struct {
	w, h         int
	bufLines     int
	readyTimeout time.Duration

	mu       sync.Mutex
	fb       []byte
	invalid  []model.Area
	display  *DisplayDriver
	input    *InputDriver
	tasks    []Task
	handlers []InputHandler
	pointer  InputData

	// refreshMu serializes passes that share drawBuf.
	refreshMu sync.Mutex
	drawBuf   []byte

	timerOn atomic.Bool
	ready   chan struct{}
	frames  atomic.Uint64
}

// NewScreen allocates a screen cleared to black. The timer-driven refresh
// starts enabled.
func NewScreen(opts Options) (*Screen, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("gfx: invalid screen size %dx%d", opts.Width, opts.Height)
	}
	if opts.BufferLines <= 0 || opts.BufferLines > opts.Height {
		opts.BufferLines = min(40, opts.Height)
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 200 * time.Millisecond
	}
	s := &Screen{
		w:            opts.Width,
		h:            opts.Height,
		bufLines:     opts.BufferLines,
		readyTimeout: opts.ReadyTimeout,
		fb:           make([]byte, opts.Width*opts.Height*convert.BytesPerPixel),
		drawBuf:      make([]byte, opts.Width*opts.BufferLines*convert.BytesPerPixel),
		ready:        make(chan struct{}, 1),
	}
	s.timerOn.Store(true)
	return s, nil
}

func (s *Screen) Width() int  { return s.w }
func (s *Screen) Height() int { return s.h }

// Bounds returns the full canvas area.
func (s *Screen) Bounds() model.Area {
	return model.Area{X1: 0, Y1: 0, X2: s.w - 1, Y2: s.h - 1}
}

// RegisterDisplay installs the flush target.
func (s *Screen) RegisterDisplay(d DisplayDriver) {
	s.mu.Lock()
	s.display = &d
	s.mu.Unlock()
}

// RegisterInput installs the pointer reader polled on every tick.
func (s *Screen) RegisterInput(d InputDriver) {
	s.mu.Lock()
	s.input = &d
	s.mu.Unlock()
}

func (s *Screen) AddTask(t Task) {
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
}

// Draw runs fn against the canvas and invalidates r.
func (s *Screen) Draw(r image.Rectangle, fn func(dst draw.Image)) {
	s.mu.Lock()
	fn(canvas{s})
	s.mu.Unlock()
	s.Invalidate(model.AreaFromRect(r))
}

// Fill paints r with a solid color.
func (s *Screen) Fill(r image.Rectangle, c color.Color) {
	s.Draw(r, func(dst draw.Image) {
		draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
	})
}

// Invalidate marks a (clipped to the screen) for the next refresh.
// Touching or overlapping areas are merged; past maxInvalid entries the
// whole screen is invalidated instead.
func (s *Screen) Invalidate(a model.Area) {
	a = a.Clip(s.w, s.h)
	if a.Empty() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, ex := range s.invalid {
		if ex.Overlaps(a) {
			s.invalid[i] = ex.Union(a)
			return
		}
	}
	if len(s.invalid) >= maxInvalid {
		s.invalid = append(s.invalid[:0], s.Bounds())
		return
	}
	s.invalid = append(s.invalid, a)
}

func (s *Screen) InvalidateAll() {
	s.Invalidate(s.Bounds())
}

// DiscardInvalid drops every pending invalid area.
func (s *Screen) DiscardInvalid() {
	s.mu.Lock()
	s.invalid = nil
	s.mu.Unlock()
}

// Invalid returns a copy of the pending invalid areas.
func (s *Screen) Invalid() []model.Area {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Area(nil), s.invalid...)
}

func (s *Screen) SetTimerEnabled(on bool) { s.timerOn.Store(on) }
func (s *Screen) TimerEnabled() bool      { return s.timerOn.Load() }

// FlushReady tells the screen the last flushed buffer may be reused.
func (s *Screen) FlushReady() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Frames counts completed refresh passes.
func (s *Screen) Frames() uint64 { return s.frames.Load() }

// Refresh flushes every pending invalid area in draw-buffer sized bands.
func (s *Screen) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	areas := s.invalid
	s.invalid = nil
	s.mu.Unlock()

	rest, err := s.flushAreas(ctx, areas)
	if err != nil {
		// Bands that were never acknowledged go back for the next pass.
		for _, b := range rest {
			s.Invalidate(b)
		}
	}
	return err
}

// RefreshArea renders and flushes a immediately, leaving the pending
// invalid areas untouched.
func (s *Screen) RefreshArea(ctx context.Context, a model.Area) error {
	a = a.Clip(s.w, s.h)
	if a.Empty() {
		return nil
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	_, err := s.flushAreas(ctx, []model.Area{a})
	return err
}

// flushAreas flushes areas band by band. On error it also returns the
// failed band and every band after it.
func (s *Screen) flushAreas(ctx context.Context, areas []model.Area) ([]model.Area, error) {
	var bands []model.Area
	for _, a := range areas {
		bands = append(bands, s.bands(a)...)
	}
	if len(bands) == 0 {
		return nil, nil
	}
	for i, b := range bands {
		if err := s.flush(ctx, b, i == len(bands)-1); err != nil {
			return bands[i:], err
		}
	}
	s.frames.Add(1)
	return nil, nil
}

// bands cuts a into pieces that fit the draw buffer, top to bottom.
func (s *Screen) bands(a model.Area) []model.Area {
	rows := max(1, s.bufLines*s.w/a.Width())
	var out []model.Area
	for y := a.Y1; y <= a.Y2; y += rows {
		out = append(out, model.Area{X1: a.X1, Y1: y, X2: a.X2, Y2: min(y+rows-1, a.Y2)})
	}
	return out
}

func (s *Screen) flush(ctx context.Context, a model.Area, last bool) error {
	s.mu.Lock()
	d := s.display
	rowBytes := a.Width() * convert.BytesPerPixel
	buf := s.drawBuf[:a.Height()*rowBytes]
	for row := 0; row < a.Height(); row++ {
		from := ((a.Y1+row)*s.w + a.X1) * convert.BytesPerPixel
		copy(buf[row*rowBytes:], s.fb[from:from+rowBytes])
	}
	s.mu.Unlock()

	if d == nil || d.Flusher == nil {
		return errors.New("gfx: no display driver registered")
	}

	// Drop a stale acknowledgement left by a flusher that answered late.
	select {
	case <-s.ready:
	default:
	}

	d.Flusher.Flush(ctx, a, buf, last)
	return s.waitReady(ctx)
}

func (s *Screen) waitReady(ctx context.Context) error {
	t := time.NewTimer(s.readyTimeout)
	defer t.Stop()
	select {
	case <-s.ready:
		return nil
	case <-t.C:
		return ErrFlushTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one iteration of the host loop: poll input, run tasks, then
// refresh if the timer-driven refresh is enabled.
func (s *Screen) Tick(ctx context.Context) {
	s.readInput()

	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()
	for _, t := range tasks {
		t(ctx)
	}

	if !s.timerOn.Load() {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		appLog.Error("gfx: refresh failed", err)
	}
}

// Run ticks every period until ctx is canceled.
func (s *Screen) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("gfx: invalid refresh period %v", period)
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Snapshot renders the canvas into an RGBA image.
func (s *Screen) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, _ := convert.ToRGBA(s.fb, s.w, s.h)
	return img
}

// canvas exposes the framebuffer as a draw.Image. Callers hold s.mu.
type canvas struct {
	s *Screen
}

func (c canvas) ColorModel() color.Model { return color.RGBAModel }

func (c canvas) Bounds() image.Rectangle { return image.Rect(0, 0, c.s.w, c.s.h) }

func (c canvas) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= c.s.w || y >= c.s.h {
		return color.RGBA{}
	}
	r, g, b := convert.RGB888(convert.Get(c.s.fb, y*c.s.w+x))
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}
}

func (c canvas) Set(x, y int, col color.Color) {
	if x < 0 || y < 0 || x >= c.s.w || y >= c.s.h {
		return
	}
	convert.Put(c.s.fb, y*c.s.w+x, convert.ColorTo565(col))
}
