// Package scroll implements full-refresh transitions on top of the panel's
// hardware vertical scroll register.
//
// The panel GRAM is treated as a ring of TotalLines lines of which
// VisibleLines are shown, starting at the scroll offset. Every flushed area
// is written at the write offset, so moving the write offset by a whole
// screen and then walking the scroll offset after it slides the new content
// in without redrawing the lines that are already on glass.
package scroll

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
)

// DefaultStrip is the band height used by the animated transitions.
const DefaultStrip = 4

// Library is the part of the graphics host the animations drive.
type Library interface {
	// SetTimerEnabled turns the timer-driven redraw on or off.
	SetTimerEnabled(on bool)
	// RefreshArea synchronously renders and flushes exactly a, outside the
	// normal invalid-area accumulation.
	RefreshArea(ctx context.Context, a model.Area) error
	// DiscardInvalid drops pending invalid areas.
	DiscardInvalid()
	// InvalidateAll marks the whole screen for the next refresh.
	InvalidateAll()
}

// Scroller is the panel's vertical scroll start address register.
type Scroller interface {
	VerticalScrollStartAddress(ctx context.Context, line int) error
}

// Options describes the panel geometry seen by the controller.
type Options struct {
	Width        int
	VisibleLines int
	TotalLines   int
	Strip        int
	// Timeout bounds each scroll register write.
	Timeout time.Duration
}

// Segment is a physical panel rectangle receiving part of a flushed
// buffer. Offset is the index of the segment's first pixel in that buffer.
type Segment struct {
	X, Y   int
	W, H   int
	Offset int
}

// State is a snapshot of the controller. Direction is the requested or
// running transition; Armed is false while it waits for the next tick.
type State struct {
	Direction    model.Direction `json:"direction"`
	Armed        bool            `json:"armed"`
	ScrollOffset int             `json:"scroll_offset"`
	WriteOffset  int             `json:"write_offset"`
	Animating    bool            `json:"animating"`
}

// Controller owns the transition state machine. A transition only starts
// from None and always returns to None; requests made meanwhile are dropped.
//
// A request may come from any goroutine, but it only takes effect once Run
// arms it at the start of a host tick. Refresh passes already under way
// never see a half-started transition.
type Controller struct {
	width   int
	visible int
	strip   int
	timeout time.Duration

	lib   Library
	panel Scroller

	mu        sync.Mutex
	pending   model.Direction
	dir       model.Direction
	started   bool
	animating bool
	scroll    Ring
	write     Ring

	// Up progress: scroll offset at the start and lines revealed so far.
	upFrom int
	upDone int
	// stale is set while the panel register lags the scroll offset.
	stale bool
}

// New validates opts and returns an idle controller. panel may be nil when
// the display has no scroll register (offsets are then tracked but never
// written).
func New(opts Options, lib Library, panel Scroller) (*Controller, error) {
	if opts.Strip == 0 {
		opts.Strip = DefaultStrip
	}
	if opts.TotalLines == 0 {
		opts.TotalLines = opts.VisibleLines
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	switch {
	case lib == nil:
		return nil, errors.New("scroll: library is nil")
	case opts.Width <= 0 || opts.VisibleLines <= 0:
		return nil, errors.New("scroll: panel size must be positive")
	case opts.TotalLines < opts.VisibleLines:
		return nil, errors.New("scroll: total lines must be >= visible lines")
	case opts.Strip < 0 || opts.Strip > opts.VisibleLines || opts.Strip > opts.Width:
		return nil, errors.New("scroll: strip must fit the panel")
	}
	return &Controller{
		width:   opts.Width,
		visible: opts.VisibleLines,
		strip:   opts.Strip,
		timeout: opts.Timeout,
		lib:     lib,
		panel:   panel,
		scroll:  NewRing(opts.TotalLines),
		write:   NewRing(opts.TotalLines),
	}, nil
}

// SetFullRefresh requests a transition. It reports whether the request was
// taken; it is ignored unless the controller is idle with nothing pending.
// A taken request waits for Run to arm it.
func (c *Controller) SetFullRefresh(d model.Direction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == model.None || c.dir != model.None || c.pending != model.None {
		return false
	}
	c.pending = d
	appLog.Debug("scroll: transition requested", "direction", d)
	return true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Direction:    c.directionLocked(),
		Armed:        c.dir != model.None,
		ScrollOffset: c.scroll.Pos(),
		WriteOffset:  c.write.Pos(),
		Animating:    c.animating,
	}
}

func (c *Controller) Direction() model.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directionLocked()
}

func (c *Controller) directionLocked() model.Direction {
	if c.dir != model.None {
		return c.dir
	}
	return c.pending
}

func (c *Controller) Animating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.animating
}

// Segments maps an area (already clipped to the visible panel) onto GRAM.
// An area crossing the end of the ring comes back as two segments.
//
// An armed flush-path transition starts on the first flush at the top of
// the panel, which is the start of the full-screen pass Run asked for.
func (c *Controller) Segments(a model.Area) []Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir != model.None && !c.dir.Animated() && !c.started && a.Y1 == 0 {
		c.started = true
		if c.dir == model.Up {
			c.upFrom = c.scroll.Pos()
			c.upDone = 0
			c.write.Advance(c.visible)
		}
	}

	w, h := a.Width(), a.Height()
	y := c.write.Map(a.Y1)
	total := c.write.Size()
	if y+h <= total {
		return []Segment{{X: a.X1, Y: y, W: w, H: h}}
	}
	head := total - y
	return []Segment{
		{X: a.X1, Y: y, W: w, H: head},
		{X: a.X1, Y: 0, W: w, H: h - head, Offset: w * head},
	}
}

// Flushed advances the non-animated transitions once a has been written.
// The scroll offset follows the lowest line flushed so far, so a band that
// is flushed again after a failed pass does not move it twice.
func (c *Controller) Flushed(ctx context.Context, a model.Area) error {
	c.mu.Lock()
	line := -1
	switch {
	case !c.started:
	case c.dir == model.Up:
		c.upDone = min(max(c.upDone, a.Y2+1), c.visible)
		c.scroll.Set(c.upFrom + c.upDone)
		line = c.scroll.Pos()
		if c.upDone >= c.visible {
			c.finishLocked()
		}
	case c.dir == model.Left:
		if a.X2 >= c.width-1 {
			c.finishLocked()
		}
	case c.dir == model.Right:
		if a.X1 <= 0 {
			c.finishLocked()
		}
	}
	c.mu.Unlock()

	if line < 0 {
		return nil
	}
	return c.setScroll(ctx, line)
}

// Run arms a pending transition and performs it when it is animated. It is
// meant to be installed as a graphics host task so that it runs between
// refresh passes and ahead of the normal refresh.
//
// Arming a flush-path transition invalidates the whole screen, so the
// refresh that follows in the same tick is the pass that carries it.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	if c.stale && !c.animating {
		line := c.scroll.Pos()
		c.mu.Unlock()
		if err := c.setScroll(ctx, line); err != nil {
			appLog.Error("scroll: register still out of step", err, "line", line)
		}
		c.mu.Lock()
	}
	armed := false
	if c.dir == model.None && c.pending != model.None {
		c.dir, c.pending = c.pending, model.None
		c.started = false
		armed = true
	}
	dir := c.dir
	if !dir.Animated() || c.animating {
		c.mu.Unlock()
		if armed {
			appLog.Debug("scroll: transition armed", "direction", dir)
			c.lib.InvalidateAll()
		}
		return
	}
	c.animating = true
	c.mu.Unlock()

	c.lib.SetTimerEnabled(false)
	defer c.lib.SetTimerEnabled(true)

	var err error
	if dir == model.Down {
		err = c.animateDown(ctx)
	} else {
		err = c.animateHorizontal(ctx, dir)
	}

	if err != nil {
		// Leave the invalid areas in place so the normal refresh repaints
		// the panel, and put glass back in line with the write offset.
		appLog.Error("scroll: transition aborted", err, "direction", dir)
		c.mu.Lock()
		c.scroll.Set(c.write.Pos())
		line := c.scroll.Pos()
		c.mu.Unlock()
		if serr := c.setScroll(ctx, line); serr != nil {
			appLog.Error("scroll: resync failed", serr, "line", line)
		}
	} else {
		c.lib.DiscardInvalid()
	}

	c.mu.Lock()
	c.finishLocked()
	c.mu.Unlock()
}

// animateDown redraws the panel bottom-up in strips, each one written just
// above the visible window and then revealed by moving the scroll offset
// back by the strip height.
func (c *Controller) animateDown(ctx context.Context) error {
	c.mu.Lock()
	c.write.Advance(-c.visible)
	c.mu.Unlock()

	for y := c.visible - c.strip; y > -c.strip; y -= c.strip {
		band := model.Area{X1: 0, Y1: max(y, 0), X2: c.width - 1, Y2: y + c.strip - 1}
		if err := c.lib.RefreshArea(ctx, band); err != nil {
			return err
		}
		c.mu.Lock()
		line := c.scroll.Advance(-band.Height())
		c.mu.Unlock()
		if err := c.setScroll(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// animateHorizontal sweeps a full-height strip across the panel: leftwards
// from the right edge for LeftAnim, rightwards from the left edge for
// RightAnim. The sweep ends after one lap of the column ring.
func (c *Controller) animateHorizontal(ctx context.Context, dir model.Direction) error {
	cursor := NewRing(c.width)
	for travelled := 0; travelled < c.width; {
		var x1, x2 int
		if dir == model.RightAnim {
			x1 = cursor.Pos()
			x2 = min(x1+c.strip, c.width) - 1
			cursor.Advance(c.strip)
		} else {
			x2 = cursor.Map(-1)
			x1 = max(x2-c.strip+1, 0)
			cursor.Advance(-c.strip)
		}
		band := model.Area{X1: x1, Y1: 0, X2: x2, Y2: c.visible - 1}
		if err := c.lib.RefreshArea(ctx, band); err != nil {
			return err
		}
		travelled += band.Width()
	}
	return nil
}

func (c *Controller) finishLocked() {
	if c.dir != model.None {
		appLog.Debug("scroll: transition done", "direction", c.dir,
			"scroll_offset", c.scroll.Pos(), "write_offset", c.write.Pos())
	}
	c.dir = model.None
	c.started = false
	c.animating = false
	c.upDone = 0
}

// setScroll writes line to the panel register. A failed write marks the
// register stale so the next Run writes the current offset again.
func (c *Controller) setScroll(ctx context.Context, line int) error {
	if c.panel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := c.panel.VerticalScrollStartAddress(ctx, line)
	c.mu.Lock()
	c.stale = err != nil
	c.mu.Unlock()
	return err
}
