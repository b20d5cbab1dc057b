// Package display glues the graphics host to the panel and the touch
// buffer: it is the host's flush callback and pointer reader.
package display

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wristdisp/internal/convert"
	"wristdisp/internal/gfx"
	"wristdisp/internal/lcd"
	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
	"wristdisp/internal/scroll"
	"wristdisp/internal/touch"
)

// ErrNoPower is returned by SetPower when the panel has no sleep mode.
var ErrNoPower = errors.New("display: panel has no power control")

// Options configures an Adapter.
type Options struct {
	Panel lcd.Panel
	// Scroll enables scroll transitions; nil means clamp-and-forward only.
	Scroll *scroll.Controller
	// Timeout bounds every panel call made from the flush path.
	Timeout time.Duration
}

// State is a snapshot for the debug API.
type State struct {
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	TotalLines    int               `json:"total_lines"`
	ScrollEnabled bool              `json:"scroll_enabled"`
	Scroll        scroll.State      `json:"scroll"`
	Touch         model.TouchSample `json:"touch"`
	Flushes       uint64            `json:"flushes"`
	Dropped       uint64            `json:"dropped"`
	Failures      uint64            `json:"failures"`
	Asleep        bool              `json:"asleep"`
	Invalid       []model.Area      `json:"invalid,omitempty"`
}

// Adapter forwards flushed areas to the panel.
type Adapter struct {
	panel   lcd.Panel
	w, h    int
	scroll  *scroll.Controller
	timeout time.Duration

	screen *gfx.Screen
	ready  func()
	touch  touch.Buffer

	flushes  atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
	asleep   atomic.Bool
}

func New(opts Options) (*Adapter, error) {
	if opts.Panel == nil {
		return nil, errors.New("display: panel is nil")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	w, h := opts.Panel.Size()
	return &Adapter{
		panel:   opts.Panel,
		w:       w,
		h:       h,
		scroll:  opts.Scroll,
		timeout: opts.Timeout,
		ready:   func() {},
	}, nil
}

// Register installs the adapter as s's display and input driver and, when
// scrolling is enabled, schedules the animated transitions as a task.
func (a *Adapter) Register(s *gfx.Screen) error {
	if s.Width() != a.w || s.Height() != a.h {
		return fmt.Errorf("display: screen %dx%d does not match panel %dx%d", s.Width(), s.Height(), a.w, a.h)
	}
	a.screen = s
	a.ready = s.FlushReady
	s.RegisterDisplay(gfx.DisplayDriver{Flusher: a})
	s.RegisterInput(gfx.InputDriver{Reader: &a.touch})
	if a.scroll != nil {
		s.AddTask(a.scroll.Run)
	}
	return nil
}

// Flush implements gfx.Flusher. The area is clipped to the panel; the
// host is told the buffer is free whether or not the blit worked.
//
// Every forwarded flush is terminal as far as the panel is concerned: the
// panel sees a frame completion after each blit, not only after the last
// band of a pass.
func (a *Adapter) Flush(ctx context.Context, area model.Area, px []byte, _ bool) {
	defer a.ready()
	a.flushes.Add(1)

	clipped := area.Clip(a.w, a.h)
	if clipped.Empty() {
		a.dropped.Add(1)
		appLog.Debug("display: area outside panel dropped", "area", area)
		return
	}
	buf := px
	if clipped != area {
		var err error
		buf, err = convert.SubRect(px, area.Width(), clipped.X1-area.X1, clipped.Y1-area.Y1, clipped.Width(), clipped.Height())
		if err != nil {
			a.failures.Add(1)
			appLog.Error("display: clip failed", err, "area", area)
			return
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.blit(ctx, clipped, buf); err != nil {
		a.failures.Add(1)
		appLog.Error("display: blit failed", err, "area", clipped)
	}
	if fc, ok := a.panel.(lcd.FrameCompleter); ok {
		fc.FrameComplete()
	}
}

func (a *Adapter) blit(ctx context.Context, area model.Area, px []byte) error {
	if a.scroll == nil {
		return a.panel.DrawBuffer(ctx, area.X1, area.Y1, area.Width(), area.Height(), px)
	}

	var err error
	for _, s := range a.scroll.Segments(area) {
		if e := a.panel.DrawBuffer(ctx, s.X, s.Y, s.W, s.H, px[s.Offset*convert.BytesPerPixel:]); e != nil && err == nil {
			err = e
		}
	}
	// The transition moves on even after a failed blit so it cannot stall.
	if e := a.scroll.Flushed(ctx, area); e != nil && err == nil {
		err = fmt.Errorf("display: scroll register: %w", e)
	}
	return err
}

// SetFullRefresh requests a full redraw using transition d. It reports
// whether the request was taken. Without scroll support every request is
// taken and simply redraws the whole screen.
func (a *Adapter) SetFullRefresh(d model.Direction) bool {
	if a.scroll != nil && !a.scroll.SetFullRefresh(d) {
		appLog.Debug("display: full refresh ignored", "direction", d)
		return false
	}
	if a.screen != nil {
		a.screen.InvalidateAll()
	}
	return true
}

// SetPower puts the panel to sleep with the backlight off, or wakes it
// with the backlight on. Panels without lcd.Power get ErrNoPower.
func (a *Adapter) SetPower(on bool) error {
	p, ok := a.panel.(lcd.Power)
	if !ok {
		return ErrNoPower
	}
	var err error
	if on {
		if err = p.Wakeup(); err == nil {
			err = p.SetBacklight(true)
		}
	} else {
		if err = p.SetBacklight(false); err == nil {
			err = p.Sleep()
		}
	}
	if err != nil {
		return fmt.Errorf("display: set power %v: %w", on, err)
	}
	a.asleep.Store(!on)
	appLog.Info("display: power", "on", on)
	return nil
}

// SetNewTouchPoint stores the latest touch sample.
func (a *Adapter) SetNewTouchPoint(x, y uint16, contact bool) {
	a.touch.SetNewTouchPoint(x, y, contact)
}

// GetTouchPadInfo returns the latest touch sample in the host's shape.
func (a *Adapter) GetTouchPadInfo() (gfx.InputData, bool) {
	return a.touch.GetTouchPadInfo()
}

// Touch is the buffer the touch poller writes into.
func (a *Adapter) Touch() *touch.Buffer { return &a.touch }

func (a *Adapter) State() State {
	st := State{
		Width:         a.w,
		Height:        a.h,
		TotalLines:    a.panel.TotalLines(),
		ScrollEnabled: a.scroll != nil,
		Touch:         a.touch.Sample(),
		Flushes:       a.flushes.Load(),
		Dropped:       a.dropped.Load(),
		Failures:      a.failures.Load(),
		Asleep:        a.asleep.Load(),
	}
	if a.scroll != nil {
		st.Scroll = a.scroll.State()
	}
	if a.screen != nil {
		st.Invalid = a.screen.Invalid()
	}
	return st
}
