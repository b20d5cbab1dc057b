// Package face draws the demo watch face: a clock page and a status page,
// switched by horizontal swipes that request the animated transitions.
package face

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"wristdisp/internal/gfx"
	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
)

// Pages.
const (
	PageClock = iota
	PageStatus
	numPages
)

const markerSize = 6

// Requester takes full-refresh requests.
type Requester interface {
	SetFullRefresh(d model.Direction) bool
}

type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Requester receives the transitions started by swipes; nil disables them.
	Requester  Requester
	Background color.Color
	Foreground color.Color
	Accent     color.Color
}

// Face is a screen task plus an input handler. Both run on the screen's
// tick goroutine.
type Face struct {
	s   *gfx.Screen
	req Requester
	now func() time.Time

	bg, fg, accent *image.Uniform
	scale          int

	mu      sync.Mutex
	page    int
	drawn   time.Time
	full    bool
	pressed bool
	start   image.Point
	last    image.Point
	marker  image.Rectangle
	swipes  int
}

func New(s *gfx.Screen, opts Options) *Face {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.Foreground == nil {
		opts.Foreground = color.White
	}
	if opts.Accent == nil {
		opts.Accent = color.RGBA{R: 0xFF, G: 0x80, A: 0xFF}
	}
	clockW := font.MeasureString(basicfont.Face7x13, "00:00:00").Ceil()
	return &Face{
		s:      s,
		req:    opts.Requester,
		now:    opts.Now,
		bg:     image.NewUniform(opts.Background),
		fg:     image.NewUniform(opts.Foreground),
		accent: image.NewUniform(opts.Accent),
		scale:  max(1, min(3, s.Width()*4/5/clockW)),
		full:   true,
	}
}

// Attach registers the face as a task and input handler of its screen.
func (f *Face) Attach() {
	f.s.OnInput(f.HandleInput)
	f.s.AddTask(f.Task)
}

// Page returns the page on show.
func (f *Face) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// Task redraws the face once per second, or at once after a page change.
func (f *Face) Task(context.Context) {
	now := f.now().Truncate(time.Second)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.full && now.Equal(f.drawn) {
		return
	}
	f.renderLocked(now)
}

// HandleInput tracks press and release edges. A horizontal swipe longer
// than a quarter of the screen flips the page; a vertical one just
// replays the page with an up or down transition.
func (f *Face) HandleInput(d gfx.InputData) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case d.State == gfx.Pressed && !f.pressed:
		f.pressed = true
		f.start, f.last = d.Point, d.Point
		f.moveMarkerLocked(d.Point)
	case d.State == gfx.Pressed:
		if d.Point != f.last {
			f.last = d.Point
			f.moveMarkerLocked(d.Point)
		}
	case f.pressed:
		f.pressed = false
		f.last = d.Point
		f.moveMarkerLocked(image.Pt(-1, -1))
		f.swipeLocked(d.Point.Sub(f.start))
	}
}

func (f *Face) swipeLocked(delta image.Point) {
	w, h := f.s.Width(), f.s.Height()
	var dir model.Direction
	switch {
	case abs(delta.X) > w/4 && abs(delta.X) >= abs(delta.Y):
		if delta.X < 0 {
			f.page = (f.page + 1) % numPages
			dir = model.LeftAnim
		} else {
			f.page = (f.page + numPages - 1) % numPages
			dir = model.RightAnim
		}
	case abs(delta.Y) > h/4:
		dir = model.Down
		if delta.Y < 0 {
			dir = model.Up
		}
	default:
		return
	}
	f.swipes++

	// The canvas must hold the new page before the transition reads it.
	f.renderLocked(f.now().Truncate(time.Second))
	if f.req == nil {
		return
	}
	if !f.req.SetFullRefresh(dir) {
		appLog.Debug("face: transition busy, page redrawn in place", "direction", dir)
	}
}

func (f *Face) moveMarkerLocked(p image.Point) {
	if !f.marker.Empty() {
		f.s.Fill(f.marker, f.bg)
	}
	f.marker = image.Rectangle{}
	if p.X < 0 {
		return
	}
	r := image.Rect(p.X-markerSize/2, p.Y-markerSize/2, p.X+markerSize/2, p.Y+markerSize/2)
	f.marker = r.Intersect(image.Rect(0, 0, f.s.Width(), f.s.Height()))
	f.s.Fill(f.marker, f.accent)
}

func (f *Face) renderLocked(now time.Time) {
	full := f.full || !sameMinute(now, f.drawn) || f.page == PageStatus
	f.drawn, f.full = now, false

	w, h := f.s.Width(), f.s.Height()
	if full {
		f.s.Fill(image.Rect(0, 0, w, h), f.bg)
	}
	switch f.page {
	case PageClock:
		clock := f.clockRect()
		if !full {
			f.s.Fill(clock, f.bg)
		}
		f.text(clock, now.Format("15:04:05"), f.fg, f.scale)
		if full {
			date := now.Format("Mon 02 Jan")
			f.text(centered(date, w, clock.Max.Y+8, 1), date, f.accent, 1)
		}
	case PageStatus:
		lines := []string{
			"wristdisp",
			fmt.Sprintf("frames %d", f.s.Frames()),
			fmt.Sprintf("swipes %d", f.swipes),
			fmt.Sprintf("touch %d,%d", f.last.X, f.last.Y),
			now.Format("15:04:05"),
		}
		y := h/2 - len(lines)*basicfont.Face7x13.Height/2
		for _, l := range lines {
			f.text(centered(l, w, y, 1), l, f.fg, 1)
			y += basicfont.Face7x13.Height + 2
		}
	}
	if !f.marker.Empty() {
		f.s.Fill(f.marker, f.accent)
	}
}

func (f *Face) clockRect() image.Rectangle {
	s := "00:00:00"
	r := centered(s, f.s.Width(), 0, f.scale)
	return r.Add(image.Pt(0, f.s.Height()/2-r.Dy()))
}

// text renders s with basicfont into r, scaled by an integer factor.
func (f *Face) text(r image.Rectangle, s string, ink *image.Uniform, scale int) {
	face := basicfont.Face7x13
	tw := font.MeasureString(face, s).Ceil()
	src := image.NewRGBA(image.Rect(0, 0, tw, face.Height))
	draw.Draw(src, src.Bounds(), f.bg, image.Point{}, draw.Src)
	d := font.Drawer{
		Dst:  src,
		Src:  ink,
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(s)

	dst := image.Rect(r.Min.X, r.Min.Y, r.Min.X+tw*scale, r.Min.Y+face.Height*scale)
	f.s.Draw(dst, func(img draw.Image) {
		xdraw.NearestNeighbor.Scale(img, dst, src, src.Bounds(), xdraw.Src, nil)
	})
}

// centered is the box of s drawn at scale, centered horizontally in w at y.
func centered(s string, w, y, scale int) image.Rectangle {
	face := basicfont.Face7x13
	tw := font.MeasureString(face, s).Ceil() * scale
	x := (w - tw) / 2
	return image.Rect(x, y, x+tw, y+face.Height*scale)
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
