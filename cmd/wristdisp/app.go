package main

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"periph.io/x/conn/v3/physic"

	"wristdisp/internal/config"
	"wristdisp/internal/display"
	"wristdisp/internal/face"
	"wristdisp/internal/gfx"
	"wristdisp/internal/lcd"
	appLog "wristdisp/internal/log"
	"wristdisp/internal/schedule"
	"wristdisp/internal/scroll"
	"wristdisp/internal/touch"
	"wristdisp/internal/web"
)

// app holds every long-lived component wired from the config.
type app struct {
	conf *config.Config

	panel   lcd.Panel
	dev     *lcd.Dev    // nil unless the ST7789 is in use
	mem     *lcd.Memory // nil unless the memory panel is in use
	screen  *gfx.Screen
	ctl     *scroll.Controller
	adapter *display.Adapter
	face    *face.Face
	reader  touch.Reader
	sched   *schedule.Scheduler
}

// newApp builds the pipeline panel → adapter → screen → face. renderOnly
// forces the memory panel and the mock touch reader.
func newApp(conf *config.Config, renderOnly bool) (*app, error) {
	a := &app{conf: conf}
	if err := a.openPanel(renderOnly); err != nil {
		return nil, err
	}

	w, h := a.panel.Size()
	var err error
	a.screen, err = gfx.NewScreen(gfx.Options{
		Width:        w,
		Height:       h,
		BufferLines:  conf.Render.BufferLines,
		ReadyTimeout: conf.Render.FlushTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if conf.Scroll.Enabled {
		a.ctl, err = scroll.New(scroll.Options{
			Width:        w,
			VisibleLines: h,
			TotalLines:   a.panel.TotalLines(),
			Strip:        conf.Scroll.StripLines,
			Timeout:      conf.Render.FlushTimeout,
		}, a.screen, a.panel)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.adapter, err = display.New(display.Options{
		Panel:   a.panel,
		Scroll:  a.ctl,
		Timeout: conf.Render.FlushTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.adapter.Register(a.screen); err != nil {
		a.Close()
		return nil, err
	}

	a.face = face.New(a.screen, face.Options{Requester: a.adapter})
	a.face.Attach()

	driver := conf.Touch.Driver
	if renderOnly && driver != "none" {
		driver = "mock"
	}
	a.reader, err = touch.DefaultReader(touch.Options{
		Driver:    driver,
		I2CBus:    conf.Touch.I2CBus,
		I2CAddr:   uint16(conf.Touch.I2CAddr),
		EvdevPath: conf.Touch.EvdevPath,
		Width:     w,
		Height:    h,
	})
	if err != nil && !errors.Is(err, touch.ErrDisabled) {
		a.Close()
		return nil, err
	}

	entries := make([]schedule.Entry, 0, len(conf.Transitions))
	for _, t := range conf.Transitions {
		entries = append(entries, schedule.Entry{Spec: t.Schedule, Direction: t.Direction})
	}
	a.sched, err = schedule.New(a.adapter, entries)
	if err != nil {
		a.Close()
		return nil, err
	}

	appLog.Info("pipeline ready",
		"panel", a.panel,
		"scroll", conf.Scroll.Enabled,
		"touch", driver,
		"transitions", a.sched.Len(),
	)
	return a, nil
}

func (a *app) openPanel(renderOnly bool) error {
	p := a.conf.Panel
	if renderOnly || p.Driver == "memory" {
		m, err := lcd.NewMemory(p.Width, p.Height, p.TotalLines)
		if err != nil {
			return err
		}
		a.mem, a.panel = m, m
		return nil
	}
	d, err := lcd.Open(lcd.Pins{
		SPIPort:   p.SPIPort,
		SPISpeed:  physic.Frequency(p.SPISpeedHz) * physic.Hertz,
		DC:        p.DCPin,
		Reset:     p.ResetPin,
		Backlight: p.BacklightPin,
	}, &lcd.Opts{
		W:            p.Width,
		H:            p.Height,
		TotalLines:   p.TotalLines,
		ColumnOffset: p.ColumnOffset,
		RowOffset:    p.RowOffset,
		MADCTL:       byte(p.MADCTL),
		NoInvert:     p.NoInvert,
	})
	if err != nil {
		return err
	}
	a.dev, a.panel = d, d
	return nil
}

// preview is what /preview.png and -dump show: the emulated glass when
// there is one, else the canvas.
func (a *app) preview() web.Previewer {
	if a.mem != nil {
		return a.mem
	}
	return a.screen
}

// once renders a single frame.
func (a *app) once(ctx context.Context) {
	a.screen.Tick(ctx)
}

// run starts every loop and blocks until ctx is canceled and all of them
// have returned.
func (a *app) run(ctx context.Context) {
	var wg sync.WaitGroup
	wgGo(&wg, func() {
		if err := a.screen.Run(ctx, a.conf.Render.RefreshInterval); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("render loop stopped", err)
		}
	})
	if a.reader != nil {
		p := touch.NewPoller(a.reader, a.adapter.Touch(), a.conf.Touch.PollInterval)
		wgGo(&wg, func() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("touch poller stopped", err)
			}
		})
	}
	wgGo(&wg, func() { a.sched.Run(ctx) })
	if a.conf.Listen != "" {
		srv := web.NewServer(a.conf, a.adapter, a.preview())
		srv.SetSchedule(a.sched)
		wgGo(&wg, func() {
			if err := srv.Serve(ctx); err != nil {
				appLog.Error("HTTP server stopped", err)
			}
		})
	}
	wg.Wait()
}

// wgGo calls f in a new goroutine tracked by wg, like sync.WaitGroup.Go
// (Go 1.25+).
func wgGo(wg *sync.WaitGroup, f func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		f()
	}()
}

// dump writes the current preview as PNG.
func (a *app) dump(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, a.preview().Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close releases the touch device, puts the panel to sleep with the
// backlight off and halts it.
func (a *app) Close() {
	if a.reader != nil {
		if err := touch.Close(a.reader); err != nil {
			appLog.Error("touch close failed", err)
		}
	}
	if a.adapter != nil {
		if err := a.adapter.SetPower(false); err != nil && !errors.Is(err, display.ErrNoPower) {
			appLog.Error("panel sleep failed", err)
		}
	}
	if a.dev != nil {
		if err := a.dev.Close(); err != nil {
			appLog.Error("panel close failed", err)
		}
	}
}
