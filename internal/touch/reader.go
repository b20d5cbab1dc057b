package touch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	appLog "wristdisp/internal/log"
)

// Report is one reading from a touch controller, in panel coordinates.
type Report struct {
	X, Y    int
	Contact bool
	Gesture Gesture
}

// Reader abstracts how touch reports are obtained, so the poller works the
// same over I2C, evdev or the scripted mock.
type Reader interface {
	Read(ctx context.Context) (Report, error)
}

// Sink receives samples; *Buffer is the usual one.
type Sink interface {
	SetNewTouchPoint(x, y uint16, contact bool)
}

// Options selects and configures a reader.
type Options struct {
	// Driver is one of "cst816s", "evdev", "mock" or "none".
	Driver    string
	I2CBus    string
	I2CAddr   uint16
	EvdevPath string
	Width     int
	Height    int
}

// ErrDisabled is returned by DefaultReader when touch input is turned off.
var ErrDisabled = errors.New("touch: input disabled")

// DefaultReader returns the reader the program should use. A hardware
// reader that fails to open falls back to the mock so the rest of the
// program keeps running without a panel attached.
func DefaultReader(opts Options) (Reader, error) {
	switch opts.Driver {
	case "none":
		return nil, ErrDisabled
	case "mock", "":
		return NewMock(opts.Width, opts.Height), nil
	case "cst816s":
		if runtime.GOOS != "linux" {
			appLog.Warn("touch: cst816s unavailable on this platform, using mock", "goos", runtime.GOOS)
			return NewMock(opts.Width, opts.Height), nil
		}
		r, err := OpenCST816S(opts.I2CBus, opts.I2CAddr)
		if err != nil {
			appLog.Error("touch: cst816s open failed, using mock", err, "bus", opts.I2CBus)
			return NewMock(opts.Width, opts.Height), nil
		}
		return r, nil
	case "evdev":
		r, err := OpenEvdev(opts.EvdevPath, opts.Width, opts.Height)
		if err != nil {
			appLog.Error("touch: evdev open failed, using mock", err, "path", opts.EvdevPath)
			return NewMock(opts.Width, opts.Height), nil
		}
		return r, nil
	default:
		return nil, fmt.Errorf("touch: unknown driver %q", opts.Driver)
	}
}

// Close releases r if it holds a device.
func Close(r Reader) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Poller moves reports from a Reader into a Sink at a fixed interval.
type Poller struct {
	r        Reader
	sink     Sink
	interval time.Duration

	lastX, lastY uint16
	failures     int
}

func NewPoller(r Reader, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	return &Poller{r: r, sink: sink, interval: interval}
}

// Poll performs one read. A released report keeps the coordinates of the
// last contact, which is where the graphics host expects the release.
func (p *Poller) Poll(ctx context.Context) error {
	rep, err := p.r.Read(ctx)
	if err != nil {
		return err
	}
	if rep.Contact {
		p.lastX, p.lastY = clampCoord(rep.X), clampCoord(rep.Y)
	}
	p.sink.SetNewTouchPoint(p.lastX, p.lastY, rep.Contact)
	return nil
}

// Run polls until ctx is canceled. Read errors are logged and polling
// continues; the first failure of a streak is logged at error level.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.failures++
			if p.failures == 1 {
				appLog.Error("touch: read failed", err)
			} else {
				appLog.Debug("touch: read failed", "err", err, "streak", p.failures)
			}
			continue
		}
		if p.failures > 0 {
			appLog.Info("touch: reads recovered", "after", p.failures)
			p.failures = 0
		}
	}
}

func clampCoord(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	}
	return uint16(v)
}
