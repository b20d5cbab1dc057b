//go:build linux

package touch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Evdev is a single-finger reader for a Linux input device. It understands
// both legacy ABS_X/ABS_Y and multitouch ABS_MT_POSITION_* axes and commits
// a sample on every SYN_REPORT.
type Evdev struct {
	mu   sync.Mutex
	fd   int
	path string

	screenW, screenH int
	minX, maxX       int32
	minY, maxY       int32

	cur  Report
	last Report
}

// OpenEvdev opens path, or the first device that looks like a touch panel
// when path is empty, and scales its axes to a w×h panel.
func OpenEvdev(path string, w, h int) (*Evdev, error) {
	if path == "" {
		p, err := findTouchDevice()
		if err != nil {
			return nil, err
		}
		path = p
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("touch: open %s: %w", path, err)
	}
	e := &Evdev{fd: fd, path: path, screenW: w, screenH: h}
	e.minX, e.maxX = e.axisRange(absMTPositionX, absX, w)
	e.minY, e.maxY = e.axisRange(absMTPositionY, absY, h)
	return e, nil
}

func (e *Evdev) axisRange(mt, legacy, size int) (int32, int32) {
	lo, hi := int32(0), int32(size-1)
	if ai, err := ioctlGetAbs(e.fd, mt); err == nil {
		lo, hi = ai.Minimum, ai.Maximum
	} else if ai, err := ioctlGetAbs(e.fd, legacy); err == nil {
		lo, hi = ai.Minimum, ai.Maximum
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func (e *Evdev) Path() string { return e.path }

// Read drains pending events without blocking and returns the state at the
// last complete frame.
func (e *Evdev) Read(ctx context.Context) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return Report{}, errors.New("touch: evdev closed")
	}

	var ev inputEvent
	raw := (*[unsafe.Sizeof(inputEvent{})]byte)(unsafe.Pointer(&ev))[:]
	for {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		n, err := unix.Read(e.fd, raw)
		if errors.Is(err, unix.EAGAIN) {
			return e.last, nil
		}
		if err != nil {
			return Report{}, fmt.Errorf("touch: read %s: %w", e.path, err)
		}
		if n != len(raw) {
			return e.last, nil
		}
		e.handle(ev)
	}
}

func (e *Evdev) handle(ev inputEvent) {
	switch ev.Type {
	case evAbs:
		switch ev.Code {
		case absX, absMTPositionX:
			e.cur.X = scaleAxis(ev.Value, e.minX, e.maxX, e.screenW)
		case absY, absMTPositionY:
			e.cur.Y = scaleAxis(ev.Value, e.minY, e.maxY, e.screenH)
		case absMTTrackingID:
			e.cur.Contact = ev.Value >= 0
		}
	case evKey:
		if ev.Code == btnTouch {
			e.cur.Contact = ev.Value != 0
		}
	case evSyn:
		if ev.Code == synReport {
			e.last = e.cur
		}
	}
}

func (e *Evdev) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}

func scaleAxis(v, lo, hi int32, out int) int {
	if out <= 1 {
		return 0
	}
	v = min(max(v, lo), hi)
	return int(int64(v-lo) * int64(out-1) / int64(hi-lo))
}

func findTouchDevice() (string, error) {
	cands, _ := filepath.Glob("/dev/input/event*")
	for _, p := range cands {
		fd, err := unix.Open(p, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			continue
		}
		name, err := ioctlGetName(fd)
		_ = unix.Close(fd)
		if err != nil {
			continue
		}
		low := strings.ToLower(name)
		if strings.Contains(low, "touch") || strings.Contains(low, "cst8") || strings.Contains(low, "hynitron") {
			return p, nil
		}
	}
	if len(cands) > 0 {
		return cands[0], nil
	}
	return "", errors.New("touch: no input device under /dev/input")
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputAbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

const (
	evSyn = 0x00
	evKey = 0x01
	evAbs = 0x03

	synReport = 0
	btnTouch  = 0x014a

	absX            = 0x00
	absY            = 0x01
	absMTPositionX  = 0x35
	absMTPositionY  = 0x36
	absMTTrackingID = 0x39
)

// ioc expands the _IOC macro from linux/ioctl.h.
func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

const iocRead = 2

func eviocgname(n int) uintptr { return ioc(iocRead, 'E', 0x06, uintptr(n)) }

func eviocgabs(axis int) uintptr {
	return ioc(iocRead, 'E', 0x40+uintptr(axis), unsafe.Sizeof(inputAbsInfo{}))
}

func ioctlGetName(fd int) (string, error) {
	buf := make([]byte, 256)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgname(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return "", errno
	}
	return unix.ByteSliceToString(buf), nil
}

func ioctlGetAbs(fd, axis int) (inputAbsInfo, error) {
	var info inputAbsInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), eviocgabs(axis), uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return inputAbsInfo{}, errno
	}
	return info, nil
}
