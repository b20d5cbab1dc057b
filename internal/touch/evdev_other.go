//go:build !linux

package touch

import (
	"context"
	"errors"
)

// Evdev is only implemented on Linux.
type Evdev struct{}

func OpenEvdev(path string, w, h int) (*Evdev, error) {
	return nil, errors.New("touch: evdev is only available on linux")
}

func (e *Evdev) Read(context.Context) (Report, error) {
	return Report{}, errors.New("touch: evdev is only available on linux")
}

func (e *Evdev) Path() string { return "" }

func (e *Evdev) Close() error { return nil }
