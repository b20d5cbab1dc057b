package gfx

import "image"

// PointerState is the contact state reported by a pointer reader.
type PointerState uint8

const (
	Released PointerState = iota
	Pressed
)

func (p PointerState) String() string {
	if p == Pressed {
		return "pressed"
	}
	return "released"
}

// InputData is one pointer reading.
type InputData struct {
	Point image.Point
	State PointerState
}

// InputReader is polled once per tick. A reader that has buffered
// samples returns more=true and is called again in the same tick.
type InputReader interface {
	ReadInput() (d InputData, more bool)
}

// InputReaderFunc adapts a function to InputReader.
type InputReaderFunc func() (InputData, bool)

func (f InputReaderFunc) ReadInput() (InputData, bool) { return f() }

// InputHandler observes every pointer reading.
type InputHandler func(InputData)

// maxInputReads caps the reads per tick for a reader that never drains.
const maxInputReads = 8

// OnInput registers h to run for every pointer reading.
func (s *Screen) OnInput(h InputHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Pointer returns the most recent reading.
func (s *Screen) Pointer() InputData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointer
}

func (s *Screen) readInput() {
	s.mu.Lock()
	in := s.input
	handlers := append([]InputHandler(nil), s.handlers...)
	s.mu.Unlock()
	if in == nil || in.Reader == nil {
		return
	}

	for i := 0; i < maxInputReads; i++ {
		d, more := in.Reader.ReadInput()
		s.mu.Lock()
		s.pointer = d
		s.mu.Unlock()
		for _, h := range handlers {
			h(d)
		}
		if !more {
			return
		}
	}
}
