package touch

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"

	"wristdisp/internal/gfx"
	"wristdisp/internal/model"
)

func TestBufferLatestWins(t *testing.T) {
	var b Buffer
	if d, more := b.GetTouchPadInfo(); d.State != gfx.Released || d.Point != (image.Point{}) || more {
		t.Fatalf("zero buffer = %+v more=%v", d, more)
	}

	b.SetNewTouchPoint(1, 2, true)
	b.SetNewTouchPoint(65535, 300, true)
	d, more := b.GetTouchPadInfo()
	if d.Point != image.Pt(65535, 300) || d.State != gfx.Pressed {
		t.Errorf("GetTouchPadInfo() = %+v", d)
	}
	if more {
		t.Error("buffer reported more pending samples")
	}
}

func TestBufferPressRelease(t *testing.T) {
	var b Buffer
	b.SetNewTouchPoint(10, 20, true)
	if d, _ := b.ReadInput(); d.Point != image.Pt(10, 20) || d.State != gfx.Pressed {
		t.Errorf("after press = %+v", d)
	}
	b.SetNewTouchPoint(10, 20, false)
	if d, _ := b.ReadInput(); d.Point != image.Pt(10, 20) || d.State != gfx.Released {
		t.Errorf("after release = %+v", d)
	}
	if s := b.Sample(); s != (model.TouchSample{X: 10, Y: 20}) {
		t.Errorf("Sample() = %+v", s)
	}
}

// The writer always stores x == y, so a torn read would show x != y.
func TestBufferConcurrentNoTearing(t *testing.T) {
	var b Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20000; i++ {
			v := uint16(i)
			b.SetNewTouchPoint(v, v, i%2 == 0)
		}
	}()
	for i := 0; i < 20000; i++ {
		if s := b.Sample(); s.X != s.Y {
			t.Fatalf("torn sample %+v", s)
		}
	}
	wg.Wait()
}

func TestCST816SRead(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: CST816SAddr, W: []byte{regChipID}, R: []byte{0xB4}},
			{Addr: CST816SAddr, W: []byte{regGesture}, R: []byte{0x05, 0x01, 0x80, 0xEF, 0x00, 0x14}},
			{Addr: CST816SAddr, W: []byte{regGesture}, R: []byte{0x00, 0x00, 0x40, 0xEF, 0x00, 0x14}},
		},
	}
	c, err := NewCST816S(bus, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.ChipID() != 0xB4 {
		t.Errorf("ChipID() = %#x", c.ChipID())
	}

	r, err := c.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := Report{X: 239, Y: 20, Contact: true, Gesture: GestureSingleTap}
	if r != want {
		t.Errorf("Read() = %+v, want %+v", r, want)
	}

	r, err = c.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Contact {
		t.Errorf("zero finger count reported contact: %+v", r)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

func TestCST816SRejectsUnknownChip(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{{Addr: CST816SAddr, W: []byte{regChipID}, R: []byte{0x42}}},
	}
	if _, err := NewCST816S(bus, CST816SAddr); err == nil {
		t.Error("unknown chip id accepted")
	}
}

type recordingSink struct {
	got []model.TouchSample
}

func (s *recordingSink) SetNewTouchPoint(x, y uint16, contact bool) {
	s.got = append(s.got, model.TouchSample{X: x, Y: y, Contact: contact})
}

func TestPollerKeepsLastContactOnRelease(t *testing.T) {
	r := NewScript(
		Report{X: 10, Y: 20, Contact: true},
		Report{X: 0, Y: 0, Contact: false},
		Report{X: -5, Y: 70000, Contact: true},
	)
	sink := &recordingSink{}
	p := NewPoller(r, sink, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Poll(ctx); err != nil {
			t.Fatal(err)
		}
	}
	want := []model.TouchSample{
		{X: 10, Y: 20, Contact: true},
		{X: 10, Y: 20, Contact: false},
		{X: 0, Y: 65535, Contact: true},
	}
	for i := range want {
		if sink.got[i] != want[i] {
			t.Errorf("sample %d = %+v, want %+v", i, sink.got[i], want[i])
		}
	}
}

type failingReader struct{}

func (failingReader) Read(context.Context) (Report, error) { return Report{}, errors.New("bus error") }

func TestPollerSurfacesReadErrors(t *testing.T) {
	sink := &recordingSink{}
	p := NewPoller(failingReader{}, sink, 0)
	if err := p.Poll(context.Background()); err == nil {
		t.Error("Poll() hid the read error")
	}
	if len(sink.got) != 0 {
		t.Error("failed read reached the sink")
	}
}

func TestPollerIntoBuffer(t *testing.T) {
	var b Buffer
	p := NewPoller(NewScript(Report{X: 10, Y: 20, Contact: true}, Report{}), &b, 0)
	ctx := context.Background()

	_ = p.Poll(ctx)
	if d, _ := b.GetTouchPadInfo(); d.State != gfx.Pressed || d.Point != image.Pt(10, 20) {
		t.Errorf("pressed poll = %+v", d)
	}
	_ = p.Poll(ctx)
	if d, _ := b.GetTouchPadInfo(); d.State != gfx.Released || d.Point != image.Pt(10, 20) {
		t.Errorf("released poll = %+v", d)
	}
}

func TestMockLoops(t *testing.T) {
	m := NewMock(240, 240)
	ctx := context.Background()
	first, _ := m.Read(ctx)
	if !first.Contact || first.X != 60 || first.Y != 60 {
		t.Errorf("first mock report = %+v", first)
	}
	for i := 1; i < len(m.script); i++ {
		_, _ = m.Read(ctx)
	}
	again, _ := m.Read(ctx)
	if again != first {
		t.Errorf("mock did not loop: %+v", again)
	}
}

func TestDefaultReader(t *testing.T) {
	if _, err := DefaultReader(Options{Driver: "none"}); !errors.Is(err, ErrDisabled) {
		t.Errorf("none: err = %v", err)
	}
	if _, err := DefaultReader(Options{Driver: "bogus"}); err == nil {
		t.Error("unknown driver accepted")
	}
	r, err := DefaultReader(Options{Driver: "mock", Width: 240, Height: 240})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*Mock); !ok {
		t.Errorf("mock driver returned %T", r)
	}
	if err := Close(r); err != nil {
		t.Error(err)
	}
}
