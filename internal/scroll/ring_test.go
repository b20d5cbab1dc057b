package scroll

import "testing"

func TestRingAdvanceClosed(t *testing.T) {
	r := NewRing(240)
	r.Set(17)
	start := r.Pos()
	for i := 0; i < 60; i++ {
		r.Advance(4)
	}
	if r.Pos() != start {
		t.Errorf("after 60 strips of 4 on 240 lines pos = %d, want %d", r.Pos(), start)
	}
	for i := 0; i < 60; i++ {
		r.Advance(-4)
	}
	if r.Pos() != start {
		t.Errorf("after 60 reverse strips pos = %d, want %d", r.Pos(), start)
	}
}

func TestRingWrap(t *testing.T) {
	tests := []struct {
		start, delta, want int
	}{
		{0, 4, 4},
		{318, 4, 2},
		{2, -4, 318},
		{0, -320, 0},
		{0, 960 + 5, 5},
		{10, -645, 5},
	}
	for _, tt := range tests {
		r := NewRing(320)
		r.Set(tt.start)
		if got := r.Advance(tt.delta); got != tt.want {
			t.Errorf("Advance(%d) from %d = %d, want %d", tt.delta, tt.start, got, tt.want)
		}
	}
}

func TestRingMap(t *testing.T) {
	r := NewRing(320)
	r.Set(300)
	if got := r.Map(0); got != 300 {
		t.Errorf("Map(0) = %d", got)
	}
	if got := r.Map(25); got != 5 {
		t.Errorf("Map(25) = %d", got)
	}
	if got := r.Map(-1); got != 299 {
		t.Errorf("Map(-1) = %d", got)
	}
}

func TestRingSetNegative(t *testing.T) {
	r := NewRing(240)
	r.Set(-1)
	if r.Pos() != 239 {
		t.Errorf("Set(-1) pos = %d", r.Pos())
	}
}
