package scroll

// Ring is a position on a circular line (or column) space of fixed size.
// All offset arithmetic of the controller goes through Advance and Map so
// that wrap-around is handled in one place.
type Ring struct {
	size int
	pos  int
}

// NewRing returns a ring of the given size positioned at 0. size must be
// positive.
func NewRing(size int) Ring {
	if size <= 0 {
		panic("scroll: ring size must be positive")
	}
	return Ring{size: size}
}

func (r *Ring) Size() int { return r.size }
func (r *Ring) Pos() int  { return r.pos }

// Set moves the ring to p (taken modulo the size).
func (r *Ring) Set(p int) {
	r.pos = wrap(p, r.size)
}

// Advance moves the position by delta, which may be negative, and returns
// the new position.
func (r *Ring) Advance(delta int) int {
	r.pos = wrap(r.pos+delta, r.size)
	return r.pos
}

// Map returns where logical index i lands once the ring offset is applied.
func (r *Ring) Map(i int) int {
	return wrap(i+r.pos, r.size)
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
