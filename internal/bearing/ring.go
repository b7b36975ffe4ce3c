package bearing

// Ring is a fixed-capacity circular buffer that keeps the most recent values.
type Ring struct {
	buf   []float64
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity values.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends a value, evicting the oldest when full.
func (r *Ring) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Values returns a copy of the stored values, oldest first.
func (r *Ring) Values() []float64 {
	if r.count == 0 {
		return nil
	}
	out := make([]float64, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	n := copy(out, r.buf[start:min(start+r.count, len(r.buf))])
	copy(out[n:], r.buf[:r.count-n])
	return out
}
