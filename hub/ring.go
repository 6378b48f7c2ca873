package hub

// ring is a fixed-capacity backlog of the most recent messages on a channel.
type ring struct {
	buf   []Message
	start int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Message, capacity)}
}

func (r *ring) append(msg Message) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = msg
		r.count++
		return
	}
	r.buf[r.start] = msg
	r.start = (r.start + 1) % len(r.buf)
}

// snapshot returns the retained messages oldest-first.
func (r *ring) snapshot() []Message {
	out := make([]Message, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
