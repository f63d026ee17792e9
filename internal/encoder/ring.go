package encoder

import "sync"

// stderrRingSize bounds how much encoder stderr is retained per
// stream. Oldest bytes are discarded first.
const stderrRingSize = 2000

// Ring is a bounded byte buffer for stderr capture. Appends past the
// capacity drop the oldest content, always keeping the most recent
// output for diagnosis.
type Ring struct {
	mu  sync.Mutex
	buf []byte
	max int
}

// NewRing creates a ring holding at most max bytes.
func NewRing(max int) *Ring {
	return &Ring{max: max}
}

// AppendLine adds a line of output, trimming from the front if needed.
func (r *Ring) AppendLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append(r.buf, line...)
	r.buf = append(r.buf, '\n')
	if len(r.buf) > r.max {
		r.buf = r.buf[len(r.buf)-r.max:]
	}
}

// String returns the retained output.
func (r *Ring) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buf)
}

// Reset clears the buffer.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
}
