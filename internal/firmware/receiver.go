package firmware

// LineCapacity is the size of the receive buffer, terminator slot included.
const LineCapacity = 32

// Terminator ends a protocol line.
const Terminator = '\r'

// LineReceiver assembles bytes into terminated lines. Bytes past
// LineCapacity-1 overwrite the last slot, so an overlong line is truncated
// rather than overrunning the buffer. A partial line survives across calls.
type LineReceiver struct {
	buf [LineCapacity]byte
	n   int
}

// Feed accepts one byte. It returns the completed line and true when b is
// the terminator; the returned string does not alias the buffer.
func (r *LineReceiver) Feed(b byte) (string, bool) {
	if b == Terminator {
		line := string(r.buf[:r.n])
		r.n = 0
		return line, true
	}
	r.buf[r.n] = b
	r.n++
	if r.n >= LineCapacity {
		r.n = LineCapacity - 1
	}
	return "", false
}

// Pending returns how many bytes of an unterminated line are buffered.
func (r *LineReceiver) Pending() int { return r.n }

