package firmware

import (
	"context"
	"errors"
	"io"
)

// ByteSource yields received bytes without blocking. ok is false when no
// byte is waiting.
type ByteSource interface {
	TryReadByte() (b byte, ok bool)
}

// StreamSource adapts a blocking reader, such as a tty or stdin, to a
// ByteSource. A goroutine reads ahead into a bounded queue.
type StreamSource struct {
	bytes chan byte
	done  chan struct{}
	err   error
}

// NewStreamSource starts reading r. The goroutine exits when r returns an
// error, so closing r releases it.
func NewStreamSource(r io.Reader) *StreamSource {
	s := &StreamSource{
		bytes: make(chan byte, 4*LineCapacity),
		done:  make(chan struct{}),
	}
	go s.read(r)
	return s
}

func (s *StreamSource) read(r io.Reader) {
	defer close(s.done)
	defer close(s.bytes)
	buf := make([]byte, LineCapacity)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			s.bytes <- b
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			return
		}
	}
}

func (s *StreamSource) TryReadByte() (byte, bool) {
	select {
	case b, ok := <-s.bytes:
		return b, ok
	default:
		return 0, false
	}
}

// Done is closed once the reader has hit EOF or an error. Bytes read
// before that remain available to TryReadByte.
func (s *StreamSource) Done() <-chan struct{} { return s.done }

// Err returns the read error that stopped the source, nil on EOF.
func (s *StreamSource) Err() error {
	<-s.done
	return s.err
}

// ReadFrames reads fixed-size reports from r until it fails or ctx is
// done. The channel is closed when reading stops.
func ReadFrames(ctx context.Context, r io.Reader, size int) <-chan []byte {
	out := make(chan []byte, 1)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			select {
			case out <- buf:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
