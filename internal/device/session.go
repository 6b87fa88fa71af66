// Package device owns the link to the meter: the transport a report is
// written to, the variant that encodes reports for it, and the session
// that serializes writes and records disconnects.
package device

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrSizeMismatch reports a short write.
	ErrSizeMismatch = errors.New("device: short write")
	// ErrDisconnected is returned by Send once Disconnect has run.
	ErrDisconnected = errors.New("device: session disconnected")
	// ErrNotFound means no attached device matched.
	ErrNotFound = errors.New("device: no matching device")
)

// Transport is the write primitive of the underlying link.
type Transport interface {
	io.Writer
	io.Closer
}

// maxPayload bounds the staging buffer a session allocates.
const maxPayload = 256

// Session is one attached device. Writes go through a session-owned
// staging buffer under mu, and the connected flag is read and cleared
// under the same lock, so no write can start after Disconnect returns.
type Session struct {
	variant   Variant
	transport Transport
	logger    *slog.Logger

	mu        sync.Mutex
	connected bool
	buf       []byte
}

// NewSession wraps an open transport.
func NewSession(t Transport, v Variant, logger *slog.Logger) (*Session, error) {
	if t == nil || v == nil {
		return nil, errors.New("device: transport and variant are required")
	}
	if v.ReportSize() <= 0 || v.ReportSize() > maxPayload {
		return nil, fmt.Errorf("device: report size %d out of range", v.ReportSize())
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		variant:   v,
		transport: t,
		logger:    logger,
		connected: true,
		buf:       make([]byte, maxPayload),
	}, nil
}

// Variant returns the encoder chosen at attach time.
func (s *Session) Variant() Variant { return s.variant }

// Connected reports whether Disconnect has not run yet.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Send copies payload into the staging buffer and writes it in one call.
// It returns ErrDisconnected without writing when the session is torn
// down, and ErrSizeMismatch when the transport takes fewer bytes.
func (s *Session) Send(payload []byte) error {
	if len(payload) > len(s.buf) {
		return fmt.Errorf("device: payload of %d bytes exceeds %d", len(payload), len(s.buf))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrDisconnected
	}
	staged := s.buf[:len(payload)]
	copy(staged, payload)
	n, err := s.transport.Write(staged)
	if err != nil {
		return fmt.Errorf("device: write %s report: %w", s.variant.Name(), err)
	}
	if n != len(payload) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrSizeMismatch, n, len(payload))
	}
	return nil
}

// Disconnect clears the connected flag. It reports true only for the
// call that performed the transition.
func (s *Session) Disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.connected
	s.connected = false
	return was
}

// Close disconnects and releases the transport. Callers stop any periodic
// sender before closing.
func (s *Session) Close() error {
	s.Disconnect()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("device: close: %w", err)
	}
	s.logger.Debug("device session closed", "variant", s.variant.Name())
	return nil
}
