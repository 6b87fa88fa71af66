package device

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pcmeter/pcmeter/internal/frame"
	"github.com/pcmeter/pcmeter/internal/model"
)

// recordingTransport keeps a copy of every write.
type recordingTransport struct {
	mu     sync.Mutex
	writes [][]byte
	short  int // when > 0, report this many bytes written
	err    error
	closed bool
}

func (r *recordingTransport) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	if r.short > 0 {
		return r.short, nil
	}
	return len(p), nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func newSession(t *testing.T, tr Transport) *Session {
	t.Helper()
	s, err := NewSession(tr, HID{Layout: frame.DefaultLayout()}, nil)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func TestSessionSendCopiesIntoStagingBuffer(t *testing.T) {
	tr := &recordingTransport{}
	s := newSession(t, tr)

	payload := frame.Build(frame.DefaultLayout(), model.UtilizationSample{CPU: 42, Memory: 17, OnlineCPUs: 8})
	if err := s.Send(payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	payload[2] = 99 // caller's buffer is not what the transport saw

	if len(tr.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(tr.writes))
	}
	got := tr.writes[0]
	if len(got) != frame.ReportSize || got[2] != 42 || got[3] != 17 || got[4] != 8 {
		t.Errorf("written report = %v", got)
	}
}

func TestSessionShortWrite(t *testing.T) {
	s := newSession(t, &recordingTransport{short: 10})
	err := s.Send(make([]byte, frame.ReportSize))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Send() error = %v, want ErrSizeMismatch", err)
	}
}

func TestSessionTransportError(t *testing.T) {
	boom := errors.New("EPIPE")
	s := newSession(t, &recordingTransport{err: boom})
	if err := s.Send([]byte{1}); !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want wrapped transport error", err)
	}
}

func TestSessionDisconnectOnce(t *testing.T) {
	tr := &recordingTransport{}
	s := newSession(t, tr)

	if !s.Disconnect() {
		t.Error("first Disconnect() = false")
	}
	if s.Disconnect() {
		t.Error("second Disconnect() = true")
	}
	if s.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if err := s.Send([]byte{1}); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Send() error = %v, want ErrDisconnected", err)
	}
	if len(tr.writes) != 0 {
		t.Errorf("transport saw %d writes after disconnect", len(tr.writes))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !tr.closed {
		t.Error("transport not closed")
	}
}

func TestNewSessionRejectsOversizedReports(t *testing.T) {
	l := frame.DefaultLayout()
	l.Size = 4096
	if _, err := NewSession(&recordingTransport{}, HID{Layout: l}, nil); err == nil {
		t.Error("NewSession() accepted a 4096 byte report")
	}
	if _, err := NewSession(nil, Serial{}, nil); err == nil {
		t.Error("NewSession() accepted a nil transport")
	}
}

func TestSerialEncoding(t *testing.T) {
	v, err := NewVariant(VariantSerial, frame.DefaultLayout())
	if err != nil {
		t.Fatalf("NewVariant() error = %v", err)
	}
	got := string(v.EncodeSystem(model.UtilizationSample{CPU: 100, Memory: 7}))
	if got != "C100\rM7\r" {
		t.Errorf("EncodeSystem() = %q", got)
	}
	if len(got) > v.ReportSize() {
		t.Errorf("payload %d bytes exceeds ReportSize %d", len(got), v.ReportSize())
	}
	if v.EncodeUser(model.UserSample{}) != nil {
		t.Error("serial variant produced a user report")
	}
}

func TestNewVariantUnknown(t *testing.T) {
	if _, err := NewVariant("bluetooth", frame.DefaultLayout()); err == nil {
		t.Error("NewVariant(bluetooth) succeeded")
	}
}

func TestFindHIDRaw(t *testing.T) {
	root := t.TempDir()
	write := func(name, uevent string) {
		dir := filepath.Join(root, name, "device")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("hidraw0", "DRIVER=hid-generic\nHID_ID=0003:0000046D:0000C52B\nHID_NAME=Logitech\n")
	write("hidraw3", "DRIVER=hid-generic\nHID_ID=0003:00002E8A:0000C011\nHID_NAME=PC Meter\n")
	if err := os.MkdirAll(filepath.Join(root, "hidraw1"), 0o755); err != nil {
		t.Fatal(err)
	}

	old := sysfsRoot
	sysfsRoot = root
	t.Cleanup(func() { sysfsRoot = old })

	path, err := FindHIDRaw(VendorID, ProductID)
	if err != nil {
		t.Fatalf("FindHIDRaw() error = %v", err)
	}
	if path != "/dev/hidraw3" {
		t.Errorf("FindHIDRaw() = %q, want /dev/hidraw3", path)
	}

	if _, err := FindHIDRaw(0x1234, 0x5678); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindHIDRaw(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestAttachSerialNeedsPath(t *testing.T) {
	if _, err := Attach(AttachConfig{Variant: VariantSerial}); err == nil {
		t.Error("Attach() without a path succeeded")
	}
}
