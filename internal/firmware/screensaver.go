package firmware

import (
	"fmt"
	"time"
)

// Mode says whether the meters show telemetry or the idle sweep.
type Mode int

const (
	Active Mode = iota
	Animating
)

func (m Mode) String() string {
	switch m {
	case Active:
		return "active"
	case Animating:
		return "animating"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Screensaver switches to an opposed needle sweep when the host goes
// quiet and back as soon as a line is decoded.
type Screensaver struct {
	timeout time.Duration
	tick    time.Duration

	mode     Mode
	pos      int
	step     int
	lastStep time.Time
}

// NewScreensaver returns a screensaver in Active mode.
func NewScreensaver(timeout, tick time.Duration) *Screensaver {
	return &Screensaver{timeout: timeout, tick: tick}
}

// Mode returns the current mode.
func (s *Screensaver) Mode() Mode { return s.mode }

// Observe updates the mode from the time of the last decoded line and
// reports whether it changed.
func (s *Screensaver) Observe(now, lastUpdate time.Time) bool {
	stale := now.Sub(lastUpdate) > s.timeout
	switch {
	case s.mode == Active && stale:
		s.mode = Animating
		s.pos, s.step = 0, 0
		s.lastStep = now
		return true
	case s.mode == Animating && !stale:
		s.mode = Active
		return true
	}
	return false
}

// Step advances the sweep once per tick while Animating. a and b are the
// two needle positions, b mirroring a; moved is false when no tick has
// elapsed or the screensaver is not running.
func (s *Screensaver) Step(now time.Time) (a, b int, moved bool) {
	if s.mode != Animating || now.Sub(s.lastStep) <= s.tick {
		return 0, 0, false
	}
	s.lastStep = now
	a, b = s.pos, 100-s.pos

	switch s.pos {
	case 100:
		s.step = -1
	case 0:
		s.step = 1
	}
	s.pos += s.step
	return a, b, true
}
