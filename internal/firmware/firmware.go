// Package firmware is the meter board's control loop: it decodes the host's
// line protocol, smooths each channel over a fixed window and drives the
// needles and LED strip, falling back to a sweep when the host goes quiet.
//
// A Firmware is not safe for concurrent use; it is polled from a single
// loop, the way the board's superloop runs.
package firmware

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/frame"
)

// Default timings.
const (
	DefaultMeterUpdate   = 100 * time.Millisecond
	DefaultStaleness     = 2000 * time.Millisecond
	DefaultAnimationTick = 100 * time.Millisecond
	DefaultPollInterval  = 5 * time.Millisecond
)

// Startup sweep pacing.
const (
	sweepUpStep   = 5 * time.Millisecond
	sweepDownStep = 15 * time.Millisecond
	sweepSettle   = 500 * time.Millisecond
)

// Config tunes a Firmware. Zero fields take the defaults above.
type Config struct {
	Window        int
	MeterUpdate   time.Duration
	Staleness     time.Duration
	AnimationTick time.Duration
	PollInterval  time.Duration
	MeterMax      int
	LEDsPerMeter  int
	// Layout locates the CPU and memory bytes of raw host frames.
	Layout frame.Layout
	Clock  clock.Clock
	Logger *slog.Logger
	// OnUpdate, if set, receives the loop state after every meter tick
	// and mode change.
	OnUpdate func(Status)
}

// Status is a snapshot of the loop's state.
type Status struct {
	Mode       Mode
	Raw        [Channels]int
	Smoothed   [Channels]int
	LastUpdate time.Time
	Lines      uint64
	Ignored    uint64
}

// Firmware owns every piece of board state.
type Firmware struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	receiver    LineReceiver
	store       *MetricStore
	smoother    *Smoother
	screensaver *Screensaver
	driver      *Driver

	lastMeter time.Time
	smoothed  [Channels]int
	lines     uint64
	ignored   uint64
}

// New builds the board state around out.
func New(out Actuator, cfg Config) *Firmware {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MeterUpdate <= 0 {
		cfg.MeterUpdate = DefaultMeterUpdate
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultStaleness
	}
	if cfg.AnimationTick <= 0 {
		cfg.AnimationTick = DefaultAnimationTick
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Layout.Size == 0 {
		cfg.Layout = frame.DefaultLayout()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Clock.Now()
	return &Firmware{
		cfg:         cfg,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		store:       NewMetricStore(now),
		smoother:    NewSmoother(cfg.Window),
		screensaver: NewScreensaver(cfg.Staleness, cfg.AnimationTick),
		driver:      NewDriver(out, cfg.MeterMax, cfg.LEDsPerMeter),
		lastMeter:   now,
	}
}

// Startup blanks the strip and sweeps both needles up and back down as a
// self test. It restarts the staleness and meter clocks when done.
func (f *Firmware) Startup(ctx context.Context) error {
	f.driver.Blank()
	sweep := func(pct int, step time.Duration) error {
		f.driver.Needle(CPU, pct)
		f.driver.Needle(Memory, pct)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.clock.After(step):
			return nil
		}
	}
	for pct := 0; pct < 100; pct++ {
		if err := sweep(pct, sweepUpStep); err != nil {
			return err
		}
	}
	for pct := 100; pct > 0; pct-- {
		if err := sweep(pct, sweepDownStep); err != nil {
			return err
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.clock.After(sweepSettle):
	}
	now := f.clock.Now()
	f.store.Touch(now)
	f.lastMeter = now
	f.logger.Info("meter self test complete")
	return nil
}

// Poll runs one superloop iteration: take at most one line from src,
// update the screensaver, then the meters if their period has elapsed.
func (f *Firmware) Poll(src ByteSource) {
	now := f.clock.Now()
	if line, ok := f.receive(src); ok {
		f.handleLine(line, now)
	}
	f.tick(now)
}

// ApplyFrame takes a raw host report in place of protocol lines. It
// reports false for anything but a system report.
func (f *Firmware) ApplyFrame(buf []byte) bool {
	cpu, mem, ok := frame.Parse(f.cfg.Layout, buf)
	if !ok {
		return false
	}
	now := f.clock.Now()
	f.store.Set(CPU, int(cpu))
	f.store.Set(Memory, int(mem))
	f.store.Touch(now)
	f.lines++
	f.tick(now)
	return true
}

// Run polls src every PollInterval until ctx is done. Reports arriving on
// frames are applied between polls; either input may be nil.
func (f *Firmware) Run(ctx context.Context, src ByteSource, frames <-chan []byte) error {
	for {
		f.Poll(src)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case buf, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if !f.ApplyFrame(buf) {
				f.ignored++
			}
		case <-f.clock.After(f.cfg.PollInterval):
		}
	}
}

// Status returns a snapshot of the loop state.
func (f *Firmware) Status() Status {
	return Status{
		Mode:       f.screensaver.Mode(),
		Raw:        f.store.Values(),
		Smoothed:   f.smoothed,
		LastUpdate: f.store.LastUpdate(),
		Lines:      f.lines,
		Ignored:    f.ignored,
	}
}

func (f *Firmware) receive(src ByteSource) (string, bool) {
	if src == nil {
		return "", false
	}
	for {
		b, ok := src.TryReadByte()
		if !ok {
			return "", false
		}
		if line, done := f.receiver.Feed(b); done {
			return line, true
		}
	}
}

// handleLine applies a terminated line. Any terminated line counts as
// contact with the host, including ones with an unknown tag.
func (f *Firmware) handleLine(line string, now time.Time) {
	f.lines++
	f.store.Touch(now)
	rec, ok := Decode(line)
	if !ok {
		f.ignored++
		return
	}
	ch, ok := rec.Channel()
	if !ok {
		f.ignored++
		f.logger.Debug("ignoring line", "tag", string(rec.Tag))
		return
	}
	f.store.Set(ch, rec.Value)
	f.logger.Debug("decoded line", "channel", ch, "value", rec.Value)
}

func (f *Firmware) tick(now time.Time) {
	if f.screensaver.Observe(now, f.store.LastUpdate()) {
		mode := f.screensaver.Mode()
		f.logger.Info("display mode changed", "mode", mode, "silent_for", now.Sub(f.store.LastUpdate()))
		if mode == Animating {
			f.driver.Blank()
		}
		f.notify()
	}

	if now.Sub(f.lastMeter) > f.cfg.MeterUpdate {
		f.smoothed = f.smoother.Update(f.store.Values())
		f.lastMeter = now
		if f.screensaver.Mode() == Active {
			f.driver.Show(f.smoothed)
		}
		f.notify()
	}

	if a, b, moved := f.screensaver.Step(now); moved {
		f.driver.Needle(CPU, a)
		f.driver.Needle(Memory, b)
	}
}

func (f *Firmware) notify() {
	if f.cfg.OnUpdate != nil {
		f.cfg.OnUpdate(f.Status())
	}
}
