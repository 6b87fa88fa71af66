// Package scheduler drives the periodic sample-and-transmit cycle of the
// host daemon.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/device"
	"github.com/pcmeter/pcmeter/internal/model"
	"github.com/pcmeter/pcmeter/internal/workqueue"
)

// DefaultInterval is the pause between two transmissions.
const DefaultInterval = time.Second

// State is the phase the periodic task is in.
type State int32

const (
	Idle State = iota
	Sampling
	Transmitting
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Transmitting:
		return "transmitting"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Source produces the figures sent each cycle.
type Source interface {
	Prime(ctx context.Context) error
	Sample(ctx context.Context) (model.UtilizationSample, error)
	User(ctx context.Context) model.UserSample
}

// Link is the device session the scheduler writes to.
type Link interface {
	Connected() bool
	Send(payload []byte) error
	Disconnect() bool
	Variant() device.Variant
}

// Config tunes a Scheduler.
type Config struct {
	// Interval between cycles; zero means DefaultInterval.
	Interval time.Duration
	// System and User select which reports are sent each cycle.
	System bool
	User   bool
	// Pool runs the cycles. Required.
	Pool   *workqueue.Pool
	Clock  clock.Clock
	Logger *slog.Logger
}

// Stats counts what the scheduler has done so far.
type Stats struct {
	Cycles     uint64
	Sent       uint64
	Mismatched uint64
	Skipped    uint64
}

// Scheduler samples, encodes and transmits once per interval on a shared
// pool. The cycle requeues itself until it observes a disconnect.
type Scheduler struct {
	link   Link
	source Source
	cfg    Config
	logger *slog.Logger
	work   *workqueue.DelayedWork

	ctx      context.Context
	interval atomic.Int64
	state    atomic.Int32

	cycles, sent, mismatched, skipped atomic.Uint64

	finishOnce sync.Once
	done       chan struct{}
	err        error
}

// New validates the configuration. Nothing runs until Start.
func New(link Link, source Source, cfg Config) (*Scheduler, error) {
	if link == nil || source == nil {
		return nil, errors.New("scheduler: link and source are required")
	}
	if cfg.Pool == nil {
		return nil, errors.New("scheduler: Pool is required")
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("scheduler: negative interval %v", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		link:   link,
		source: source,
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    context.Background(),
		done:   make(chan struct{}),
	}
	s.interval.Store(int64(cfg.Interval))
	s.work = workqueue.NewDelayedWork(cfg.Pool, cfg.Clock, s.cycle)
	return s, nil
}

// Start takes the baseline snapshot and queues the first cycle one
// interval from now. ctx is passed to the sampler on every cycle; it does
// not stop the scheduler, Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.source.Prime(ctx); err != nil {
		return fmt.Errorf("scheduler: prime sampler: %w", err)
	}
	s.ctx = ctx
	s.setState(Sleeping)
	if !s.work.Schedule(s.Interval()) {
		return errors.New("scheduler: already started or stopped")
	}
	s.logger.Info("transmission scheduler started", "interval", s.Interval(), "variant", s.link.Variant().Name())
	return nil
}

// SetInterval changes the pause used from the next requeue on.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %v", d)
	}
	if old := time.Duration(s.interval.Swap(int64(d))); old != d {
		s.logger.Info("transmission interval changed", "from", old, "to", d)
	}
	return nil
}

// Interval returns the pause currently in effect.
func (s *Scheduler) Interval() time.Duration { return time.Duration(s.interval.Load()) }

// State returns the phase of the task.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Stop marks the link disconnected, then waits for an in-flight cycle to
// return. No transmission starts after Stop returns, so the caller may
// release the device.
func (s *Scheduler) Stop() {
	s.link.Disconnect()
	s.work.CancelSync()
	s.finish(nil)
}

// Done is closed once the task has exited, by Stop or by losing the link.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Err returns the transport error that ended the task, if any. Valid
// after Done is closed.
func (s *Scheduler) Err() error {
	<-s.done
	return s.err
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Cycles:     s.cycles.Load(),
		Sent:       s.sent.Load(),
		Mismatched: s.mismatched.Load(),
		Skipped:    s.skipped.Load(),
	}
}

func (s *Scheduler) cycle() {
	if !s.link.Connected() {
		s.finish(nil)
		return
	}
	s.cycles.Add(1)

	s.setState(Sampling)
	sample, err := s.source.Sample(s.ctx)
	if err != nil {
		s.skipped.Add(1)
		s.logger.Warn("sample failed, skipping cycle", "error", err)
		s.requeue()
		return
	}

	variant := s.link.Variant()
	if s.cfg.System {
		if !s.transmit("system", variant.EncodeSystem(sample)) {
			return
		}
	}
	if s.cfg.User {
		if payload := variant.EncodeUser(s.source.User(s.ctx)); payload != nil {
			if !s.transmit("user", payload) {
				return
			}
		}
	}
	s.logger.Debug("cycle complete", "cpu", sample.CPU, "memory", sample.Memory, "online_cpus", sample.OnlineCPUs)
	s.requeue()
}

// transmit sends one report. It returns false when the task must end.
func (s *Scheduler) transmit(kind string, payload []byte) bool {
	s.setState(Transmitting)
	err := s.link.Send(payload)
	switch {
	case err == nil:
		s.sent.Add(1)
		return true
	case errors.Is(err, device.ErrDisconnected):
		s.finish(nil)
		return false
	case errors.Is(err, device.ErrSizeMismatch):
		s.mismatched.Add(1)
		s.logger.Warn("report size mismatch", "report", kind, "error", err)
		s.requeue()
		return false
	default:
		s.logger.Error("device write failed, dropping link", "report", kind, "error", err)
		s.link.Disconnect()
		s.finish(err)
		return false
	}
}

func (s *Scheduler) requeue() {
	if !s.link.Connected() {
		s.finish(nil)
		return
	}
	s.setState(Sleeping)
	s.work.Schedule(s.Interval())
}

func (s *Scheduler) finish(err error) {
	s.finishOnce.Do(func() {
		s.err = err
		s.setState(Stopped)
		close(s.done)
		s.logger.Info("transmission scheduler stopped", "cycles", s.cycles.Load(), "sent", s.sent.Load())
	})
}

func (s *Scheduler) setState(st State) { s.state.Store(int32(st)) }
