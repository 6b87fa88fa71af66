// Package workqueue runs short work items on a small shared pool of
// goroutines and offers delayed items that reschedule themselves.
package workqueue

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pcmeter/pcmeter/internal/clock"
)

// Pool executes queued functions on a fixed set of workers.
type Pool struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines (at least one).
func NewPool(workers int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if workers < 1 {
		workers = 1
	}
	p := &Pool{logger: logger}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Queue appends fn to the queue. It returns false once the pool is closed.
func (p *Pool) Queue(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.queue = append(p.queue, fn)
	p.cond.Signal()
	return true
}

// Close stops accepting work, lets the workers drain the queue and waits
// for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(fn)
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("work item panicked", "panic", r)
		}
	}()
	fn()
}

// DelayedWork is a function queued on a Pool after a delay. At most one
// instance is ever pending or running: Schedule is a no-op while an
// instance is pending, and a Schedule issued from inside the running
// function only arms the timer after the function returns.
type DelayedWork struct {
	pool  *Pool
	clock clock.Clock
	fn    func()

	mu       sync.Mutex
	idle     *sync.Cond
	timer    *clock.Timer
	pending  bool
	running  bool
	canceled bool
	rearm    time.Duration
	hasRearm bool
}

// NewDelayedWork binds fn to a pool. Nothing runs until Schedule.
func NewDelayedWork(pool *Pool, c clock.Clock, fn func()) *DelayedWork {
	w := &DelayedWork{pool: pool, clock: c, fn: fn}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Schedule queues the function to run after d. It reports false when an
// instance is already pending or the work has been canceled.
func (w *DelayedWork) Schedule(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.canceled || w.pending || w.hasRearm {
		return false
	}
	if w.running {
		w.rearm, w.hasRearm = d, true
		return true
	}
	w.armLocked(d)
	return true
}

// CancelSync stops any pending instance and waits for a running one to
// return. The work never runs again afterwards. It must not be called
// from the work function itself.
func (w *DelayedWork) CancelSync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.canceled = true
	w.hasRearm = false
	if w.timer != nil && w.timer.Stop() {
		w.timer = nil
		w.pending = false
	}
	for w.pending || w.running {
		w.idle.Wait()
	}
}

// Canceled reports whether CancelSync has been called.
func (w *DelayedWork) Canceled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canceled
}

func (w *DelayedWork) armLocked(d time.Duration) {
	w.pending = true
	w.timer = w.clock.AfterFunc(d, w.fire)
}

func (w *DelayedWork) fire() {
	w.mu.Lock()
	w.timer = nil
	if w.canceled {
		w.settleLocked()
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if !w.pool.Queue(w.run) {
		w.mu.Lock()
		w.settleLocked()
		w.mu.Unlock()
	}
}

func (w *DelayedWork) run() {
	w.mu.Lock()
	if w.canceled {
		w.settleLocked()
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		if w.hasRearm && !w.canceled {
			w.armLocked(w.rearm)
		}
		w.hasRearm = false
		w.idle.Broadcast()
		w.mu.Unlock()
	}()
	w.fn()
}

func (w *DelayedWork) settleLocked() {
	w.pending = false
	w.idle.Broadcast()
}
