package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/config"
	"github.com/pcmeter/pcmeter/internal/device"
	"github.com/pcmeter/pcmeter/internal/frame"
	"github.com/pcmeter/pcmeter/internal/model"
	"github.com/pcmeter/pcmeter/internal/scheduler"
	"github.com/pcmeter/pcmeter/internal/workqueue"
)

// retryFactor scales the interval into the pause between attach attempts.
const retryFactor = 10

type attachFunc func(device.AttachConfig) (*device.Session, error)

// daemon keeps one scheduler running against the meter, attaching again
// whenever the device goes away.
type daemon struct {
	source scheduler.Source
	pool   *workqueue.Pool
	clock  clock.Clock
	logger *slog.Logger
	attach attachFunc

	mu    sync.Mutex
	cfg   config.Config
	sched *scheduler.Scheduler
}

func newDaemon(cfg config.Config, source scheduler.Source, pool *workqueue.Pool, c clock.Clock, logger *slog.Logger) *daemon {
	return &daemon{
		source: source,
		pool:   pool,
		clock:  c,
		logger: logger,
		attach: device.Attach,
		cfg:    cfg,
	}
}

// run attaches, transmits until the session ends, and retries every
// retryFactor intervals until ctx is done.
func (d *daemon) run(ctx context.Context) error {
	for {
		err := d.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		cfg := d.config()
		wait := retryFactor * cfg.Interval
		d.logger.Warn("meter unavailable, retrying", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-d.clock.After(wait):
		}
	}
}

// session runs one attach-transmit-teardown pass.
func (d *daemon) session(ctx context.Context) error {
	cfg := d.config()
	sess, err := d.attach(device.AttachConfig{
		Variant:   cfg.Variant,
		Path:      cfg.Device,
		VendorID:  cfg.VendorID,
		ProductID: cfg.ProductID,
		Baud:      cfg.Baud,
		Layout:    cfg.FrameLayout(),
		Logger:    d.logger,
	})
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	sched, err := scheduler.New(sess, d.source, scheduler.Config{
		Interval: cfg.Interval,
		System:   cfg.System,
		User:     cfg.User,
		Pool:     d.pool,
		Clock:    d.clock,
		Logger:   d.logger,
	})
	if err == nil {
		err = sched.Start(ctx)
	}
	if err != nil {
		sess.Close()
		return err
	}
	d.setScheduler(sched)
	defer d.setScheduler(nil)

	select {
	case <-ctx.Done():
		sched.Stop()
	case <-sched.Done():
	}
	if err := sess.Close(); err != nil {
		d.logger.Warn("closing device", "error", err)
	}
	if err := sched.Err(); err != nil {
		return err
	}
	return errors.New("session ended")
}

// reload applies a new configuration. The interval takes effect on the
// running scheduler's next cycle; everything else on the next attach.
func (d *daemon) reload(next config.Config) {
	d.mu.Lock()
	d.cfg = next
	sched := d.sched
	d.mu.Unlock()

	if sched != nil {
		if err := sched.SetInterval(next.Interval); err != nil {
			d.logger.Warn("ignoring reloaded interval", "error", err)
		}
	}
	d.logger.Info("configuration reloaded", "interval", next.Interval, "file", next.File)
}

func (d *daemon) config() config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *daemon) setScheduler(s *scheduler.Scheduler) {
	d.mu.Lock()
	d.sched = s
	d.mu.Unlock()
}

func (d *daemon) current() *scheduler.Scheduler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched
}

func printComponents(w io.Writer, comps []model.Component) {
	for i, c := range comps {
		off := frame.ComponentOffset(i)
		if off < 0 {
			fmt.Fprintf(w, "(not sent): %s %.1f°C\n", c.Key, c.TempC)
			continue
		}
		fmt.Fprintf(w, "buf[%d]: %s %.1f°C\n", off, c.Key, c.TempC)
	}
}

func printDisks(w io.Writer, disks []model.Disk) {
	for i, dsk := range disks {
		off := frame.DiskOffset(i)
		if off < 0 {
			fmt.Fprintf(w, "(not sent): %s on %s, %d%% free\n", dsk.Device, dsk.Mountpoint, dsk.FreePercent)
			continue
		}
		fmt.Fprintf(w, "buf[%d]: %s on %s, %d%% free\n", off, dsk.Device, dsk.Mountpoint, dsk.FreePercent)
	}
}
