// Command pcmeterd samples CPU and memory load and sends it to a PC Meter
// once per interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/config"
	"github.com/pcmeter/pcmeter/internal/sampler"
	"github.com/pcmeter/pcmeter/internal/workqueue"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromFlags(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	smp := sampler.New(clk, logger)

	if cfg.ListComponents {
		printComponents(os.Stdout, smp.Components(ctx))
		return nil
	}
	if cfg.ListDisks {
		printDisks(os.Stdout, smp.Disks(ctx))
		return nil
	}

	pool := workqueue.NewPool(cfg.Workers, logger)
	defer pool.Close()

	d := newDaemon(cfg, smp, pool, clk, logger)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next, err := d.config().Reload()
				if err != nil {
					logger.Error("reload failed, keeping current configuration", "error", err)
					continue
				}
				d.reload(next)
			}
		}
	}()

	logger.Info("pcmeterd running",
		"variant", cfg.Variant,
		"device", cfg.Device,
		"interval", cfg.Interval,
		"system_report", cfg.System,
		"user_report", cfg.User,
		"config", cfg.File,
	)
	err = d.run(ctx)
	logger.Info("pcmeterd stopped")
	return err
}
