// Command pcmeter-sim runs the meter board's firmware on the host, reading
// the line protocol (or raw reports) from a tty, file or stdin and drawing
// the needles and LED strip in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/config"
	"github.com/pcmeter/pcmeter/internal/device"
	"github.com/pcmeter/pcmeter/internal/firmware"
	"github.com/pcmeter/pcmeter/internal/frame"
	"github.com/pcmeter/pcmeter/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.SimFromFlags(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	// The panel owns the terminal, so only headless runs log to stderr.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Headless {
		logger = config.NewLogger(os.Stderr, cfg.LogLevel)
	}

	in, err := openInput(cfg.Port, cfg.Baud)
	if err != nil {
		return err
	}
	defer in.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	fwCfg := firmware.Config{
		Window:        cfg.Window,
		MeterUpdate:   cfg.MeterUpdate,
		Staleness:     cfg.Staleness,
		AnimationTick: cfg.AnimationTick,
		MeterMax:      cfg.MeterMax,
		LEDsPerMeter:  cfg.LEDsPerMeter,
		Layout:        frame.DefaultLayout(),
		Clock:         clock.Real(),
		Logger:        logger,
	}

	var out firmware.Actuator
	if cfg.Headless {
		out = ui.NewLogActuator(logger, cfg.LEDsPerMeter)
	} else {
		var opts []tea.ProgramOption
		if cfg.Port == "-" {
			opts = append(opts, tea.WithInput(nil))
		}
		prog := ui.NewProgram(ui.New("PC Meter (simulated)", cfg.MeterMax, cfg.LEDsPerMeter), opts...)
		out = ui.NewActuator(prog, cfg.LEDsPerMeter)
		fwCfg.OnUpdate = func(st firmware.Status) { prog.Send(ui.StatusMsg(st)) }

		g.Go(func() error {
			_, err := prog.Run()
			if err == nil {
				err = errQuit
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			prog.Quit()
			return nil
		})
	}

	fw := firmware.New(out, fwCfg)
	g.Go(func() error {
		if !cfg.SkipSelfTest {
			if err := fw.Startup(ctx); err != nil {
				return err
			}
		}
		logger.Info("firmware running", "port", cfg.Port, "input", cfg.Input, "window", cfg.Window)

		if cfg.Input == config.InputFrames {
			return fw.Run(ctx, nil, firmware.ReadFrames(ctx, in, frame.ReportSize))
		}
		src := firmware.NewStreamSource(in)
		go func() {
			if err := src.Err(); err != nil {
				logger.Warn("input closed", "error", err)
			}
		}()
		return fw.Run(ctx, src, nil)
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var errQuit = errors.New("panel closed")

// openInput opens the byte stream the firmware reads: stdin for "-", a
// tty in raw mode, or a plain file.
func openInput(port string, baud int) (io.ReadCloser, error) {
	if port == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fi, err := os.Stat(port)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeCharDevice != 0 {
		return device.OpenSerial(port, baud)
	}
	return os.Open(port)
}
