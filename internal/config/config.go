// Package config loads the options of pcmeterd and pcmeter-sim. Values come
// from defaults, then an optional YAML file, then PCMETER_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/pcmeter/pcmeter/internal/device"
	"github.com/pcmeter/pcmeter/internal/frame"
)

// ErrHelp is returned by the FromFlags functions when -h was given.
var ErrHelp = pflag.ErrHelp

// Config carries runtime options for pcmeterd.
type Config struct {
	Interval   time.Duration `yaml:"interval"`
	Variant    string        `yaml:"variant"`
	Device     string        `yaml:"device"`
	VendorID   uint16        `yaml:"vendor_id"`
	ProductID  uint16        `yaml:"product_id"`
	ReportSize int           `yaml:"report_size"`
	Layout     string        `yaml:"layout"`
	System     bool          `yaml:"system"`
	User       bool          `yaml:"user"`
	Baud       int           `yaml:"baud"`
	Workers    int           `yaml:"workers"`
	LogLevel   string        `yaml:"log_level"`

	// One-shot listing modes.
	ListComponents bool `yaml:"-"`
	ListDisks      bool `yaml:"-"`

	// File is the YAML file the values were read from, if any.
	File string `yaml:"-"`
	args []string
}

func Default() Config {
	return Config{
		Interval:   time.Second,
		Variant:    device.VariantHID,
		VendorID:   device.VendorID,
		ProductID:  device.ProductID,
		ReportSize: frame.ReportSize,
		Layout:     "count",
		System:     true,
		User:       true,
		Baud:       115200,
		Workers:    2,
		LogLevel:   "info",
	}
}

// FromFlags parses pcmeterd's command line and applies the file and
// environment beneath it.
func FromFlags(args []string) (Config, error) {
	fs := pflag.NewFlagSet("pcmeterd", pflag.ContinueOnError)
	def := Default()
	var (
		file     = fs.String("config", "", "YAML config file")
		interval = fs.IntP("interval", "i", int(def.Interval/time.Millisecond), "pause between transmissions (ms)")
		system   = fs.BoolP("system", "s", def.System, "send the system report")
		user     = fs.Bool("user", def.User, "send the user report (load, disks, temperatures)")
		comps    = fs.BoolP("components", "c", false, "print the components list with buffer positions and exit")
		disks    = fs.BoolP("disks", "d", false, "print the disks list with buffer positions and exit")
		variant  = fs.String("variant", def.Variant, "device variant: hid|serial")
		dev      = fs.String("device", "", "device path (default: discover hidraw by vendor/product)")
		layout   = fs.String("layout", def.Layout, "byte 4 of the system report: count|swap")
		baud     = fs.Int("baud", def.Baud, "serial line speed (0 leaves it unchanged)")
		workers  = fs.Int("workers", def.Workers, "worker pool size")
		level    = fs.String("log-level", def.LogLevel, "log level: debug|info|warn|error")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := def
	cfg.args = args
	if err := loadFile(*file, &cfg); err != nil {
		return Config{}, err
	}
	cfg.File = *file
	if err := hostEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "interval":
			cfg.Interval = time.Duration(*interval) * time.Millisecond
		case "system":
			cfg.System = *system
		case "user":
			cfg.User = *user
		case "variant":
			cfg.Variant = *variant
		case "device":
			cfg.Device = *dev
		case "layout":
			cfg.Layout = *layout
		case "baud":
			cfg.Baud = *baud
		case "workers":
			cfg.Workers = *workers
		case "log-level":
			cfg.LogLevel = *level
		}
	})
	cfg.ListComponents = *comps
	cfg.ListDisks = *disks
	return cfg, cfg.Validate()
}

// Reload reads the configuration again from the same arguments, picking up
// edits to the file and the environment.
func (c Config) Reload() (Config, error) {
	return FromFlags(c.args)
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.Variant != device.VariantHID && c.Variant != device.VariantSerial {
		errs = append(errs, fmt.Errorf("unknown variant %q", c.Variant))
	}
	if _, err := frame.ParseLayout(c.Layout); err != nil {
		errs = append(errs, err)
	}
	if c.ReportSize <= frame.DefaultLayout().PerCore || c.ReportSize > 256 {
		errs = append(errs, fmt.Errorf("report size %d out of range", c.ReportSize))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Baud < 0 {
		errs = append(errs, fmt.Errorf("negative baud rate %d", c.Baud))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// FrameLayout resolves Layout and ReportSize.
func (c Config) FrameLayout() frame.Layout {
	l, err := frame.ParseLayout(c.Layout)
	if err != nil {
		l = frame.DefaultLayout()
	}
	l.Size = c.ReportSize
	return l
}

// SimConfig carries runtime options for pcmeter-sim.
type SimConfig struct {
	Port          string        `yaml:"port"`
	Baud          int           `yaml:"baud"`
	Input         string        `yaml:"input"`
	Window        int           `yaml:"window"`
	MeterUpdate   time.Duration `yaml:"meter_update"`
	Staleness     time.Duration `yaml:"staleness"`
	AnimationTick time.Duration `yaml:"animation_tick"`
	MeterMax      int           `yaml:"meter_max"`
	LEDsPerMeter  int           `yaml:"leds_per_meter"`
	SkipSelfTest  bool          `yaml:"skip_self_test"`
	Headless      bool          `yaml:"headless"`
	LogLevel      string        `yaml:"log_level"`
}

// Sim input kinds.
const (
	InputLines  = "lines"
	InputFrames = "frames"
)

func DefaultSim() SimConfig {
	return SimConfig{
		Port:          "-",
		Input:         InputLines,
		Window:        20,
		MeterUpdate:   100 * time.Millisecond,
		Staleness:     2000 * time.Millisecond,
		AnimationTick: 100 * time.Millisecond,
		MeterMax:      228,
		LEDsPerMeter:  4,
		LogLevel:      "info",
	}
}

// SimFromFlags parses pcmeter-sim's command line.
func SimFromFlags(args []string) (SimConfig, error) {
	fs := pflag.NewFlagSet("pcmeter-sim", pflag.ContinueOnError)
	def := DefaultSim()
	var (
		file     = fs.String("config", "", "YAML config file")
		port     = fs.StringP("port", "p", def.Port, "tty or file to read from, - for stdin")
		baud     = fs.Int("baud", def.Baud, "serial line speed when port is a tty (0 leaves it unchanged)")
		input    = fs.String("input", def.Input, "input format: lines|frames")
		window   = fs.Int("window", def.Window, "readings averaged per meter")
		update   = fs.Duration("meter-update", def.MeterUpdate, "meter update period")
		stale    = fs.Duration("staleness", def.Staleness, "silence before the screensaver starts")
		anim     = fs.Duration("animation-tick", def.AnimationTick, "screensaver step period")
		meterMax = fs.Int("meter-max", def.MeterMax, "needle level at 100%")
		leds     = fs.Int("leds-per-meter", def.LEDsPerMeter, "LED strip pixels per meter")
		skip     = fs.Bool("skip-self-test", false, "do not sweep the needles on startup")
		headless = fs.Bool("headless", false, "log meter output instead of drawing the panel")
		level    = fs.String("log-level", def.LogLevel, "log level: debug|info|warn|error")
	)
	if err := fs.Parse(args); err != nil {
		return SimConfig{}, err
	}

	cfg := def
	if err := loadFile(*file, &cfg); err != nil {
		return SimConfig{}, err
	}
	if v := os.Getenv("PCMETER_DEVICE"); v != "" {
		cfg.Port = v
	}
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "baud":
			cfg.Baud = *baud
		case "input":
			cfg.Input = *input
		case "window":
			cfg.Window = *window
		case "meter-update":
			cfg.MeterUpdate = *update
		case "staleness":
			cfg.Staleness = *stale
		case "animation-tick":
			cfg.AnimationTick = *anim
		case "meter-max":
			cfg.MeterMax = *meterMax
		case "leds-per-meter":
			cfg.LEDsPerMeter = *leds
		case "skip-self-test":
			cfg.SkipSelfTest = *skip
		case "headless":
			cfg.Headless = *headless
		case "log-level":
			cfg.LogLevel = *level
		}
	})
	return cfg, cfg.Validate()
}

// Validate checks ranges and names.
func (c SimConfig) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.Input != InputLines && c.Input != InputFrames {
		errs = append(errs, fmt.Errorf("unknown input %q", c.Input))
	}
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be at least 1, got %d", c.Window))
	}
	for name, d := range map[string]time.Duration{
		"meter update":   c.MeterUpdate,
		"staleness":      c.Staleness,
		"animation tick": c.AnimationTick,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.MeterMax < 1 || c.LEDsPerMeter < 1 {
		errs = append(errs, fmt.Errorf("meter max and LEDs per meter must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLevel maps debug|info|warn|error onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger returns a text logger on w at the named level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	l, err := ParseLevel(level)
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func loadFile(path string, into any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func hostEnv(cfg *Config) error {
	if v := os.Getenv("PCMETER_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("config: PCMETER_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("PCMETER_DEVICE"); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv("PCMETER_VARIANT"); v != "" {
		cfg.Variant = strings.ToLower(v)
	}
	return nil
}

// parseInterval accepts a Go duration or a bare number of milliseconds.
func parseInterval(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
