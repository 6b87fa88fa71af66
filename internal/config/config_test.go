package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pcmeter/pcmeter/internal/frame"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcmeter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromFlagsDefaults(t *testing.T) {
	cfg, err := FromFlags(nil)
	if err != nil {
		t.Fatalf("FromFlags() error = %v", err)
	}
	if cfg.Interval != time.Second || cfg.Variant != "hid" || !cfg.System || cfg.Workers != 2 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.FrameLayout() != frame.DefaultLayout() {
		t.Errorf("FrameLayout() = %+v", cfg.FrameLayout())
	}
}

func TestFromFlagsPrecedence(t *testing.T) {
	path := writeFile(t, "interval: 3s\nvariant: serial\ndevice: /dev/ttyACM0\nlayout: swap\nworkers: 4\n")

	tests := []struct {
		name string
		args []string
		env  map[string]string
		want func(Config) bool
	}{
		{
			name: "file over defaults",
			args: []string{"--config", path},
			want: func(c Config) bool {
				return c.Interval == 3*time.Second && c.Variant == "serial" && c.Workers == 4 &&
					c.FrameLayout().Field == frame.ExtraSwap
			},
		},
		{
			name: "env over file",
			args: []string{"--config", path},
			env:  map[string]string{"PCMETER_INTERVAL": "250", "PCMETER_DEVICE": "/dev/ttyUSB1"},
			want: func(c Config) bool { return c.Interval == 250*time.Millisecond && c.Device == "/dev/ttyUSB1" },
		},
		{
			name: "flags over env",
			args: []string{"--config", path, "-i", "500", "--variant", "hid"},
			env:  map[string]string{"PCMETER_INTERVAL": "2s"},
			want: func(c Config) bool { return c.Interval == 500*time.Millisecond && c.Variant == "hid" },
		},
		{
			name: "short listing flags",
			args: []string{"-c", "-d", "-s=false"},
			want: func(c Config) bool { return c.ListComponents && c.ListDisks && !c.System },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := FromFlags(tt.args)
			if err != nil {
				t.Fatalf("FromFlags() error = %v", err)
			}
			if !tt.want(cfg) {
				t.Errorf("config = %+v", cfg)
			}
		})
	}
}

func TestFromFlagsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero interval", []string{"-i", "0"}},
		{"unknown variant", []string{"--variant", "bluetooth"}},
		{"unknown layout", []string{"--layout", "gpu"}},
		{"no workers", []string{"--workers", "0"}},
		{"bad level", []string{"--log-level", "loud"}},
		{"missing file", []string{"--config", "/nonexistent/pcmeter.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromFlags(tt.args); err == nil {
				t.Errorf("FromFlags(%v) succeeded", tt.args)
			}
		})
	}
}

func TestFromFlagsHelp(t *testing.T) {
	if _, err := FromFlags([]string{"-h"}); !errors.Is(err, ErrHelp) {
		t.Errorf("FromFlags(-h) error = %v, want ErrHelp", err)
	}
}

func TestReloadPicksUpFileEdits(t *testing.T) {
	path := writeFile(t, "interval: 1s\n")
	cfg, err := FromFlags([]string{"--config", path})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("interval: 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	next, err := cfg.Reload()
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if next.Interval != 5*time.Second {
		t.Errorf("Interval after reload = %v, want 5s", next.Interval)
	}
	if next.File != path {
		t.Errorf("File = %q", next.File)
	}
}

func TestSimFromFlags(t *testing.T) {
	path := writeFile(t, "window: 10\nstaleness: 5s\nheadless: true\n")
	cfg, err := SimFromFlags([]string{"--config", path, "-p", "/dev/ttyACM0", "--input", "frames"})
	if err != nil {
		t.Fatalf("SimFromFlags() error = %v", err)
	}
	if cfg.Window != 10 || cfg.Staleness != 5*time.Second || !cfg.Headless {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Port != "/dev/ttyACM0" || cfg.Input != InputFrames || cfg.MeterMax != 228 {
		t.Errorf("flag values not applied: %+v", cfg)
	}

	if _, err := SimFromFlags([]string{"--window", "0"}); err == nil {
		t.Error("window 0 accepted")
	}
	if _, err := SimFromFlags([]string{"--input", "morse"}); err == nil {
		t.Error("unknown input accepted")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", s, err)
		}
	}
	if NewLogger(os.Stderr, "nonsense") == nil {
		t.Error("NewLogger returned nil")
	}
}
