package device

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pcmeter/pcmeter/internal/frame"
)

// Identification of the Pico meter.
const (
	VendorID  uint16 = 0x2e8a
	ProductID uint16 = 0xc011
)

// AttachConfig selects and opens a device.
type AttachConfig struct {
	Variant string
	// Path of the device node; empty discovers a hidraw node by ID.
	Path      string
	VendorID  uint16
	ProductID uint16
	Baud      int
	Layout    frame.Layout
	Logger    *slog.Logger
}

// sysfsRoot is where hidraw class devices are listed.
var sysfsRoot = "/sys/class/hidraw"

// Attach opens the configured device and returns a connected session.
// Nothing is left open when it fails.
func Attach(cfg AttachConfig) (*Session, error) {
	variant, err := NewVariant(cfg.Variant, cfg.Layout)
	if err != nil {
		return nil, err
	}

	var t Transport
	switch variant.Name() {
	case VariantSerial:
		if cfg.Path == "" {
			return nil, fmt.Errorf("device: serial variant needs a device path")
		}
		t, err = OpenSerial(cfg.Path, cfg.Baud)
	default:
		path := cfg.Path
		if path == "" {
			path, err = FindHIDRaw(cfg.VendorID, cfg.ProductID)
			if err != nil {
				return nil, err
			}
		}
		t, err = os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			err = fmt.Errorf("device: open %s: %w", path, err)
		}
	}
	if err != nil {
		return nil, err
	}

	s, err := NewSession(t, variant, cfg.Logger)
	if err != nil {
		t.Close()
		return nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("device attached", "variant", variant.Name(), "report_size", variant.ReportSize())
	}
	return s, nil
}

// FindHIDRaw returns the /dev node of the first hidraw device whose
// HID_ID matches vendor and product.
func FindHIDRaw(vendor, product uint16) (string, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: no hidraw devices", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("device: list %s: %w", sysfsRoot, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	want := fmt.Sprintf(":%08X:%08X", vendor, product)
	for _, name := range names {
		uevent, err := os.ReadFile(filepath.Join(sysfsRoot, name, "device", "uevent"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}
			return "", fmt.Errorf("device: read uevent of %s: %w", name, err)
		}
		if id, ok := hidID(string(uevent)); ok && strings.HasSuffix(id, want) {
			return filepath.Join("/dev", name), nil
		}
	}
	return "", fmt.Errorf("%w: %04x:%04x", ErrNotFound, vendor, product)
}

// hidID extracts the "BUS:VENDOR:PRODUCT" value of a HID uevent file.
func hidID(uevent string) (string, bool) {
	for _, line := range strings.Split(uevent, "\n") {
		if v, ok := strings.CutPrefix(line, "HID_ID="); ok {
			return strings.ToUpper(strings.TrimSpace(v)), true
		}
	}
	return "", false
}
