package device

import (
	"fmt"
	"strconv"

	"github.com/pcmeter/pcmeter/internal/frame"
	"github.com/pcmeter/pcmeter/internal/model"
)

// Variant encodes samples for one kind of meter hardware. It is chosen
// once when the device is attached.
type Variant interface {
	Name() string
	// ReportSize is the largest payload the variant produces.
	ReportSize() int
	EncodeSystem(s model.UtilizationSample) []byte
	// EncodeUser returns nil when the hardware has no user report.
	EncodeUser(u model.UserSample) []byte
}

// Variant names accepted by NewVariant.
const (
	VariantHID    = "hid"
	VariantSerial = "serial"
)

// NewVariant returns the encoder registered under name.
func NewVariant(name string, layout frame.Layout) (Variant, error) {
	switch name {
	case VariantHID, "":
		return HID{Layout: layout}, nil
	case VariantSerial:
		return Serial{}, nil
	}
	return nil, fmt.Errorf("device: unknown variant %q", name)
}

// HID writes fixed-size binary reports (the Pico meter).
type HID struct {
	Layout frame.Layout
}

func (h HID) Name() string    { return VariantHID }
func (h HID) ReportSize() int { return h.Layout.Size }

func (h HID) EncodeSystem(s model.UtilizationSample) []byte { return frame.Build(h.Layout, s) }
func (h HID) EncodeUser(u model.UserSample) []byte          { return frame.BuildUser(h.Layout, u) }

// Serial writes the line protocol of the Arduino meter: one
// carriage-return-terminated line per channel, tag letter then decimal.
type Serial struct{}

// Terminator ends every protocol line.
const Terminator = '\r'

// serialMax is the longest system payload: "C100\rM100\r".
const serialMax = 10

func (Serial) Name() string    { return VariantSerial }
func (Serial) ReportSize() int { return serialMax }

func (Serial) EncodeSystem(s model.UtilizationSample) []byte {
	buf := make([]byte, 0, serialMax)
	buf = appendLine(buf, 'C', s.CPU)
	buf = appendLine(buf, 'M', s.Memory)
	return buf
}

func (Serial) EncodeUser(model.UserSample) []byte { return nil }

func appendLine(buf []byte, tag byte, v uint8) []byte {
	buf = append(buf, tag)
	buf = strconv.AppendUint(buf, uint64(v), 10)
	return append(buf, Terminator)
}
