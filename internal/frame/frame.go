// Package frame packs samples into the fixed-size reports the meter device
// reads over USB.
//
// A system report looks like this with the default layout:
//
//	byte 0      report id
//	byte 1      report type (0 system, 1 user)
//	byte 2      CPU load percent
//	byte 3      memory load percent
//	byte 4      online CPU count, or swap percent with the swap layout
//	bytes 10..  per-core load percent, one byte per CPU
//
// Every byte not listed is zero, and a frame is always exactly Size bytes.
package frame

import (
	"fmt"
	"math"

	"github.com/pcmeter/pcmeter/internal/model"
)

// ReportSize is the output report length of the Pico meter.
const ReportSize = 64

// Report types carried in byte 1.
const (
	TypeSystem byte = 0
	TypeUser   byte = 1
)

// Extra selects what byte 4 of a system report carries.
type Extra int

const (
	ExtraCPUCount Extra = iota
	ExtraSwap
)

// Layout fixes the byte offsets of a report. Offsets outside [0, Size)
// are skipped.
type Layout struct {
	Size     int
	ReportID byte
	CPU      int
	Memory   int
	Extra    int
	Field    Extra
	// PerCore is the first per-core byte; zero disables the block.
	PerCore int
}

// DefaultLayout is the current firmware's layout: CPU count in byte 4.
func DefaultLayout() Layout {
	return Layout{Size: ReportSize, CPU: 2, Memory: 3, Extra: 4, Field: ExtraCPUCount, PerCore: 10}
}

// SwapLayout is the older layout carrying swap percent in byte 4 and no
// per-core block.
func SwapLayout() Layout {
	return Layout{Size: ReportSize, CPU: 2, Memory: 3, Extra: 4, Field: ExtraSwap}
}

// ParseLayout maps a config name to a layout.
func ParseLayout(name string) (Layout, error) {
	switch name {
	case "", "count":
		return DefaultLayout(), nil
	case "swap":
		return SwapLayout(), nil
	}
	return Layout{}, fmt.Errorf("frame: unknown layout %q", name)
}

// Build packs a utilization sample into a system report.
func Build(l Layout, s model.UtilizationSample) []byte {
	buf := l.header(TypeSystem)
	l.put(buf, l.CPU, s.CPU)
	l.put(buf, l.Memory, s.Memory)
	switch l.Field {
	case ExtraSwap:
		l.put(buf, l.Extra, s.Swap)
	default:
		l.put(buf, l.Extra, saturate(uint64(s.OnlineCPUs)))
	}
	if l.PerCore > 0 {
		for i, pct := range s.PerCore {
			if l.PerCore+i >= len(buf) {
				break
			}
			buf[l.PerCore+i] = pct
		}
	}
	return buf
}

// User report offsets.
const (
	userSwap       = 2
	userLoad       = 3 // 1, 5 and 15 minute averages as (whole, hundredths) pairs
	userDiskCount  = 9
	userDisks      = 10
	userMaxDisks   = 10
	userComponents = 20
	userMaxComps   = 20
)

// BuildUser packs the slow-moving host figures into a user report.
func BuildUser(l Layout, u model.UserSample) []byte {
	buf := l.header(TypeUser)
	l.put(buf, userSwap, u.Swap)
	for i, avg := range []model.LoadAvg{u.Load1, u.Load5, u.Load15} {
		l.put(buf, userLoad+2*i, avg.Whole)
		l.put(buf, userLoad+2*i+1, avg.Hundredth)
	}
	l.put(buf, userDiskCount, saturate(uint64(len(u.Disks))))
	for i, d := range u.Disks {
		if i == userMaxDisks {
			break
		}
		l.put(buf, userDisks+i, d.FreePercent)
	}
	for i, c := range u.Components {
		if i == userMaxComps {
			break
		}
		l.put(buf, userComponents+i, celsius(c.TempC))
	}
	return buf
}

// DiskOffset and ComponentOffset report where the i-th disk or sensor
// lands in a user report, or -1 when it does not fit.
func DiskOffset(i int) int {
	if i < 0 || i >= userMaxDisks {
		return -1
	}
	return userDisks + i
}

func ComponentOffset(i int) int {
	if i < 0 || i >= userMaxComps {
		return -1
	}
	return userComponents + i
}

// Parse reads the CPU and memory bytes back out of a system report.
func Parse(l Layout, buf []byte) (cpu, memory uint8, ok bool) {
	if len(buf) < 2 || buf[1] != TypeSystem {
		return 0, 0, false
	}
	if l.CPU < 0 || l.CPU >= len(buf) || l.Memory < 0 || l.Memory >= len(buf) {
		return 0, 0, false
	}
	return buf[l.CPU], buf[l.Memory], true
}

func (l Layout) header(kind byte) []byte {
	buf := make([]byte, l.Size)
	if l.Size > 1 {
		buf[0] = l.ReportID
		buf[1] = kind
	}
	return buf
}

func (l Layout) put(buf []byte, off int, v uint8) {
	if off >= 0 && off < len(buf) {
		buf[off] = v
	}
}

func saturate(v uint64) uint8 {
	if v > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(v)
}

func celsius(t float64) uint8 {
	switch {
	case t <= 0 || math.IsNaN(t):
		return 0
	case t >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(t)
}
