package ui

import (
	"log/slog"

	"github.com/pcmeter/pcmeter/internal/firmware"
)

// LogActuator is the headless stand-in for the panel. It logs each latched
// strip together with the needle levels at debug level.
type LogActuator struct {
	logger  *slog.Logger
	needles [firmware.Channels]int
	strip   []firmware.RGB
	shows   uint64
}

func NewLogActuator(logger *slog.Logger, ledsPerMeter int) *LogActuator {
	if ledsPerMeter <= 0 {
		ledsPerMeter = firmware.DefaultLEDsPerMeter
	}
	return &LogActuator{logger: logger, strip: make([]firmware.RGB, firmware.Channels*ledsPerMeter)}
}

func (l *LogActuator) SetNeedle(ch firmware.Channel, level int) {
	if ch >= 0 && int(ch) < firmware.Channels {
		l.needles[ch] = level
	}
}

func (l *LogActuator) SetPixel(i int, c firmware.RGB) {
	if i >= 0 && i < len(l.strip) {
		l.strip[i] = c
	}
}

func (l *LogActuator) Show() {
	l.shows++
	l.logger.Debug("meters",
		"cpu_level", l.needles[firmware.CPU],
		"memory_level", l.needles[firmware.Memory],
		"cpu_led", l.strip[0],
		"memory_led", l.strip[len(l.strip)/firmware.Channels],
		"frame", l.shows)
}

// Needles returns the last level of each needle.
func (l *LogActuator) Needles() [firmware.Channels]int { return l.needles }
