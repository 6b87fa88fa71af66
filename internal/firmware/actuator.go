package firmware

// Default board geometry.
const (
	DefaultMeterMax     = 228
	DefaultLEDsPerMeter = 4
	// RedZone is the percentage from which the two-LED boards show red.
	RedZone = 80
)

// RGB is one LED strip pixel.
type RGB struct{ R, G, B uint8 }

// Actuator is the output hardware: one analog needle per channel and an
// addressable LED strip whose pixels are latched by Show.
type Actuator interface {
	SetNeedle(ch Channel, level int)
	SetPixel(i int, c RGB)
	Show()
}

// Driver maps percentages onto an Actuator.
type Driver struct {
	out          Actuator
	meterMax     int
	ledsPerMeter int
}

// NewDriver wraps out. Non-positive geometry falls back to the defaults.
func NewDriver(out Actuator, meterMax, ledsPerMeter int) *Driver {
	if meterMax <= 0 {
		meterMax = DefaultMeterMax
	}
	if ledsPerMeter <= 0 {
		ledsPerMeter = DefaultLEDsPerMeter
	}
	return &Driver{out: out, meterMax: meterMax, ledsPerMeter: ledsPerMeter}
}

// NeedleLevel maps pct onto [0, meterMax].
func NeedleLevel(pct, meterMax int) int { return pct * meterMax / 100 }

// Gradient colours pct from green at 0 to red at 100.
func Gradient(pct int) RGB {
	r := uint8(clamp(pct) * 255 / 100)
	return RGB{R: r, G: 255 - r}
}

// Green reports whether a two-LED board lights green for pct.
func Green(pct int) bool { return pct < RedZone }

// Colour picks the LED colour for pct. Boards with a single LED per meter
// only switch between green and red.
func (d *Driver) Colour(pct int) RGB {
	if d.ledsPerMeter > 1 {
		return Gradient(pct)
	}
	if Green(pct) {
		return RGB{G: 255}
	}
	return RGB{R: 255}
}

// Needle moves one needle without touching the LEDs.
func (d *Driver) Needle(ch Channel, pct int) {
	d.out.SetNeedle(ch, NeedleLevel(pct, d.meterMax))
}

// Show displays smoothed telemetry: needles and LED colours for every
// channel, then latches the strip.
func (d *Driver) Show(pcts [Channels]int) {
	for ch, pct := range pcts {
		d.Needle(Channel(ch), pct)
		d.fill(Channel(ch), d.Colour(pct))
	}
	d.out.Show()
}

// Blank turns every LED off.
func (d *Driver) Blank() {
	for ch := 0; ch < Channels; ch++ {
		d.fill(Channel(ch), RGB{})
	}
	d.out.Show()
}

func (d *Driver) fill(ch Channel, c RGB) {
	first := int(ch) * d.ledsPerMeter
	for i := first; i < first+d.ledsPerMeter; i++ {
		d.out.SetPixel(i, c)
	}
}
