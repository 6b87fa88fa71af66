package firmware

// DefaultWindow is the number of readings averaged per channel.
const DefaultWindow = 20

// ChannelBuffer is a fixed window of readings and their running sum.
// The sum is maintained by replacing the oldest slot, never recomputed.
type ChannelBuffer struct {
	readings []int
	sum      int
	pos      int
}

// NewChannelBuffer returns a zero-filled window of size n (at least 1).
func NewChannelBuffer(n int) *ChannelBuffer {
	if n < 1 {
		n = 1
	}
	return &ChannelBuffer{readings: make([]int, n)}
}

// Push replaces the oldest reading with v and returns the moving average.
func (b *ChannelBuffer) Push(v int) int {
	b.sum -= b.readings[b.pos]
	b.readings[b.pos] = v
	b.sum += v
	b.pos++
	if b.pos == len(b.readings) {
		b.pos = 0
	}
	return b.Average()
}

// Average is the integer mean over the whole window.
func (b *ChannelBuffer) Average() int { return b.sum / len(b.readings) }

// Sum returns the running total.
func (b *ChannelBuffer) Sum() int { return b.sum }

// Smoother averages every channel over the same window.
type Smoother struct {
	channels [Channels]*ChannelBuffer
}

// NewSmoother returns a smoother with a window of n readings per channel.
func NewSmoother(n int) *Smoother {
	s := &Smoother{}
	for i := range s.channels {
		s.channels[i] = NewChannelBuffer(n)
	}
	return s
}

// Update pushes the latest value of each channel and returns the
// smoothed percentages.
func (s *Smoother) Update(latest [Channels]int) [Channels]int {
	var out [Channels]int
	for i, b := range s.channels {
		out[i] = b.Push(latest[i])
	}
	return out
}
