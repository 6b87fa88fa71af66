package firmware

import "time"

// MetricStore keeps the latest raw value of each channel and when the
// host was last heard from.
type MetricStore struct {
	values     [Channels]int
	lastUpdate time.Time
}

// NewMetricStore returns a store whose staleness clock starts at now.
func NewMetricStore(now time.Time) *MetricStore {
	return &MetricStore{lastUpdate: now}
}

// Set records v for ch. It does not touch the staleness clock.
func (m *MetricStore) Set(ch Channel, v int) {
	if ch < 0 || int(ch) >= Channels {
		return
	}
	m.values[ch] = clamp(v)
}

// Value returns the latest raw value of ch.
func (m *MetricStore) Value(ch Channel) int { return m.values[ch] }

// Values returns a copy of every channel's latest value.
func (m *MetricStore) Values() [Channels]int { return m.values }

// Touch marks the host as heard from at now.
func (m *MetricStore) Touch(now time.Time) { m.lastUpdate = now }

// LastUpdate returns the time of the last Touch.
func (m *MetricStore) LastUpdate() time.Time { return m.lastUpdate }
