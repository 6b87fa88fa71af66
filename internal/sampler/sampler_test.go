package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/model"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func snapshot(at time.Duration, idle map[int]time.Duration) model.CPUSnapshot {
	return model.CPUSnapshot{Taken: epoch.Add(at), Idle: idle}
}

func TestUtilization(t *testing.T) {
	tests := []struct {
		name       string
		prev, cur  model.CPUSnapshot
		wantPct    uint8
		wantOnline uint
	}{
		{
			name:       "fully idle",
			prev:       snapshot(0, map[int]time.Duration{0: 0, 1: 0}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: time.Second, 1: time.Second}),
			wantPct:    0,
			wantOnline: 2,
		},
		{
			name:       "fully busy",
			prev:       snapshot(0, map[int]time.Duration{0: 5 * time.Second}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: 5 * time.Second}),
			wantPct:    100,
			wantOnline: 1,
		},
		{
			name:       "half loaded across four cpus",
			prev:       snapshot(0, map[int]time.Duration{0: 0, 1: 0, 2: 0, 3: 0}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: time.Second, 1: time.Second, 2: 0, 3: 0}),
			wantPct:    50,
			wantOnline: 4,
		},
		{
			name:       "cpu gone offline is excluded",
			prev:       snapshot(0, map[int]time.Duration{0: 0, 1: 0}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: 250 * time.Millisecond}),
			wantPct:    75,
			wantOnline: 1,
		},
		{
			name:       "cpu newly online is excluded",
			prev:       snapshot(0, map[int]time.Duration{0: 0}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: 0, 7: time.Hour}),
			wantPct:    100,
			wantOnline: 1,
		},
		{
			name:       "idle exceeding wall time clamps to zero",
			prev:       snapshot(0, map[int]time.Duration{0: 0}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: 3 * time.Second}),
			wantPct:    0,
			wantOnline: 1,
		},
		{
			name:       "counter going backwards counts as busy",
			prev:       snapshot(0, map[int]time.Duration{0: time.Minute}),
			cur:        snapshot(time.Second, map[int]time.Duration{0: time.Second}),
			wantPct:    100,
			wantOnline: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pct, online, err := Utilization(test.prev, test.cur)
			if err != nil {
				t.Fatalf("Utilization() error = %v", err)
			}
			if pct != test.wantPct {
				t.Errorf("pct = %d, want %d", pct, test.wantPct)
			}
			if online != test.wantOnline {
				t.Errorf("online = %d, want %d", online, test.wantOnline)
			}
		})
	}
}

func TestUtilizationAlwaysInRange(t *testing.T) {
	elapsed := []time.Duration{time.Millisecond, time.Second, 7 * time.Second}
	idle := []time.Duration{0, time.Microsecond, 500 * time.Millisecond, time.Second, 30 * time.Second}
	for _, dt := range elapsed {
		for _, di := range idle {
			prev := snapshot(0, map[int]time.Duration{0: 0, 1: 0})
			cur := snapshot(dt, map[int]time.Duration{0: di, 1: di / 2})
			pct, _, err := Utilization(prev, cur)
			if err != nil {
				t.Fatalf("Utilization(dt=%v, di=%v) error = %v", dt, di, err)
			}
			if pct > 100 {
				t.Errorf("Utilization(dt=%v, di=%v) = %d, out of range", dt, di, pct)
			}
		}
	}
}

func TestUtilizationErrors(t *testing.T) {
	same := snapshot(0, map[int]time.Duration{0: 0})
	if _, _, err := Utilization(same, same); !errors.Is(err, ErrZeroInterval) {
		t.Errorf("zero interval: error = %v, want ErrZeroInterval", err)
	}

	prev := snapshot(0, map[int]time.Duration{0: 0})
	cur := snapshot(time.Second, map[int]time.Duration{1: 0})
	if _, _, err := Utilization(prev, cur); !errors.Is(err, ErrNoCPUs) {
		t.Errorf("disjoint cpus: error = %v, want ErrNoCPUs", err)
	}
}

func TestPerCoreOrderedByID(t *testing.T) {
	prev := snapshot(0, map[int]time.Duration{3: 0, 0: 0, 1: 0})
	cur := snapshot(time.Second, map[int]time.Duration{
		3: 0,
		0: time.Second,
		1: 400 * time.Millisecond,
	})
	got := PerCore(prev, cur)
	want := []uint8{0, 60, 100}
	if len(got) != len(want) {
		t.Fatalf("PerCore() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PerCore()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMemoryPercent(t *testing.T) {
	tests := []struct {
		name             string
		available, total uint64
		want             uint8
	}{
		{"empty pool reads as full", 0, 0, 100},
		{"nothing available", 0, 1024, 100},
		{"all available", 1024, 1024, 0},
		{"quarter used", 768, 1024, 25},
		{"available above total", 2048, 1024, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := MemoryPercent(test.available, test.total); got != test.want {
				t.Errorf("MemoryPercent(%d, %d) = %d, want %d", test.available, test.total, got, test.want)
			}
		})
	}
}

// fakeHost serves canned gopsutil readings.
type fakeHost struct {
	times [][]cpu.TimesStat
	calls int
}

func (f *fakeHost) cpuTimes(context.Context, bool) ([]cpu.TimesStat, error) {
	out := f.times[f.calls]
	if f.calls < len(f.times)-1 {
		f.calls++
	}
	return out, nil
}

func newTestSampler(c clock.Clock, h *fakeHost) *Sampler {
	s := New(c, nil)
	s.times = h.cpuTimes
	s.virtual = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1000, Available: 830}, nil
	}
	s.swap = func(context.Context) (*mem.SwapMemoryStat, error) {
		return &mem.SwapMemoryStat{Total: 0}, nil
	}
	s.loadAvg = func(context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: 1.25, Load5: 0.5, Load15: 300}, nil
	}
	s.partitions = func(context.Context, bool) ([]disk.PartitionStat, error) {
		return []disk.PartitionStat{
			{Device: "/dev/sda1", Mountpoint: "/"},
			{Device: "tmpfs", Mountpoint: "/run"},
		}, nil
	}
	s.usage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		if path == "/run" {
			return &disk.UsageStat{}, nil
		}
		return &disk.UsageStat{Total: 200, Free: 50}, nil
	}
	s.sensors = func(context.Context) ([]host.TemperatureStat, error) {
		return []host.TemperatureStat{{SensorKey: "coretemp_package_id_0", Temperature: 48.5}}, nil
	}
	return s
}

func TestSampleAgainstPrimedBaseline(t *testing.T) {
	c := clock.NewFake(epoch)
	h := &fakeHost{times: [][]cpu.TimesStat{
		{{CPU: "cpu0", Idle: 10}, {CPU: "cpu1", Idle: 10}},
		{{CPU: "cpu0", Idle: 10.5}, {CPU: "cpu1", Idle: 10, Iowait: 0.25}},
	}}
	s := newTestSampler(c, h)

	if err := s.Prime(context.Background()); err != nil {
		t.Fatalf("Prime() error = %v", err)
	}
	c.Advance(time.Second)

	got, err := s.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	// 0.75s idle over two cpus in one second
	if got.CPU != 63 {
		t.Errorf("CPU = %d, want 63", got.CPU)
	}
	if got.OnlineCPUs != 2 {
		t.Errorf("OnlineCPUs = %d, want 2", got.OnlineCPUs)
	}
	if got.Memory != 17 {
		t.Errorf("Memory = %d, want 17", got.Memory)
	}
	if got.Swap != 100 {
		t.Errorf("Swap = %d, want 100 for a machine without swap", got.Swap)
	}
	if len(got.PerCore) != 2 || got.PerCore[0] != 50 || got.PerCore[1] != 75 {
		t.Errorf("PerCore = %v, want [50 75]", got.PerCore)
	}
}

func TestSampleWithoutBaseline(t *testing.T) {
	c := clock.NewFake(epoch)
	h := &fakeHost{times: [][]cpu.TimesStat{{{CPU: "cpu0"}}}}
	s := newTestSampler(c, h)

	if _, err := s.Sample(context.Background()); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("first Sample() error = %v, want ErrNoBaseline", err)
	}
	c.Advance(time.Second)
	if _, err := s.Sample(context.Background()); err != nil {
		t.Fatalf("second Sample() error = %v", err)
	}
}

func TestUserSample(t *testing.T) {
	s := newTestSampler(clock.NewFake(epoch), &fakeHost{times: [][]cpu.TimesStat{nil}})
	got := s.User(context.Background())

	if got.Load1 != (model.LoadAvg{Whole: 1, Hundredth: 25}) {
		t.Errorf("Load1 = %+v", got.Load1)
	}
	if got.Load15 != (model.LoadAvg{Whole: 255, Hundredth: 99}) {
		t.Errorf("Load15 = %+v, want saturated", got.Load15)
	}
	if len(got.Disks) != 1 || got.Disks[0].FreePercent != 25 {
		t.Errorf("Disks = %+v, want one disk 25%% free", got.Disks)
	}
	if len(got.Components) != 1 || got.Components[0].TempC != 48.5 {
		t.Errorf("Components = %+v", got.Components)
	}
}
