package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pcmeter/pcmeter/internal/clock"
	"github.com/pcmeter/pcmeter/internal/model"
)

var (
	// ErrZeroInterval means two snapshots were taken at the same instant.
	ErrZeroInterval = errors.New("sampler: zero interval between snapshots")
	// ErrNoBaseline means Sample was called before any snapshot existed.
	ErrNoBaseline = errors.New("sampler: no baseline snapshot")
	// ErrNoCPUs means no CPU was online in both snapshots.
	ErrNoCPUs = errors.New("sampler: no CPU online across both snapshots")
)

// Sampler reads idle counters and memory figures from the host and turns
// consecutive readings into utilization samples.
type Sampler struct {
	clock  clock.Clock
	logger *slog.Logger
	prev   *model.CPUSnapshot

	// Sources, overridable in tests.
	times      func(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error)
	virtual    func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swap       func(ctx context.Context) (*mem.SwapMemoryStat, error)
	loadAvg    func(ctx context.Context) (*load.AvgStat, error)
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	usage      func(ctx context.Context, path string) (*disk.UsageStat, error)
	sensors    func(ctx context.Context) ([]host.TemperatureStat, error)
}

// New returns a Sampler reading from the running host. A nil logger discards.
func New(c clock.Clock, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{
		clock:      c,
		logger:     logger,
		times:      cpu.TimesWithContext,
		virtual:    mem.VirtualMemoryWithContext,
		swap:       mem.SwapMemoryWithContext,
		loadAvg:    load.AvgWithContext,
		partitions: disk.PartitionsWithContext,
		usage:      disk.UsageWithContext,
		sensors:    host.SensorsTemperaturesWithContext,
	}
}

// Snapshot captures the cumulative idle time of every online CPU.
// Idle time counts iowait as idle.
func (s *Sampler) Snapshot(ctx context.Context) (model.CPUSnapshot, error) {
	stats, err := s.times(ctx, true)
	if err != nil {
		return model.CPUSnapshot{}, fmt.Errorf("sampler: cpu times: %w", err)
	}
	snap := model.CPUSnapshot{
		Taken: s.clock.Now(),
		Idle:  make(map[int]time.Duration, len(stats)),
	}
	for _, st := range stats {
		id, err := strconv.Atoi(strings.TrimPrefix(st.CPU, "cpu"))
		if err != nil {
			continue
		}
		snap.Idle[id] = time.Duration((st.Idle + st.Iowait) * float64(time.Second))
	}
	return snap, nil
}

// Prime records the baseline snapshot the first Sample is measured against.
func (s *Sampler) Prime(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.prev = &snap
	return nil
}

// Sample measures utilization since the previous call (or Prime) and
// memory/swap load right now. The new snapshot becomes the baseline even
// when the interval check fails.
func (s *Sampler) Sample(ctx context.Context) (model.UtilizationSample, error) {
	cur, err := s.Snapshot(ctx)
	if err != nil {
		return model.UtilizationSample{}, err
	}
	prev := s.prev
	s.prev = &cur
	if prev == nil {
		return model.UtilizationSample{}, ErrNoBaseline
	}

	pct, online, err := Utilization(*prev, cur)
	if err != nil {
		return model.UtilizationSample{}, err
	}
	out := model.UtilizationSample{
		CPU:        pct,
		OnlineCPUs: online,
		PerCore:    PerCore(*prev, cur),
		Memory:     100,
		Swap:       100,
	}

	if vm, err := s.virtual(ctx); err == nil {
		out.Memory = MemoryPercent(vm.Available, vm.Total)
	} else {
		s.logger.Debug("virtual memory unavailable", "error", err)
	}
	if sw, err := s.swap(ctx); err == nil {
		out.Swap = MemoryPercent(sw.Free, sw.Total)
	} else {
		s.logger.Debug("swap unavailable", "error", err)
	}
	return out, nil
}

// Utilization returns 100 - (Δidle / online) * 100 / Δtime, clamped to
// [0, 100]. Only CPUs present in both snapshots count, in the idle sum and
// in the divisor alike.
func Utilization(prev, cur model.CPUSnapshot) (uint8, uint, error) {
	elapsed := cur.Taken.Sub(prev.Taken)
	if elapsed <= 0 {
		return 0, 0, ErrZeroInterval
	}
	var idle time.Duration
	var online uint
	for id, now := range cur.Idle {
		before, ok := prev.Idle[id]
		if !ok {
			continue
		}
		online++
		if now > before {
			idle += now - before
		}
	}
	if online == 0 {
		return 0, 0, ErrNoCPUs
	}
	perCPU := int64(idle) / int64(online)
	return clampPercent(100 - perCPU*100/int64(elapsed)), online, nil
}

// PerCore returns the utilization of each CPU online in both snapshots,
// ordered by CPU id.
func PerCore(prev, cur model.CPUSnapshot) []uint8 {
	elapsed := int64(cur.Taken.Sub(prev.Taken))
	if elapsed <= 0 {
		return nil
	}
	ids := make([]int, 0, len(cur.Idle))
	for id := range cur.Idle {
		if _, ok := prev.Idle[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]uint8, len(ids))
	for i, id := range ids {
		var delta int64
		if d := cur.Idle[id] - prev.Idle[id]; d > 0 {
			delta = int64(d)
		}
		out[i] = clampPercent(100 - delta*100/elapsed)
	}
	return out
}

// MemoryPercent returns 100 - available*100/total. An empty pool (total 0)
// reads as fully loaded.
func MemoryPercent(available, total uint64) uint8 {
	if total == 0 {
		return 100
	}
	if available >= total {
		return 0
	}
	return uint8(100 - available*100/total)
}

// User gathers the figures of the user report. Missing sources leave
// their fields zero.
func (s *Sampler) User(ctx context.Context) model.UserSample {
	var out model.UserSample
	if sw, err := s.swap(ctx); err == nil {
		out.Swap = MemoryPercent(sw.Free, sw.Total)
	}
	if avg, err := s.loadAvg(ctx); err == nil {
		out.Load1 = splitLoad(avg.Load1)
		out.Load5 = splitLoad(avg.Load5)
		out.Load15 = splitLoad(avg.Load15)
	} else {
		s.logger.Debug("load average unavailable", "error", err)
	}
	out.Disks = s.Disks(ctx)
	out.Components = s.Components(ctx)
	return out
}

// Disks lists physical mounts with their free space percentage.
func (s *Sampler) Disks(ctx context.Context) []model.Disk {
	parts, err := s.partitions(ctx, false)
	if err != nil {
		s.logger.Debug("disk partitions unavailable", "error", err)
		return nil
	}
	var out []model.Disk
	for _, p := range parts {
		u, err := s.usage(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		out = append(out, model.Disk{
			Mountpoint:  p.Mountpoint,
			Device:      p.Device,
			FreePercent: uint8(u.Free * 100 / u.Total),
		})
	}
	return out
}

// Components lists temperature sensors.
func (s *Sampler) Components(ctx context.Context) []model.Component {
	temps, err := s.sensors(ctx)
	if err != nil && len(temps) == 0 {
		s.logger.Debug("temperature sensors unavailable", "error", err)
		return nil
	}
	out := make([]model.Component, 0, len(temps))
	for _, t := range temps {
		out = append(out, model.Component{Key: t.SensorKey, TempC: t.Temperature})
	}
	return out
}

func splitLoad(v float64) model.LoadAvg {
	if v < 0 {
		return model.LoadAvg{}
	}
	whole := math.Floor(v)
	hundredth := math.Round((v - whole) * 100)
	if hundredth > 99 {
		hundredth = 99
	}
	if whole > 255 {
		return model.LoadAvg{Whole: 255, Hundredth: 99}
	}
	return model.LoadAvg{Whole: uint8(whole), Hundredth: uint8(hundredth)}
}

func clampPercent(v int64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return uint8(v)
}
