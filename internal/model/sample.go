package model

import "time"

// CPUSnapshot maps CPU index to cumulative idle time, captured at one instant.
// Only CPUs that were online at capture time are present.
type CPUSnapshot struct {
	Taken time.Time
	Idle  map[int]time.Duration
}

// UtilizationSample is what one scheduler tick measures. Percentages are 0-100.
type UtilizationSample struct {
	CPU        uint8
	Memory     uint8
	Swap       uint8
	OnlineCPUs uint
	PerCore    []uint8 // indexed by position in CPU order, not CPU id
}

// LoadAvg holds load averages split into integer part and hundredths so
// each fits a frame byte.
type LoadAvg struct {
	Whole     uint8
	Hundredth uint8
}

// Disk is one mounted filesystem.
type Disk struct {
	Mountpoint  string
	Device      string
	FreePercent uint8
}

// Component is a temperature sensor.
type Component struct {
	Key   string
	TempC float64
}

// UserSample carries the slower-moving figures of the user report.
type UserSample struct {
	Swap       uint8
	Load1      LoadAvg
	Load5      LoadAvg
	Load15     LoadAvg
	Disks      []Disk
	Components []Component
}
