package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/util"
)

var (
	ErrInsufficientSpace = errors.New("storage: insufficient space in ram tier")
	ErrUnknownVolume     = errors.New("storage: unknown ram volume")
)

// VolumeCapacity is a snapshot of the counters of one RAM volume.
type VolumeCapacity struct {
	Volume   string
	Capacity uint64
	Used     uint64
	Reserved uint64
}

func (c VolumeCapacity) Free() uint64 {
	if c.Used+c.Reserved >= c.Capacity {
		return 0
	}
	return c.Capacity - c.Used - c.Reserved
}

// UsedRatio counts reserved bytes as used, since they are about to be written.
func (c VolumeCapacity) UsedRatio() float64 {
	if c.Capacity == 0 {
		return 0
	}
	return float64(c.Used+c.Reserved) / float64(c.Capacity)
}

type volumeCounters struct {
	mu       sync.Mutex
	name     string
	capacity uint64
	used     uint64
	reserved uint64
}

func (vc *volumeCounters) snapshot() VolumeCapacity {
	return VolumeCapacity{Volume: vc.name, Capacity: vc.capacity, Used: vc.used, Reserved: vc.reserved}
}

// caller holds vc.mu
func (vc *volumeCounters) publish() {
	stats.VolumeServerRamTierBytesGauge.WithLabelValues(vc.name, stats.RamTierCapacity).Set(float64(vc.capacity))
	stats.VolumeServerRamTierBytesGauge.WithLabelValues(vc.name, stats.RamTierUsed).Set(float64(vc.used))
	stats.VolumeServerRamTierBytesGauge.WithLabelValues(vc.name, stats.RamTierReserved).Set(float64(vc.reserved))
}

// RamTierAllocator owns the capacity counters of all RAM volumes.
// Every volume has its own lock, so writers on different volumes never contend.
type RamTierAllocator struct {
	volumesLock sync.RWMutex
	volumes     map[string]*volumeCounters
}

func NewRamTierAllocator() *RamTierAllocator {
	return &RamTierAllocator{
		volumes: make(map[string]*volumeCounters),
	}
}

func (a *RamTierAllocator) AddVolume(volume string, capacity uint64) {
	a.volumesLock.Lock()
	defer a.volumesLock.Unlock()
	if vc, found := a.volumes[volume]; found {
		vc.mu.Lock()
		vc.capacity = capacity
		vc.publish()
		vc.mu.Unlock()
		return
	}
	vc := &volumeCounters{name: volume, capacity: capacity}
	vc.publish()
	a.volumes[volume] = vc
	glog.V(0).Infof("ram volume %s capacity %s", volume, util.BytesToHumanReadable(capacity))
}

func (a *RamTierAllocator) findVolume(volume string) (*volumeCounters, error) {
	a.volumesLock.RLock()
	defer a.volumesLock.RUnlock()
	vc, found := a.volumes[volume]
	if !found {
		return nil, fmt.Errorf("%s: %w", volume, ErrUnknownVolume)
	}
	return vc, nil
}

// Reserve grants bytes on the volume or fails fast with ErrInsufficientSpace.
// It never waits for space to be freed.
func (a *RamTierAllocator) Reserve(volume string, bytes uint64) (*Grant, error) {
	vc, err := a.findVolume(volume)
	if err != nil {
		return nil, err
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.used+vc.reserved+bytes > vc.capacity {
		stats.VolumeServerRamTierReservationDeniedCounter.WithLabelValues(volume).Inc()
		return nil, fmt.Errorf("volume %s capacity %d used %d reserved %d request %d: %w",
			volume, vc.capacity, vc.used, vc.reserved, bytes, ErrInsufficientSpace)
	}
	vc.reserved += bytes
	vc.publish()
	return &Grant{counters: vc, bytes: bytes}, nil
}

// Release frees used bytes after an eviction or a deletion.
func (a *RamTierAllocator) Release(volume string, bytes uint64) error {
	vc, err := a.findVolume(volume)
	if err != nil {
		return err
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if bytes > vc.used {
		glog.Errorf("ram volume %s releasing %d bytes but only %d used", volume, bytes, vc.used)
		bytes = vc.used
	}
	vc.used -= bytes
	vc.publish()
	return nil
}

func (a *RamTierAllocator) Stats(volume string) (VolumeCapacity, error) {
	vc, err := a.findVolume(volume)
	if err != nil {
		return VolumeCapacity{}, err
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return vc.snapshot(), nil
}

func (a *RamTierAllocator) Volumes() (volumes []string) {
	a.volumesLock.RLock()
	for name := range a.volumes {
		volumes = append(volumes, name)
	}
	a.volumesLock.RUnlock()
	slices.Sort(volumes)
	return
}

// Grant is a reservation handed to a single writer.
type Grant struct {
	counters *volumeCounters
	bytes    uint64
	done     bool
}

func (g *Grant) Volume() string {
	return g.counters.name
}

func (g *Grant) Bytes() uint64 {
	return g.bytes
}

// Commit turns the reservation into used bytes. Any unused part of the
// reservation is given back. Calling it twice, or after Cancel, does nothing.
func (g *Grant) Commit(actual uint64) {
	vc := g.counters
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	if actual > g.bytes {
		glog.Errorf("ram volume %s committing %d bytes over a %d byte grant", vc.name, actual, g.bytes)
		actual = g.bytes
	}
	vc.reserved -= g.bytes
	vc.used += actual
	vc.publish()
}

// Cancel drops the reservation without using it.
func (g *Grant) Cancel() {
	vc := g.counters
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	vc.reserved -= g.bytes
	vc.publish()
}
