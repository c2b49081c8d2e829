package storage

import (
	"cmp"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/backend"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var (
	ErrNoRamVolume      = errors.New("storage: no ram volume configured")
	ErrNoDiskLocation   = errors.New("storage: no disk location configured")
	ErrUnknownLocation  = errors.New("storage: unknown location")
	ErrChecksumMismatch = backend.ErrChecksumMismatch
)

type RamVolumeOption struct {
	Name     string
	Capacity uint64
}

type StoreOption struct {
	Ip          string
	Port        int
	RamVolumes  []RamVolumeOption
	Directories []string
	Clock       clock.Clock
}

/*
 * A VolumeServer contains one Store
 */
type Store struct {
	Ip        string
	Port      int
	Allocator *RamTierAllocator
	Tracker   *ReplicaTracker

	clock         clock.Clock
	locationsLock sync.RWMutex
	ramLocations  []*RamLocation
	diskLocations []*DiskLocation
}

func NewStore(option *StoreOption) (s *Store, err error) {
	clk := option.Clock
	if clk == nil {
		clk = clock.New()
	}
	s = &Store{
		Ip:        option.Ip,
		Port:      option.Port,
		Allocator: NewRamTierAllocator(),
		Tracker:   NewReplicaTracker(clk),
		clock:     clk,
	}
	var totalRam uint64
	for _, rv := range option.RamVolumes {
		s.AddRamLocation(NewRamLocation(rv.Name, rv.Capacity))
		totalRam += rv.Capacity
	}
	if totalRam > 0 {
		if memStatus := stats.MemStat(); memStatus.Free > 0 && totalRam > memStatus.Free {
			glog.Warningf("ram tier capacity %s exceeds available memory %s",
				util.BytesToHumanReadable(totalRam), util.BytesToHumanReadable(memStatus.Free))
		}
	}
	for _, dir := range option.Directories {
		location, locErr := NewDiskLocation(dir)
		if locErr != nil {
			return nil, locErr
		}
		if err = s.AddDiskLocation(location); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("Ip:%s, Port:%d, ramVolumes:%d, diskLocations:%d", s.Ip, s.Port, len(s.RamLocations()), len(s.DiskLocations()))
}

// NodeId is the identity this store reports in heartbeats.
func (s *Store) NodeId() string {
	return stats.JoinHostPort(s.Ip, s.Port)
}

func (s *Store) AddRamLocation(location *RamLocation) {
	s.locationsLock.Lock()
	defer s.locationsLock.Unlock()
	s.ramLocations = append(s.ramLocations, location)
	s.Allocator.AddVolume(location.Name, location.Capacity)
}

// AddDiskLocation registers the location and loads its persisted blocks.
func (s *Store) AddDiskLocation(location *DiskLocation) error {
	if err := location.LoadExistingBlocks(s.Tracker, s.clock.Now()); err != nil {
		return err
	}
	s.locationsLock.Lock()
	defer s.locationsLock.Unlock()
	s.diskLocations = append(s.diskLocations, location)
	return nil
}

func (s *Store) RamLocations() []*RamLocation {
	s.locationsLock.RLock()
	defer s.locationsLock.RUnlock()
	return append([]*RamLocation(nil), s.ramLocations...)
}

func (s *Store) DiskLocations() []*DiskLocation {
	s.locationsLock.RLock()
	defer s.locationsLock.RUnlock()
	return append([]*DiskLocation(nil), s.diskLocations...)
}

func (s *Store) findRamLocation(name string) (*RamLocation, error) {
	for _, location := range s.RamLocations() {
		if location.Name == name {
			return location, nil
		}
	}
	return nil, fmt.Errorf("ram volume %s: %w", name, ErrUnknownLocation)
}

func (s *Store) findDiskLocation(storageId string) (*DiskLocation, error) {
	for _, location := range s.DiskLocations() {
		if location.StorageId == storageId {
			return location, nil
		}
	}
	return nil, fmt.Errorf("disk location %s: %w", storageId, ErrUnknownLocation)
}

// ramLocationsByFreeSpace orders RAM volumes with the most free bytes first.
func (s *Store) ramLocationsByFreeSpace() []*RamLocation {
	locations := s.RamLocations()
	free := make(map[string]uint64, len(locations))
	for _, location := range locations {
		if c, err := s.Allocator.Stats(location.Name); err == nil {
			free[location.Name] = c.Free()
		}
	}
	slices.SortStableFunc(locations, func(a, b *RamLocation) int {
		return cmp.Compare(free[b.Name], free[a.Name])
	})
	return locations
}

// findFreeDiskLocation picks the disk location holding the fewest blocks.
func (s *Store) findFreeDiskLocation() (ret *DiskLocation) {
	for _, location := range s.DiskLocations() {
		if ret == nil || location.BlockCount() < ret.BlockCount() {
			ret = location
		}
	}
	return
}

// WriteBlock stores a new block on the requested medium. A RAM write that
// cannot reserve space fails with ErrInsufficientSpace; falling back to disk
// is left to the caller.
func (s *Store) WriteBlock(id types.BlockId, gs types.GenerationStamp, data []byte, medium types.Medium) (Replica, error) {
	if existing, found := s.Tracker.Lookup(id); found {
		return Replica{}, fmt.Errorf("write block %s: already %s: %w", id, existing.State, ErrReplicaExists)
	}
	switch medium {
	case types.RamDiskMedium:
		stats.VolumeServerBlockRequestCounter.WithLabelValues(stats.BlockWrite, medium.String()).Inc()
		return s.writeRamBlock(id, gs, data)
	case types.DiskMedium:
		stats.VolumeServerBlockRequestCounter.WithLabelValues(stats.BlockWrite, medium.String()).Inc()
		return s.writeDiskBlock(id, gs, data)
	}
	return Replica{}, fmt.Errorf("write block %s to %q: %w", id, medium, types.ErrUnknownMedium)
}

func (s *Store) writeRamBlock(id types.BlockId, gs types.GenerationStamp, data []byte) (Replica, error) {
	size := uint64(len(data))
	var lastErr error = ErrNoRamVolume
	for _, location := range s.ramLocationsByFreeSpace() {
		grant, err := s.Allocator.Reserve(location.Name, size)
		if err != nil {
			lastErr = err
			continue
		}
		return s.writeToRamLocation(location, grant, id, gs, data)
	}
	return Replica{}, fmt.Errorf("write block %s of %d bytes: %w", id, size, lastErr)
}

func (s *Store) writeToRamLocation(location *RamLocation, grant *Grant, id types.BlockId, gs types.GenerationStamp, data []byte) (Replica, error) {
	size := uint64(len(data))
	if _, err := location.Storage.WriteBlock(id, gs, data); err != nil {
		grant.Cancel()
		return Replica{}, fmt.Errorf("write block %s to %s: %w", id, location.Name, err)
	}
	grant.Commit(size)

	if err := s.Tracker.RecordRamReplica(id, gs, location.Name, size, backend.Checksum(data), s.clock.Now()); err != nil {
		if deleteErr := location.Storage.DeleteBlock(id, gs); deleteErr != nil {
			glog.Errorf("drop untracked block %s on %s: %v", id, location.Name, deleteErr)
		}
		s.Allocator.Release(location.Name, size)
		return Replica{}, err
	}
	r, _ := s.Tracker.Lookup(id)
	glog.V(3).Infof("wrote block %s %d bytes to ram volume %s", id, size, location.Name)
	return r, nil
}

func (s *Store) writeDiskBlock(id types.BlockId, gs types.GenerationStamp, data []byte) (Replica, error) {
	location := s.findFreeDiskLocation()
	if location == nil {
		return Replica{}, fmt.Errorf("write block %s: %w", id, ErrNoDiskLocation)
	}
	path, err := writeDurably(location, id, gs, data)
	if err != nil {
		return Replica{}, err
	}
	if err = s.Tracker.RecordDiskReplica(id, gs, location.StorageId, path, uint64(len(data)), backend.Checksum(data), s.clock.Now()); err != nil {
		location.Storage.DeleteBlock(id, gs)
		return Replica{}, err
	}
	location.blockCount.Inc()
	r, _ := s.Tracker.Lookup(id)
	return r, nil
}

// writeDurably writes and fsyncs a block file. Nothing is left behind on failure.
func writeDurably(location *DiskLocation, id types.BlockId, gs types.GenerationStamp, data []byte) (string, error) {
	path, err := location.Storage.WriteBlock(id, gs, data)
	if err != nil {
		return "", fmt.Errorf("write block %s to %s: %w", id, location.Directory, err)
	}
	if err = location.Storage.Sync(id, gs); err != nil {
		location.Storage.DeleteBlock(id, gs)
		return "", fmt.Errorf("sync block %s on %s: %w", id, location.Directory, err)
	}
	return path, nil
}

// ReadBlock serves the block from whichever medium holds it right now.
// The replica is looked up under the block's shared lock, so an eviction
// cannot drop the RAM copy in the middle of the read.
func (s *Store) ReadBlock(id types.BlockId) (data []byte, err error) {
	err = s.Tracker.WithReadLock(id, func(r Replica) (readErr error) {
		medium := types.DiskMedium
		if r.State.HasRam() {
			medium = types.RamDiskMedium
		}
		stats.VolumeServerBlockRequestCounter.WithLabelValues(stats.BlockRead, medium.String()).Inc()
		if data, readErr = s.readReplica(r); readErr != nil {
			return readErr
		}
		if actual := backend.Checksum(data); actual != r.Checksum {
			stats.VolumeServerBlockRequestCounter.WithLabelValues(stats.ErrorChecksumMismatch, medium.String()).Inc()
			return fmt.Errorf("read block %s from %s: expected %x actual %x: %w", id, medium, r.Checksum, actual, ErrChecksumMismatch)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// caller holds the block lock
func (s *Store) readReplica(r Replica) ([]byte, error) {
	if r.State.HasRam() {
		location, err := s.findRamLocation(r.RamVolume)
		if err != nil {
			return nil, err
		}
		return location.Storage.ReadBlock(r.Id, r.Gen)
	}
	location, err := s.findDiskLocation(r.DiskVolume)
	if err != nil {
		return nil, err
	}
	return location.Storage.ReadBlock(r.Id, r.Gen)
}

// DeleteBlocks removes the replicas of the given blocks from both media.
// Unknown blocks are skipped.
func (s *Store) DeleteBlocks(ids []types.BlockId) (deleted int, err error) {
	var errs []error
	for _, id := range ids {
		_, removeErr := s.Tracker.Remove(id, s.deleteReplica)
		if errors.Is(removeErr, ErrReplicaNotFound) {
			continue
		}
		if removeErr != nil {
			errs = append(errs, removeErr)
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// deleteReplica drops the disk copy first, so a failure never leaves a
// tracked RAM replica without its bytes.
func (s *Store) deleteReplica(r Replica) error {
	if r.DiskVolume != "" {
		location, err := s.findDiskLocation(r.DiskVolume)
		if err != nil {
			return err
		}
		if err = location.Storage.DeleteBlock(r.Id, r.Gen); err != nil && !errors.Is(err, backend.ErrBlockNotFound) {
			return fmt.Errorf("delete block %s from %s: %w", r.Id, location.Directory, err)
		}
		location.blockCount.Dec()
	}
	if r.State.HasRam() {
		location, err := s.findRamLocation(r.RamVolume)
		if err != nil {
			return err
		}
		if err = location.Storage.DeleteBlock(r.Id, r.Gen); err != nil && !errors.Is(err, backend.ErrBlockNotFound) {
			return fmt.Errorf("delete block %s from %s: %w", r.Id, location.Name, err)
		}
		s.Allocator.Release(r.RamVolume, r.Size)
	}
	stats.VolumeServerBlockRequestCounter.WithLabelValues(stats.BlockDelete, r.State.String()).Inc()
	glog.V(2).Infof("deleted block %s", r)
	return nil
}

func (s *Store) Close() {
	for _, location := range s.RamLocations() {
		location.Storage.Close()
	}
	for _, location := range s.DiskLocations() {
		location.Storage.Close()
	}
}
