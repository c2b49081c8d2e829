package storage

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var (
	ErrReplicaExists   = errors.New("storage: replica already exists")
	ErrReplicaNotFound = errors.New("storage: replica not found")
	ErrNotOnRamDisk    = errors.New("storage: replica is not ram only")
	ErrNotPersistedYet = errors.New("storage: replica not persisted yet")
	ErrNoRamReplica    = errors.New("storage: replica has no ram copy")
)

// Replica is the node-local record of one block across both media.
// A RamAndDisk replica has both RamVolume and DiskVolume set.
type Replica struct {
	Id          types.BlockId
	Gen         types.GenerationStamp
	Size        uint64
	Checksum    uint64
	State       types.ReplicaState
	RamVolume   string
	DiskVolume  string
	DiskPath    string
	CreatedAt   time.Time
	PersistedAt time.Time
}

func (r Replica) Persisted() bool {
	return r.State.IsDurable()
}

func (r Replica) String() string {
	return fmt.Sprintf("%s %s state:%s ram:%s disk:%s", r.Id, types.BlockFileName(r.Id, r.Gen), r.State, r.RamVolume, r.DiskVolume)
}

// olderFirst orders by creation time, then by block id.
func olderFirst(a, b Replica) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Id < b.Id
}

// ReplicaTracker is the only place where replica state changes.
// All changes to one block are serialized by the block's lock; changes to
// different blocks only share the sharded map.
type ReplicaTracker struct {
	clock      clock.Clock
	replicas   cmap.ConcurrentMap[types.BlockId, Replica]
	blockLocks *util.LockTable[types.BlockId]
}

func NewReplicaTracker(clk clock.Clock) *ReplicaTracker {
	if clk == nil {
		clk = clock.New()
	}
	return &ReplicaTracker{
		clock: clk,
		replicas: cmap.NewWithCustomShardingFunction[types.BlockId, Replica](func(key types.BlockId) uint32 {
			return uint32(key) ^ uint32(key>>32)
		}),
		blockLocks: util.NewLockTable[types.BlockId](),
	}
}

func (rt *ReplicaTracker) lock(intention string, id types.BlockId, lockType util.LockType) func() {
	lock := rt.blockLocks.AcquireLock(intention, id, lockType)
	return func() {
		rt.blockLocks.ReleaseLock(id, lock)
	}
}

// RecordRamReplica starts tracking a block that was just written to a RAM volume.
func (rt *ReplicaTracker) RecordRamReplica(id types.BlockId, gs types.GenerationStamp, volume string, size, checksum uint64, createdAt time.Time) error {
	unlock := rt.lock("recordRam", id, util.ExclusiveLock)
	defer unlock()

	r := Replica{
		Id:        id,
		Gen:       gs,
		Size:      size,
		Checksum:  checksum,
		State:     types.RamOnly,
		RamVolume: volume,
		CreatedAt: createdAt,
	}
	if !rt.replicas.SetIfAbsent(id, r) {
		existing, _ := rt.replicas.Get(id)
		return fmt.Errorf("block %s already %s: %w", id, existing.State, ErrReplicaExists)
	}
	stats.VolumeServerReplicaGauge.WithLabelValues(r.State.String()).Inc()
	glog.V(3).Infof("record ram replica %s on %s", id, volume)
	return nil
}

// RecordDiskReplica tracks a block that only exists on disk, either written
// with the disk tier or found on a disk location at startup.
func (rt *ReplicaTracker) RecordDiskReplica(id types.BlockId, gs types.GenerationStamp, volume, path string, size, checksum uint64, createdAt time.Time) error {
	unlock := rt.lock("recordDisk", id, util.ExclusiveLock)
	defer unlock()

	r := Replica{
		Id:          id,
		Gen:         gs,
		Size:        size,
		Checksum:    checksum,
		State:       types.DiskOnly,
		DiskVolume:  volume,
		DiskPath:    path,
		CreatedAt:   createdAt,
		PersistedAt: createdAt,
	}
	if !rt.replicas.SetIfAbsent(id, r) {
		existing, _ := rt.replicas.Get(id)
		return fmt.Errorf("block %s already %s: %w", id, existing.State, ErrReplicaExists)
	}
	stats.VolumeServerReplicaGauge.WithLabelValues(r.State.String()).Inc()
	return nil
}

// MarkPersisted records that an fsync'ed disk copy of a RAM only replica exists.
func (rt *ReplicaTracker) MarkPersisted(id types.BlockId, diskVolume, diskPath string) error {
	unlock := rt.lock("markPersisted", id, util.ExclusiveLock)
	defer unlock()

	r, found := rt.replicas.Get(id)
	if !found {
		return fmt.Errorf("mark persisted %s: %w", id, ErrReplicaNotFound)
	}
	if r.State != types.RamOnly {
		return fmt.Errorf("mark persisted %s in state %s: %w", id, r.State, ErrNotOnRamDisk)
	}
	rt.transit(&r, types.RamAndDisk)
	r.DiskVolume, r.DiskPath = diskVolume, diskPath
	r.PersistedAt = rt.clock.Now()
	rt.replicas.Set(id, r)
	glog.V(3).Infof("persisted %s to %s", id, diskPath)
	return nil
}

// Evict drops the RAM copy of a persisted replica. onEvict runs while the
// block is exclusively locked, so no reader can see the replica half evicted.
// If onEvict fails the replica is left unchanged.
func (rt *ReplicaTracker) Evict(id types.BlockId, onEvict func(r Replica) error) (Replica, error) {
	unlock := rt.lock("evict", id, util.ExclusiveLock)
	defer unlock()

	r, found := rt.replicas.Get(id)
	if !found {
		return Replica{}, fmt.Errorf("evict %s: %w", id, ErrReplicaNotFound)
	}
	switch r.State {
	case types.RamOnly:
		return r, fmt.Errorf("evict %s: %w", id, ErrNotPersistedYet)
	case types.DiskOnly:
		return r, fmt.Errorf("evict %s: %w", id, ErrNoRamReplica)
	}
	if onEvict != nil {
		if err := onEvict(r); err != nil {
			return r, err
		}
	}
	rt.transit(&r, types.DiskOnly)
	r.RamVolume = ""
	rt.replicas.Set(id, r)
	return r, nil
}

// Remove stops tracking a block. onRemove runs under the exclusive block lock
// and deletes the replica bytes; if it fails the block stays tracked.
func (rt *ReplicaTracker) Remove(id types.BlockId, onRemove func(r Replica) error) (Replica, error) {
	unlock := rt.lock("remove", id, util.ExclusiveLock)
	defer unlock()

	r, found := rt.replicas.Get(id)
	if !found {
		return Replica{}, fmt.Errorf("remove %s: %w", id, ErrReplicaNotFound)
	}
	if onRemove != nil {
		if err := onRemove(r); err != nil {
			return r, err
		}
	}
	rt.replicas.Remove(id)
	stats.VolumeServerReplicaGauge.WithLabelValues(r.State.String()).Dec()
	return r, nil
}

// WithReadLock runs fn with the replica as currently tracked and holds the
// block's shared lock until fn returns.
func (rt *ReplicaTracker) WithReadLock(id types.BlockId, fn func(r Replica) error) error {
	unlock := rt.lock("read", id, util.SharedLock)
	defer unlock()

	r, found := rt.replicas.Get(id)
	if !found {
		return fmt.Errorf("read %s: %w", id, ErrReplicaNotFound)
	}
	return fn(r)
}

func (rt *ReplicaTracker) Lookup(id types.BlockId) (Replica, bool) {
	return rt.replicas.Get(id)
}

// ListRamOnlyOlderThan returns RAM only replicas that are at least minAge old,
// oldest first.
func (rt *ReplicaTracker) ListRamOnlyOlderThan(minAge time.Duration) []Replica {
	now := rt.clock.Now()
	return rt.collect(func(r Replica) bool {
		return r.State == types.RamOnly && now.Sub(r.CreatedAt) >= minAge
	})
}

// ListEvictionCandidates returns the persisted RAM replicas of one RAM
// volume, oldest first. An empty volume means all RAM volumes.
func (rt *ReplicaTracker) ListEvictionCandidates(volume string) []Replica {
	return rt.collect(func(r Replica) bool {
		return r.State == types.RamAndDisk && (volume == "" || r.RamVolume == volume)
	})
}

// Replicas is a snapshot of all tracked replicas ordered by block id.
func (rt *ReplicaTracker) Replicas() []Replica {
	replicas := make([]Replica, 0, rt.replicas.Count())
	for item := range rt.replicas.IterBuffered() {
		replicas = append(replicas, item.Val)
	}
	slices.SortFunc(replicas, func(a, b Replica) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return replicas
}

func (rt *ReplicaTracker) Count() int {
	return rt.replicas.Count()
}

func (rt *ReplicaTracker) collect(filter func(r Replica) bool) (replicas []Replica) {
	for item := range rt.replicas.IterBuffered() {
		if filter(item.Val) {
			replicas = append(replicas, item.Val)
		}
	}
	slices.SortFunc(replicas, func(a, b Replica) int {
		switch {
		case olderFirst(a, b):
			return -1
		case olderFirst(b, a):
			return 1
		}
		return 0
	})
	return
}

// caller holds the block lock
func (rt *ReplicaTracker) transit(r *Replica, to types.ReplicaState) {
	stats.VolumeServerReplicaGauge.WithLabelValues(r.State.String()).Dec()
	stats.VolumeServerReplicaGauge.WithLabelValues(to.String()).Inc()
	r.State = to
}
