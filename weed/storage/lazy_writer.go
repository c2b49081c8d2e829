package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/backend"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var ErrInvalidWaterMark = errors.New("storage: invalid lazy writer water marks")

// LazyWriterOption configures the background persist and evict worker.
type LazyWriterOption struct {
	Interval      time.Duration // 0 disables the timer, RunOnce still works
	MinDwell      time.Duration
	HighWaterMark float64       // default 0.9
	LowWaterMark  float64       // default 0.75
	Parallelism   int           // default 4
}

func (o *LazyWriterOption) applyDefaults() {
	if o.HighWaterMark == 0 {
		o.HighWaterMark = 0.9
	}
	if o.LowWaterMark == 0 {
		o.LowWaterMark = 0.75
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
}

func (o *LazyWriterOption) Validate() error {
	if o.Interval < 0 || o.MinDwell < 0 {
		return fmt.Errorf("lazy writer interval %v min dwell %v must not be negative", o.Interval, o.MinDwell)
	}
	if o.LowWaterMark <= 0 || o.HighWaterMark > 1 || o.LowWaterMark >= o.HighWaterMark {
		return fmt.Errorf("low %.2f high %.2f: %w", o.LowWaterMark, o.HighWaterMark, ErrInvalidWaterMark)
	}
	return nil
}

func DefaultLazyWriterOption() *LazyWriterOption {
	return &LazyWriterOption{
		Interval:      60 * time.Second,
		MinDwell:      5 * time.Second,
		HighWaterMark: 0.9,
		LowWaterMark:  0.75,
		Parallelism:   4,
	}
}

// CycleStats is the outcome of one lazy writer pass.
type CycleStats struct {
	Persisted     int           `json:"persisted"`
	PersistFailed int           `json:"persistFailed"`
	Evicted       int           `json:"evicted"`
	EvictFailed   int           `json:"evictFailed"`
	BytesEvicted  uint64        `json:"bytesEvicted"`
	Duration      time.Duration `json:"duration"`
}

// LazyWriter copies RAM only replicas to disk once they are old enough and
// evicts persisted RAM copies when a RAM volume runs over its high water mark.
// A failure on one block never stops the rest of the cycle.
type LazyWriter struct {
	store  *Store
	policy EvictionPolicy
	option LazyWriterOption
	task   *util.PeriodicTask

	cycleLock sync.Mutex
	cycles    atomic.Int64
	persisted atomic.Int64
	evicted   atomic.Int64
	failures  atomic.Int64
}

func NewLazyWriter(store *Store, option *LazyWriterOption, policy EvictionPolicy) (*LazyWriter, error) {
	if option == nil {
		option = DefaultLazyWriterOption()
	}
	opt := *option
	opt.applyDefaults()
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = FifoEvictionPolicy{}
	}
	lw := &LazyWriter{
		store:  store,
		policy: policy,
		option: opt,
	}
	lw.task = util.NewPeriodicTask("lazy writer", opt.Interval, store.clock, func(ctx context.Context) {
		lw.RunOnce(ctx)
	})
	return lw, nil
}

func (lw *LazyWriter) Option() LazyWriterOption {
	return lw.option
}

func (lw *LazyWriter) Start() {
	lw.task.Start()
}

func (lw *LazyWriter) Stop() {
	lw.task.Stop()
}

// Trigger wakes the background loop without waiting for the cycle.
func (lw *LazyWriter) Trigger() {
	lw.task.Trigger()
}

// RunOnce runs a full persist and evict cycle synchronously. Cycles never overlap.
func (lw *LazyWriter) RunOnce(ctx context.Context) (cs CycleStats) {
	lw.cycleLock.Lock()
	defer lw.cycleLock.Unlock()

	start := time.Now()
	lw.persistPhase(ctx, &cs)
	persistDone := time.Now()
	lw.evictPhase(ctx, &cs)
	cs.Duration = time.Since(start)

	stats.VolumeServerLazyWriterHistogram.WithLabelValues(stats.LazyWriterPersist).Observe(persistDone.Sub(start).Seconds())
	stats.VolumeServerLazyWriterHistogram.WithLabelValues(stats.LazyWriterEvict).Observe(time.Since(persistDone).Seconds())
	stats.VolumeServerLazyWriterHistogram.WithLabelValues(stats.LazyWriterCycle).Observe(cs.Duration.Seconds())

	lw.cycles.Inc()
	lw.persisted.Add(int64(cs.Persisted))
	lw.evicted.Add(int64(cs.Evicted))
	lw.failures.Add(int64(cs.PersistFailed + cs.EvictFailed))
	if cs.Persisted+cs.PersistFailed+cs.Evicted+cs.EvictFailed > 0 {
		glog.V(1).Infof("lazy writer cycle: persisted %d failed %d, evicted %d (%s) failed %d, took %v",
			cs.Persisted, cs.PersistFailed, cs.Evicted, util.BytesToHumanReadable(cs.BytesEvicted), cs.EvictFailed, cs.Duration)
	}
	return
}

func (lw *LazyWriter) persistPhase(ctx context.Context, cs *CycleStats) {
	candidates := lw.store.Tracker.ListRamOnlyOlderThan(lw.option.MinDwell)
	if len(candidates) == 0 {
		return
	}

	var persisted, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(lw.option.Parallelism)
	for _, r := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := lw.persistReplica(r); err != nil {
				failed.Inc()
				stats.VolumeServerLazyPersistCounter.WithLabelValues(stats.LazyPersistFailed).Inc()
				glog.Warningf("lazy persist %s: %v", r, err)
				return nil
			}
			persisted.Inc()
			stats.VolumeServerLazyPersistCounter.WithLabelValues(stats.LazyPersisted).Inc()
			return nil
		})
	}
	g.Wait()
	cs.Persisted += int(persisted.Load())
	cs.PersistFailed += int(failed.Load())
}

// persistReplica copies the RAM bytes to a disk location, fsyncs them and
// only then records the replica as persisted.
func (lw *LazyWriter) persistReplica(r Replica) error {
	ramLocation, err := lw.store.findRamLocation(r.RamVolume)
	if err != nil {
		return err
	}
	data, err := ramLocation.Storage.ReadBlock(r.Id, r.Gen)
	if err != nil {
		return err
	}
	if actual := backend.Checksum(data); actual != r.Checksum {
		return fmt.Errorf("ram copy of %s: expected %x actual %x: %w", r.Id, r.Checksum, actual, ErrChecksumMismatch)
	}

	diskLocation := lw.store.findFreeDiskLocation()
	if diskLocation == nil {
		return ErrNoDiskLocation
	}
	if diskLocation.Storage.HasBlock(r.Id, r.Gen) {
		// left over from an earlier attempt that failed before MarkPersisted
		if err = diskLocation.Storage.DeleteBlock(r.Id, r.Gen); err != nil {
			return fmt.Errorf("remove stale copy of %s: %w", r.Id, err)
		}
	}
	path, err := writeDurably(diskLocation, r.Id, r.Gen, data)
	if err != nil {
		return err
	}
	if err = lw.store.Tracker.MarkPersisted(r.Id, diskLocation.StorageId, path); err != nil {
		// deleted or changed while being copied
		diskLocation.Storage.DeleteBlock(r.Id, r.Gen)
		return err
	}
	diskLocation.blockCount.Inc()
	return nil
}

func (lw *LazyWriter) evictPhase(ctx context.Context, cs *CycleStats) {
	for _, volume := range lw.store.Allocator.Volumes() {
		if ctx.Err() != nil {
			return
		}
		c, err := lw.store.Allocator.Stats(volume)
		if err != nil || c.UsedRatio() <= lw.option.HighWaterMark {
			continue
		}
		lowWater := uint64(lw.option.LowWaterMark * float64(c.Capacity))
		bytesToFree := c.Used + c.Reserved - lowWater
		glog.V(1).Infof("ram volume %s at %.0f%%, evicting %s", volume, c.UsedRatio()*100, util.BytesToHumanReadable(bytesToFree))
		lw.evictFromVolume(ctx, volume, bytesToFree, cs)
	}
}

// evictFromVolume keeps asking the policy for more candidates when some
// evictions fail, until enough bytes are freed or no candidate is left.
func (lw *LazyWriter) evictFromVolume(ctx context.Context, volume string, bytesToFree uint64, cs *CycleStats) {
	attempted := make(map[types.BlockId]bool)
	var freed uint64
	for freed < bytesToFree && ctx.Err() == nil {
		var remaining []Replica
		for _, r := range lw.store.Tracker.ListEvictionCandidates(volume) {
			if !attempted[r.Id] {
				remaining = append(remaining, r)
			}
		}
		batch := lw.policy.Select(remaining, bytesToFree-freed)
		if len(batch) == 0 {
			return
		}
		for _, r := range batch {
			attempted[r.Id] = true
			if err := lw.evictReplica(r); err != nil {
				cs.EvictFailed++
				stats.VolumeServerLazyPersistCounter.WithLabelValues(stats.LazyEvictFailed).Inc()
				if errors.Is(err, ErrNotPersistedYet) {
					glog.Errorf("evict %s: %v", r, err)
				} else {
					glog.Warningf("evict %s: %v", r, err)
				}
				continue
			}
			freed += r.Size
			cs.Evicted++
			cs.BytesEvicted += r.Size
			stats.VolumeServerLazyPersistCounter.WithLabelValues(stats.LazyEvicted).Inc()
			stats.VolumeServerLazyPersistCounter.WithLabelValues(stats.LazyEvictedBytes).Add(float64(r.Size))
		}
	}
}

// evictReplica verifies the disk copy, then drops the RAM bytes and gives
// the space back, all under the block's exclusive lock.
func (lw *LazyWriter) evictReplica(r Replica) error {
	_, err := lw.store.Tracker.Evict(r.Id, func(current Replica) error {
		diskLocation, err := lw.store.findDiskLocation(current.DiskVolume)
		if err != nil {
			return err
		}
		if err = diskLocation.Storage.VerifyBlock(current.Id, current.Gen, current.Checksum); err != nil {
			return fmt.Errorf("verify disk copy: %w", err)
		}
		ramLocation, err := lw.store.findRamLocation(current.RamVolume)
		if err != nil {
			return err
		}
		if err = ramLocation.Storage.DeleteBlock(current.Id, current.Gen); err != nil && !errors.Is(err, backend.ErrBlockNotFound) {
			return err
		}
		return lw.store.Allocator.Release(current.RamVolume, current.Size)
	})
	return err
}

type LazyWriterStatus struct {
	Running   bool             `json:"running"`
	Option    LazyWriterOption `json:"option"`
	Cycles    int64            `json:"cycles"`
	Persisted int64            `json:"persisted"`
	Evicted   int64            `json:"evicted"`
	Failures  int64            `json:"failures"`
}

func (lw *LazyWriter) Status() LazyWriterStatus {
	return LazyWriterStatus{
		Running:   lw.task.IsRunning(),
		Option:    lw.option,
		Cycles:    lw.cycles.Load(),
		Persisted: lw.persisted.Load(),
		Evicted:   lw.evicted.Load(),
		Failures:  lw.failures.Load(),
	}
}
