package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/seaweedfs/ramtier/weed/storage/backend"
	"github.com/seaweedfs/ramtier/weed/storage/types"
)

// faultyDiskStorage fails Sync while failSync is set.
type faultyDiskStorage struct {
	*backend.DiskStorage
	failSync atomic.Bool
}

var errInjectedSync = errors.New("injected fsync failure")

func (f *faultyDiskStorage) Sync(id types.BlockId, gs types.GenerationStamp) error {
	if f.failSync.Load() {
		return errInjectedSync
	}
	return f.DiskStorage.Sync(id, gs)
}

func newLazyWriter(t *testing.T, s *Store, option *LazyWriterOption) *LazyWriter {
	lw, err := NewLazyWriter(s, option, nil)
	require.NoError(t, err)
	return lw
}

func TestLazyWriterOptionValidate(t *testing.T) {
	_, err := NewLazyWriter(&Store{clock: clock.NewMock()}, &LazyWriterOption{HighWaterMark: 0.5, LowWaterMark: 0.8}, nil)
	assert.ErrorIs(t, err, ErrInvalidWaterMark)
	_, err = NewLazyWriter(&Store{clock: clock.NewMock()}, &LazyWriterOption{HighWaterMark: 0.8, LowWaterMark: 0.8}, nil)
	assert.ErrorIs(t, err, ErrInvalidWaterMark)
	_, err = NewLazyWriter(&Store{clock: clock.NewMock()}, &LazyWriterOption{HighWaterMark: 1.5}, nil)
	assert.ErrorIs(t, err, ErrInvalidWaterMark)
	_, err = NewLazyWriter(&Store{clock: clock.NewMock()}, &LazyWriterOption{MinDwell: -time.Second}, nil)
	assert.Error(t, err)

	lw, err := NewLazyWriter(&Store{clock: clock.NewMock()}, &LazyWriterOption{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, lw.Option().HighWaterMark)
	assert.Equal(t, 0.75, lw.Option().LowWaterMark)
	assert.Equal(t, 4, lw.Option().Parallelism)
}

func TestLazyWriterHonorsMinDwell(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(t, 10, clk)
	lw := newLazyWriter(t, s, DefaultLazyWriterOption())

	_, err := s.WriteBlock(1, 1, blockContent(1), types.RamDiskMedium)
	require.NoError(t, err)

	cs := lw.RunOnce(context.Background())
	assert.Equal(t, 0, cs.Persisted)
	r, _ := s.Tracker.Lookup(1)
	assert.Equal(t, types.RamOnly, r.State)

	clk.Add(lw.Option().MinDwell)
	cs = lw.RunOnce(context.Background())
	assert.Equal(t, 1, cs.Persisted)
	r, _ = s.Tracker.Lookup(1)
	assert.Equal(t, types.RamAndDisk, r.State)
	assert.FileExists(t, r.DiskPath)
	assert.FileExists(t, r.DiskPath+types.MetaFileExtension)
	// below the high water mark nothing is evicted
	assert.Equal(t, 0, cs.Evicted)
}

func TestEvictAfterPersistKeepsContent(t *testing.T) {
	s := newTestStore(t, 2, clock.NewMock())
	lw := newLazyWriter(t, s, &LazyWriterOption{})

	want := blockContent(42)
	_, err := s.WriteBlock(42, 1, want, types.RamDiskMedium)
	require.NoError(t, err)
	before, err := s.ReadBlock(42)
	require.NoError(t, err)

	cs := lw.RunOnce(context.Background())
	require.Equal(t, 1, cs.Persisted)
	require.Equal(t, 0, cs.Evicted)

	r, _ := s.Tracker.Lookup(42)
	require.NoError(t, lw.evictReplica(r))

	r, _ = s.Tracker.Lookup(42)
	assert.Equal(t, types.DiskOnly, r.State)
	after, err := s.ReadBlock(42)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, want, after)

	c, _ := s.Allocator.Stats("ram0")
	assert.Equal(t, uint64(0), c.Used)
	assert.Equal(t, 0, s.RamLocations()[0].Storage.(*backend.MemoryStorage).BlockCount())
}

func TestEvictBeforePersistFails(t *testing.T) {
	s := newTestStore(t, 2, clock.NewMock())
	lw := newLazyWriter(t, s, DefaultLazyWriterOption())

	_, err := s.WriteBlock(7, 1, blockContent(7), types.RamDiskMedium)
	require.NoError(t, err)

	r, _ := s.Tracker.Lookup(7)
	assert.ErrorIs(t, lw.evictReplica(r), ErrNotPersistedYet)

	r, _ = s.Tracker.Lookup(7)
	assert.Equal(t, types.RamOnly, r.State)
	assert.True(t, s.RamLocations()[0].Storage.HasBlock(7, 1))
	c, _ := s.Allocator.Stats("ram0")
	assert.Equal(t, uint64(testBlockSize), c.Used)
	data, err := s.ReadBlock(7)
	require.NoError(t, err)
	assert.Equal(t, blockContent(7), data)
}

func TestLazyWriterNeverEvictsUnpersisted(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(t, 2, clk)
	lw := newLazyWriter(t, s, DefaultLazyWriterOption())

	for id := types.BlockId(1); id <= 2; id++ {
		_, err := s.WriteBlock(id, 1, blockContent(id), types.RamDiskMedium)
		require.NoError(t, err)
	}
	// full, but nothing is old enough to persist
	cs := lw.RunOnce(context.Background())
	assert.Equal(t, 0, cs.Persisted)
	assert.Equal(t, 0, cs.Evicted)
	assert.Equal(t, 0, cs.EvictFailed)
	c, _ := s.Allocator.Stats("ram0")
	assert.Equal(t, uint64(2*testBlockSize), c.Used)

	clk.Add(lw.Option().MinDwell)
	cs = lw.RunOnce(context.Background())
	assert.Equal(t, 2, cs.Persisted)
	// 100% used, evict down to 75%
	assert.Equal(t, 1, cs.Evicted)
	r, _ := s.Tracker.Lookup(1)
	assert.Equal(t, types.DiskOnly, r.State)
	r, _ = s.Tracker.Lookup(2)
	assert.Equal(t, types.RamAndDisk, r.State)
}

func TestLazyWriterRetriesFailedPersist(t *testing.T) {
	s, err := NewStore(&StoreOption{
		RamVolumes: []RamVolumeOption{{Name: "ram0", Capacity: 4 * testBlockSize}},
		Clock:      clock.NewMock(),
	})
	require.NoError(t, err)
	ds, err := backend.NewDiskStorage("faulty", t.TempDir())
	require.NoError(t, err)
	faulty := &faultyDiskStorage{DiskStorage: ds}
	require.NoError(t, s.AddDiskLocation(NewDiskLocationWithStorage(uuid.New().String(), faulty)))
	lw := newLazyWriter(t, s, &LazyWriterOption{})

	_, err = s.WriteBlock(1, 1, blockContent(1), types.RamDiskMedium)
	require.NoError(t, err)

	faulty.failSync.Store(true)
	cs := lw.RunOnce(context.Background())
	assert.Equal(t, 0, cs.Persisted)
	assert.Equal(t, 1, cs.PersistFailed)
	r, _ := s.Tracker.Lookup(1)
	assert.Equal(t, types.RamOnly, r.State)
	assert.False(t, faulty.HasBlock(1, 1))

	faulty.failSync.Store(false)
	cs = lw.RunOnce(context.Background())
	assert.Equal(t, 1, cs.Persisted)
	r, _ = s.Tracker.Lookup(1)
	assert.Equal(t, types.RamAndDisk, r.State)
}

func TestLazyWriterSkipsCorruptDiskCopy(t *testing.T) {
	s := newTestStore(t, 3, clock.NewMock())
	persister := newLazyWriter(t, s, &LazyWriterOption{HighWaterMark: 1, LowWaterMark: 0.99})
	for id := types.BlockId(1); id <= 3; id++ {
		_, err := s.WriteBlock(id, 1, blockContent(id), types.RamDiskMedium)
		require.NoError(t, err)
	}
	require.Equal(t, 3, persister.RunOnce(context.Background()).Persisted)

	r, _ := s.Tracker.Lookup(1)
	require.NoError(t, os.WriteFile(r.DiskPath, blockContent(99), 0644))

	evictor := newLazyWriter(t, s, &LazyWriterOption{HighWaterMark: 0.5, LowWaterMark: 0.4})
	cs := evictor.RunOnce(context.Background())
	assert.Equal(t, 1, cs.EvictFailed)
	assert.Equal(t, 2, cs.Evicted)
	assert.Equal(t, uint64(2*testBlockSize), cs.BytesEvicted)

	r, _ = s.Tracker.Lookup(1)
	assert.Equal(t, types.RamAndDisk, r.State)
	data, err := s.ReadBlock(1)
	require.NoError(t, err)
	assert.Equal(t, blockContent(1), data)
	for _, id := range []types.BlockId{2, 3} {
		r, _ = s.Tracker.Lookup(id)
		assert.Equal(t, types.DiskOnly, r.State)
	}
}

// Five readers keep reading a pseudo random file while its blocks move from
// RAM to disk.
func TestConcurrentReadsAcrossEviction(t *testing.T) {
	const blockCount, readers = 4, 5
	s := newTestStore(t, blockCount, clock.NewMock())
	lw := newLazyWriter(t, s, &LazyWriterOption{HighWaterMark: 0.5, LowWaterMark: 0.1})

	random := rand.New(rand.NewSource(0xFADED))
	original := make([][]byte, blockCount)
	for i := range original {
		original[i] = make([]byte, testBlockSize)
		random.Read(original[i])
		_, err := s.WriteBlock(types.BlockId(i+1), 1, original[i], types.RamDiskMedium)
		require.NoError(t, err)
	}

	var done atomic.Bool
	var wg sync.WaitGroup
	for reader := 0; reader < readers; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				finished := done.Load()
				for i := range original {
					data, err := s.ReadBlock(types.BlockId(i + 1))
					if !assert.NoError(t, err) || !assert.Equal(t, original[i], data) {
						return
					}
				}
				if finished {
					return
				}
			}
		}()
	}

	cs := lw.RunOnce(context.Background())
	done.Store(true)
	wg.Wait()

	assert.Equal(t, blockCount, cs.Persisted)
	assert.Equal(t, blockCount, cs.Evicted)
	for i := range original {
		r, _ := s.Tracker.Lookup(types.BlockId(i + 1))
		assert.Equal(t, types.DiskOnly, r.State)
	}
}

// Four writers with five files each fill a RAM tier that only holds nine
// blocks. A writer that is denied space runs a lazy writer cycle and retries.
func TestConcurrentWritersNeverExceedCapacity(t *testing.T) {
	const writers, filesPerWriter, ramBlocks = 4, 5, 9
	s := newTestStore(t, ramBlocks, clock.NewMock())
	lw := newLazyWriter(t, s, &LazyWriterOption{Parallelism: 2})
	capacity := uint64(ramBlocks * testBlockSize)

	var stopMonitor atomic.Bool
	var maxUsed atomic.Uint64
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		for !stopMonitor.Load() {
			c, _ := s.Allocator.Stats("ram0")
			if c.Used > maxUsed.Load() {
				maxUsed.Store(c.Used)
			}
			assert.LessOrEqual(t, c.Used+c.Reserved, c.Capacity)
			time.Sleep(100 * time.Microsecond)
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for f := 0; f < filesPerWriter; f++ {
				id := types.BlockId(w*100 + f + 1)
				var err error
				for attempt := 0; attempt < 100; attempt++ {
					if _, err = s.WriteBlock(id, 1, blockContent(id), types.RamDiskMedium); !errors.Is(err, ErrInsufficientSpace) {
						break
					}
					lw.RunOnce(context.Background())
				}
				assert.NoError(t, err, fmt.Sprintf("writer %d file %d", w, f))
			}
		}(w)
	}
	wg.Wait()
	stopMonitor.Store(true)
	<-monitorDone

	assert.LessOrEqual(t, maxUsed.Load(), capacity)
	assert.Equal(t, writers*filesPerWriter, s.Tracker.Count())
	for w := 0; w < writers; w++ {
		for f := 0; f < filesPerWriter; f++ {
			id := types.BlockId(w*100 + f + 1)
			data, err := s.ReadBlock(id)
			require.NoError(t, err)
			assert.Equal(t, blockContent(id), data)
		}
	}
}

func TestLazyWriterPeriodicTask(t *testing.T) {
	clk := clock.NewMock()
	s := newTestStore(t, 4, clk)
	lw := newLazyWriter(t, s, &LazyWriterOption{Interval: time.Minute})
	_, err := s.WriteBlock(1, 1, blockContent(1), types.RamDiskMedium)
	require.NoError(t, err)

	lw.Start()
	defer lw.Stop()
	assert.True(t, lw.Status().Running)

	assert.Eventually(t, func() bool {
		clk.Add(time.Minute)
		r, _ := s.Tracker.Lookup(1)
		return r.State == types.RamAndDisk
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return lw.Status().Cycles >= 1
	}, 5*time.Second, 10*time.Millisecond)
}
