package storage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaweedfs/ramtier/weed/storage/types"
)

func newTestTracker() (*ReplicaTracker, *clock.Mock) {
	clk := clock.NewMock()
	clk.Add(time.Hour)
	return NewReplicaTracker(clk), clk
}

func TestReplicaTrackerLifecycle(t *testing.T) {
	rt, clk := newTestTracker()

	require.NoError(t, rt.RecordRamReplica(1, 1001, "ram0", 10, 0xabc, clk.Now()))
	err := rt.RecordRamReplica(1, 1001, "ram1", 10, 0xabc, clk.Now())
	assert.ErrorIs(t, err, ErrReplicaExists)

	r, found := rt.Lookup(1)
	require.True(t, found)
	assert.Equal(t, types.RamOnly, r.State)
	assert.Equal(t, "ram0", r.RamVolume)

	require.NoError(t, rt.MarkPersisted(1, "disk0", "/data/blk_1_1001"))
	assert.ErrorIs(t, rt.MarkPersisted(1, "disk0", "/data/blk_1_1001"), ErrNotOnRamDisk)
	assert.ErrorIs(t, rt.MarkPersisted(2, "disk0", "/data/blk_2_1"), ErrReplicaNotFound)

	r, _ = rt.Lookup(1)
	assert.Equal(t, types.RamAndDisk, r.State)
	assert.Equal(t, "/data/blk_1_1001", r.DiskPath)

	evicted, err := rt.Evict(1, func(r Replica) error {
		assert.Equal(t, "ram0", r.RamVolume)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, types.DiskOnly, evicted.State)
	assert.Empty(t, evicted.RamVolume)

	_, err = rt.Evict(1, nil)
	assert.ErrorIs(t, err, ErrNoRamReplica)

	_, err = rt.Remove(1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rt.Count())
	_, err = rt.Remove(1, nil)
	assert.ErrorIs(t, err, ErrReplicaNotFound)
}

func TestReplicaTrackerEvictBeforePersist(t *testing.T) {
	rt, clk := newTestTracker()
	require.NoError(t, rt.RecordRamReplica(5, 1, "ram0", 10, 1, clk.Now()))

	called := false
	_, err := rt.Evict(5, func(r Replica) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotPersistedYet)
	assert.False(t, called)

	r, _ := rt.Lookup(5)
	assert.Equal(t, types.RamOnly, r.State)
	assert.Equal(t, "ram0", r.RamVolume)
}

func TestReplicaTrackerEvictCallbackFailure(t *testing.T) {
	rt, clk := newTestTracker()
	require.NoError(t, rt.RecordRamReplica(5, 1, "ram0", 10, 1, clk.Now()))
	require.NoError(t, rt.MarkPersisted(5, "disk0", "p"))

	boom := errors.New("disk copy missing")
	_, err := rt.Evict(5, func(r Replica) error { return boom })
	assert.ErrorIs(t, err, boom)

	r, _ := rt.Lookup(5)
	assert.Equal(t, types.RamAndDisk, r.State)
}

func TestReplicaTrackerListings(t *testing.T) {
	rt, clk := newTestTracker()
	start := clk.Now()

	require.NoError(t, rt.RecordRamReplica(3, 1, "ram0", 10, 1, start))
	require.NoError(t, rt.RecordRamReplica(2, 1, "ram1", 10, 1, start))
	require.NoError(t, rt.RecordRamReplica(1, 1, "ram0", 10, 1, start.Add(4*time.Second)))
	require.NoError(t, rt.RecordDiskReplica(9, 1, "disk0", "p9", 10, 1, start))
	clk.Add(5 * time.Second)

	assert.Equal(t, []types.BlockId{2, 3}, selectedIds(rt.ListRamOnlyOlderThan(5*time.Second)))
	assert.Equal(t, []types.BlockId{2, 3, 1}, selectedIds(rt.ListRamOnlyOlderThan(0)))

	require.NoError(t, rt.MarkPersisted(1, "disk0", "p1"))
	require.NoError(t, rt.MarkPersisted(3, "disk0", "p3"))
	require.NoError(t, rt.MarkPersisted(2, "disk0", "p2"))
	assert.Equal(t, []types.BlockId{3, 1}, selectedIds(rt.ListEvictionCandidates("ram0")))
	assert.Equal(t, []types.BlockId{2, 3, 1}, selectedIds(rt.ListEvictionCandidates("")))
	assert.Equal(t, []types.BlockId{1, 2, 3, 9}, selectedIds(rt.Replicas()))
}

func TestReplicaTrackerReadLockBlocksEviction(t *testing.T) {
	rt, clk := newTestTracker()
	require.NoError(t, rt.RecordRamReplica(7, 1, "ram0", 10, 1, clk.Now()))
	require.NoError(t, rt.MarkPersisted(7, "disk0", "p"))

	reading := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.WithReadLock(7, func(r Replica) error {
			assert.Equal(t, types.RamAndDisk, r.State)
			close(reading)
			<-release
			return nil
		})
	}()
	<-reading

	evicted := make(chan struct{})
	go func() {
		_, err := rt.Evict(7, nil)
		assert.NoError(t, err)
		close(evicted)
	}()

	select {
	case <-evicted:
		t.Fatal("eviction finished while a reader held the block")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	wg.Wait()
	<-evicted

	err := rt.WithReadLock(7, func(r Replica) error {
		assert.Equal(t, types.DiskOnly, r.State)
		return nil
	})
	assert.NoError(t, err)
	assert.ErrorIs(t, rt.WithReadLock(8, func(Replica) error { return nil }), ErrReplicaNotFound)
}

func TestReplicaTrackerDifferentBlocksDoNotBlock(t *testing.T) {
	rt, clk := newTestTracker()
	require.NoError(t, rt.RecordRamReplica(1, 1, "ram0", 10, 1, clk.Now()))
	require.NoError(t, rt.MarkPersisted(1, "disk0", "p"))

	inEvict := make(chan struct{})
	release := make(chan struct{})
	go rt.Evict(1, func(r Replica) error {
		close(inEvict)
		<-release
		return nil
	})
	<-inEvict

	// block 2 proceeds while block 1 is held exclusively
	require.NoError(t, rt.RecordRamReplica(2, 1, "ram0", 10, 1, clk.Now()))
	require.NoError(t, rt.MarkPersisted(2, "disk0", "p2"))
	close(release)
}
