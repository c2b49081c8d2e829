package topology_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/sequence"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/topology"
	"github.com/seaweedfs/ramtier/weed/util"
)

const blockSize = 4096

type cluster struct {
	clock    *clock.Mock
	topo     *topology.Topology
	ns       *namespace.Namesystem
	scrubber *topology.LazyPersistFileScrubber
	store    *storage.Store
}

func newCluster(t *testing.T) *cluster {
	clk := clock.NewMock()
	topo := topology.NewTopology(time.Second, 30*time.Second, clk)
	ns := namespace.NewNamesystem(namespace.NewMemoryStore(), topo, sequence.NewMemorySequencer(), clk)
	store, err := storage.NewStore(&storage.StoreOption{
		Ip:          "127.0.0.1",
		Port:        18080,
		RamVolumes:  []storage.RamVolumeOption{{Name: "ram0", Capacity: 4 * blockSize}},
		Directories: []string{t.TempDir()},
		Clock:       clk,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return &cluster{
		clock:    clk,
		topo:     topo,
		ns:       ns,
		scrubber: topology.NewLazyPersistFileScrubber(topo, topo, ns, topology.DefaultScrubberInterval, clk),
		store:    store,
	}
}

// writeFile writes one block through the namespace and the volume store and
// reports it to the master.
func (c *cluster) writeFile(t *testing.T, path util.FullPath, lazyPersist bool) namespace.BlockMeta {
	ctx := context.Background()
	_, err := c.ns.Create(ctx, path, namespace.CreateOption{LazyPersist: lazyPersist, Replication: 1})
	require.NoError(t, err)
	block, err := c.ns.AddBlock(ctx, path)
	require.NoError(t, err)
	medium := types.DiskMedium
	if lazyPersist {
		medium = types.RamDiskMedium
	}
	_, err = c.store.WriteBlock(block.Id, block.Gen, bytes.Repeat([]byte{0xab}, blockSize), medium)
	require.NoError(t, err)
	require.NoError(t, c.ns.CommitBlock(ctx, path, block.Id, blockSize))
	require.NoError(t, c.ns.Complete(ctx, path))

	resp := c.topo.ProcessHeartbeat(c.store.CollectHeartbeat())
	assert.Empty(t, resp.BlocksToDelete)
	return block
}

func TestRamOnlyFileOnDeadNodeIsDeleted(t *testing.T) {
	c := newCluster(t)
	ctx := context.Background()

	lazy := c.writeFile(t, "/lazy.dat", true)
	c.writeFile(t, "/durable.dat", false)
	assert.Equal(t, 0, c.ns.GetUnderReplicatedCount())

	c.clock.Add(time.Minute)
	c.topo.CollectDeadNodes(ctx)
	require.True(t, c.topo.IsDead(c.store.NodeId()))
	assert.Equal(t, 2, c.ns.GetUnderReplicatedCount())

	result := c.scrubber.RunOnce(ctx)
	assert.Equal(t, 1, result.Unrecoverable)
	assert.Equal(t, 1, result.DeletedFiles)

	assert.False(t, c.ns.Exists(ctx, "/lazy.dat"))
	assert.True(t, c.ns.Exists(ctx, "/durable.dat"))
	_, found := c.topo.Locations(lazy.Id)
	assert.False(t, found)
	// only the disk file's block still waits for re-replication
	assert.Equal(t, 1, c.ns.GetUnderReplicatedCount())

	// the node comes back and is told to drop the orphaned replica
	resp := c.topo.ProcessHeartbeat(c.store.CollectHeartbeat())
	assert.Equal(t, []types.BlockId{lazy.Id}, resp.BlocksToDelete)
	assert.Equal(t, 0, c.ns.GetUnderReplicatedCount())
	deleted, err := c.store.DeleteBlocks(resp.BlocksToDelete)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestPersistedLazyFileSurvivesDeadNode(t *testing.T) {
	c := newCluster(t)
	ctx := context.Background()

	writer, err := storage.NewLazyWriter(c.store, &storage.LazyWriterOption{}, storage.FifoEvictionPolicy{})
	require.NoError(t, err)

	c.writeFile(t, "/lazy.dat", true)
	stats := writer.RunOnce(ctx)
	require.Equal(t, 1, stats.Persisted)
	c.topo.ProcessHeartbeat(c.store.CollectHeartbeat())

	c.clock.Add(time.Minute)
	c.topo.CollectDeadNodes(ctx)
	result := c.scrubber.RunOnce(ctx)
	assert.Equal(t, 0, result.Unrecoverable)
	assert.True(t, c.ns.Exists(ctx, "/lazy.dat"))
	assert.Equal(t, 1, c.ns.GetUnderReplicatedCount())
}
