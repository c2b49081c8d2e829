package topology

import (
	"cmp"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

// Topology tracks data nodes, where each block lives and which blocks lack
// enough live replicas.
type Topology struct {
	sync.RWMutex

	pulse       time.Duration
	deadTimeout time.Duration
	clock       clock.Clock

	nodes           map[string]*DataNode
	blocks          map[types.BlockId]*blockInfo
	underReplicated map[types.BlockId]struct{}

	monitor *util.PeriodicTask
}

type blockInfo struct {
	id               types.BlockId
	owner            util.FullPath
	expectedReplicas int
	lazyPersist      bool
	nodes            map[string]struct{}
}

// NewTopology creates a topology. A node is dead once its last heartbeat is
// older than deadTimeout; the replication monitor runs every pulse.
func NewTopology(pulse, deadTimeout time.Duration, clk clock.Clock) *Topology {
	if clk == nil {
		clk = clock.New()
	}
	t := &Topology{
		pulse:           pulse,
		deadTimeout:     deadTimeout,
		clock:           clk,
		nodes:           make(map[string]*DataNode),
		blocks:          make(map[types.BlockId]*blockInfo),
		underReplicated: make(map[types.BlockId]struct{}),
	}
	t.monitor = util.NewPeriodicTask("replication monitor", pulse, clk, t.CollectDeadNodes)
	return t
}

func (t *Topology) DeadTimeout() time.Duration {
	return t.deadTimeout
}

// ProcessHeartbeat refreshes a data node from its full block report and
// returns the blocks the node should delete.
func (t *Topology) ProcessHeartbeat(hb *storage.Heartbeat) *storage.HeartbeatResponse {
	t.Lock()
	defer t.Unlock()

	stats.MasterReceivedHeartbeatCounter.WithLabelValues(stats.HeartbeatFull).Inc()

	dn, found := t.nodes[hb.NodeId]
	if !found {
		stats.MasterReceivedHeartbeatCounter.WithLabelValues(stats.HeartbeatNewNode).Inc()
		dn = NewDataNode(hb.NodeId)
		t.nodes[hb.NodeId] = dn
		glog.V(0).Infof("added data node %s at %s", hb.NodeId, stats.JoinHostPort(hb.Ip, hb.Port))
	}
	revived := dn.dead
	dn.Ip, dn.Port = hb.Ip, hb.Port
	dn.RamCapacity, dn.RamUsed = hb.RamCapacity, hb.RamUsed
	dn.LastSeen = t.clock.Now()
	dn.dead = false
	if revived {
		glog.V(0).Infof("data node %s is alive again", dn.Id)
		t.updateDeadNodeGauge()
	}

	newBlocks, deletedBlocks, changed := dn.UpdateBlocks(hb.Blocks)
	for _, b := range deletedBlocks {
		if info, ok := t.blocks[b.Id]; ok {
			delete(info.nodes, dn.Id)
			t.updateNeededReplication(info)
		}
	}
	for _, b := range append(newBlocks, changed...) {
		if info, ok := t.blocks[b.Id]; ok {
			info.nodes[dn.Id] = struct{}{}
			t.updateNeededReplication(info)
		}
	}
	for _, b := range hb.Blocks {
		if _, ok := t.blocks[b.Id]; !ok {
			glog.V(1).Infof("%s reports unknown block %d, scheduling deletion", dn.Id, b.Id)
			dn.queueDelete(b.Id)
		}
	}
	if revived {
		for id := range dn.blocks {
			if info, ok := t.blocks[id]; ok {
				t.updateNeededReplication(info)
			}
		}
	}

	return &storage.HeartbeatResponse{BlocksToDelete: dn.drainDeletes()}
}

// AddBlock registers a block owned by a file. Replicas are attached as data
// nodes report them.
func (t *Topology) AddBlock(id types.BlockId, owner util.FullPath, expectedReplicas int, lazyPersist bool) {
	t.Lock()
	defer t.Unlock()

	if info, found := t.blocks[id]; found {
		info.owner, info.expectedReplicas, info.lazyPersist = owner, expectedReplicas, lazyPersist
		t.updateNeededReplication(info)
		return
	}
	info := &blockInfo{
		id:               id,
		owner:            owner,
		expectedReplicas: expectedReplicas,
		lazyPersist:      lazyPersist,
		nodes:            make(map[string]struct{}),
	}
	for _, dn := range t.nodes {
		if _, ok := dn.blocks[id]; ok {
			info.nodes[dn.Id] = struct{}{}
		}
	}
	t.blocks[id] = info
	if len(info.nodes) > 0 {
		t.updateNeededReplication(info)
	}
}

// RemoveBlock forgets the block and schedules its replicas for deletion on
// every node holding one.
func (t *Topology) RemoveBlock(id types.BlockId) {
	t.Lock()
	defer t.Unlock()

	info, found := t.blocks[id]
	if !found {
		return
	}
	for nodeId := range info.nodes {
		if dn, ok := t.nodes[nodeId]; ok {
			dn.removeBlock(id)
		}
	}
	delete(t.blocks, id)
	if _, ok := t.underReplicated[id]; ok {
		delete(t.underReplicated, id)
		stats.MasterUnderReplicatedBlockGauge.Set(float64(len(t.underReplicated)))
	}
}

// BlockLocation is one reported replica of a block.
type BlockLocation struct {
	NodeId string                `json:"nodeId"`
	Url    string                `json:"url"`
	Gen    types.GenerationStamp `json:"gen"`
	Size   uint64                `json:"size"`
	State  types.ReplicaState    `json:"state"`
}

func (l BlockLocation) Persisted() bool {
	return l.State.IsDurable()
}

// BlockLocations is a block with its owner and every known replica,
// including replicas on dead nodes.
type BlockLocations struct {
	Id               types.BlockId   `json:"id"`
	Owner            util.FullPath   `json:"owner"`
	ExpectedReplicas int             `json:"expectedReplicas"`
	LazyPersist      bool            `json:"lazyPersist"`
	Replicas         []BlockLocation `json:"replicas"`
}

func (t *Topology) Locations(id types.BlockId) (BlockLocations, bool) {
	t.RLock()
	defer t.RUnlock()
	info, found := t.blocks[id]
	if !found {
		return BlockLocations{}, false
	}
	return t.toLocations(info), true
}

// Blocks returns a snapshot of the block map ordered by block id.
func (t *Topology) Blocks() []BlockLocations {
	t.RLock()
	defer t.RUnlock()
	list := make([]BlockLocations, 0, len(t.blocks))
	for _, info := range t.blocks {
		list = append(list, t.toLocations(info))
	}
	slices.SortFunc(list, func(a, b BlockLocations) int { return cmp.Compare(a.Id, b.Id) })
	return list
}

// LazyPersistBlocks is Blocks restricted to lazy persist files.
func (t *Topology) LazyPersistBlocks() []BlockLocations {
	t.RLock()
	defer t.RUnlock()
	var list []BlockLocations
	for _, info := range t.blocks {
		if info.lazyPersist {
			list = append(list, t.toLocations(info))
		}
	}
	slices.SortFunc(list, func(a, b BlockLocations) int { return cmp.Compare(a.Id, b.Id) })
	return list
}

func (t *Topology) toLocations(info *blockInfo) BlockLocations {
	locations := BlockLocations{
		Id:               info.id,
		Owner:            info.owner,
		ExpectedReplicas: info.expectedReplicas,
		LazyPersist:      info.lazyPersist,
	}
	for nodeId := range info.nodes {
		dn, ok := t.nodes[nodeId]
		if !ok {
			continue
		}
		report := dn.blocks[info.id]
		locations.Replicas = append(locations.Replicas, BlockLocation{
			NodeId: dn.Id,
			Url:    dn.Url(),
			Gen:    report.Gen,
			Size:   report.Size,
			State:  report.State,
		})
	}
	slices.SortFunc(locations.Replicas, func(a, b BlockLocation) int {
		return cmp.Compare(a.NodeId, b.NodeId)
	})
	return locations
}

func (t *Topology) liveReplicas(info *blockInfo) (live int) {
	for nodeId := range info.nodes {
		if dn, ok := t.nodes[nodeId]; ok && !dn.dead {
			live++
		}
	}
	return
}

// updateNeededReplication must be called with the write lock held.
func (t *Topology) updateNeededReplication(info *blockInfo) {
	_, queued := t.underReplicated[info.id]
	needed := t.liveReplicas(info) < info.expectedReplicas
	switch {
	case needed && !queued:
		t.underReplicated[info.id] = struct{}{}
		glog.V(1).Infof("block %d of %s is under replicated", info.id, info.owner)
	case !needed && queued:
		delete(t.underReplicated, info.id)
	default:
		return
	}
	stats.MasterUnderReplicatedBlockGauge.Set(float64(len(t.underReplicated)))
}

func (t *Topology) UnderReplicatedCount() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.underReplicated)
}

func (t *Topology) UnderReplicatedBlocks() []types.BlockId {
	t.RLock()
	defer t.RUnlock()
	ids := make([]types.BlockId, 0, len(t.underReplicated))
	for id := range t.underReplicated {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RemoveFromUnderReplicated drops a block from re-replication work and
// reports whether it was queued.
func (t *Topology) RemoveFromUnderReplicated(id types.BlockId) bool {
	t.Lock()
	defer t.Unlock()
	if _, ok := t.underReplicated[id]; !ok {
		return false
	}
	delete(t.underReplicated, id)
	stats.MasterUnderReplicatedBlockGauge.Set(float64(len(t.underReplicated)))
	return true
}

func (t *Topology) DataNodes() []DataNodeInfo {
	t.RLock()
	defer t.RUnlock()
	infos := make([]DataNodeInfo, 0, len(t.nodes))
	for _, dn := range t.nodes {
		infos = append(infos, dn.ToInfo())
	}
	slices.SortFunc(infos, func(a, b DataNodeInfo) int { return cmp.Compare(a.Id, b.Id) })
	return infos
}
