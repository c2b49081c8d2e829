package topology

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/storage/types"
)

// DataNode is the master's view of one volume server. It is guarded by the
// owning Topology's lock.
type DataNode struct {
	Id          string
	Ip          string
	Port        int
	LastSeen    time.Time
	RamCapacity uint64
	RamUsed     uint64

	dead           bool
	blocks         map[types.BlockId]storage.BlockReport
	pendingDeletes map[types.BlockId]struct{}
}

func NewDataNode(id string) *DataNode {
	return &DataNode{
		Id:             id,
		blocks:         make(map[types.BlockId]storage.BlockReport),
		pendingDeletes: make(map[types.BlockId]struct{}),
	}
}

func (dn *DataNode) String() string {
	return fmt.Sprintf("Node:%s, blocks:%d, Ip:%s, Port:%d, dead:%v", dn.Id, len(dn.blocks), dn.Ip, dn.Port, dn.dead)
}

func (dn *DataNode) Url() string {
	return stats.JoinHostPort(dn.Ip, dn.Port)
}

// UpdateBlocks replaces the known block set with a full report.
// Blocks whose replica state changed are returned in changed.
func (dn *DataNode) UpdateBlocks(actualBlocks []storage.BlockReport) (newBlocks, deletedBlocks, changed []storage.BlockReport) {
	actualBlockMap := make(map[types.BlockId]storage.BlockReport, len(actualBlocks))
	for _, b := range actualBlocks {
		actualBlockMap[b.Id] = b
	}

	for id, b := range dn.blocks {
		if _, ok := actualBlockMap[id]; !ok {
			glog.V(2).Infof("%s no longer reports block %d", dn.Id, id)
			delete(dn.blocks, id)
			deletedBlocks = append(deletedBlocks, b)
		}
	}
	for _, b := range actualBlocks {
		old, found := dn.blocks[b.Id]
		dn.blocks[b.Id] = b
		if !found {
			newBlocks = append(newBlocks, b)
		} else if old.State != b.State || old.Gen != b.Gen {
			changed = append(changed, b)
		}
	}
	return
}

func (dn *DataNode) removeBlock(id types.BlockId) {
	if _, found := dn.blocks[id]; !found {
		return
	}
	delete(dn.blocks, id)
	dn.pendingDeletes[id] = struct{}{}
}

func (dn *DataNode) queueDelete(id types.BlockId) {
	dn.pendingDeletes[id] = struct{}{}
}

// drainDeletes returns the queued deletions in id order and clears the queue.
func (dn *DataNode) drainDeletes() (ids []types.BlockId) {
	for id := range dn.pendingDeletes {
		ids = append(ids, id)
	}
	clear(dn.pendingDeletes)
	slices.Sort(ids)
	return
}

func (dn *DataNode) BlockCount() int {
	return len(dn.blocks)
}

// DataNodeInfo is a snapshot of a data node for status pages.
type DataNodeInfo struct {
	Id          string    `json:"id"`
	Url         string    `json:"url"`
	LastSeen    time.Time `json:"lastSeen"`
	Dead        bool      `json:"dead"`
	RamCapacity uint64    `json:"ramCapacity"`
	RamUsed     uint64    `json:"ramUsed"`
	Blocks      int       `json:"blocks"`
}

func (dn *DataNode) ToInfo() DataNodeInfo {
	return DataNodeInfo{
		Id:          dn.Id,
		Url:         dn.Url(),
		LastSeen:    dn.LastSeen,
		Dead:        dn.dead,
		RamCapacity: dn.RamCapacity,
		RamUsed:     dn.RamUsed,
		Blocks:      len(dn.blocks),
	}
}
