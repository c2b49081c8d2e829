package topology

import (
	"context"

	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"github.com/seaweedfs/ramtier/weed/stats"
)

// StartRefresh runs the replication monitor every pulse.
func (t *Topology) StartRefresh() {
	t.monitor.Start()
}

func (t *Topology) StopRefresh() {
	t.monitor.Stop()
}

// TriggerRefresh asks the replication monitor to run now.
func (t *Topology) TriggerRefresh() {
	t.monitor.Trigger()
}

// CollectDeadNodes marks data nodes whose heartbeat is older than the dead
// timeout as dead and requeues the blocks they held.
func (t *Topology) CollectDeadNodes(ctx context.Context) {
	t.Lock()
	defer t.Unlock()

	freshThreshold := t.clock.Now().Add(-t.deadTimeout)
	for _, dn := range t.nodes {
		if ctx.Err() != nil {
			return
		}
		if dn.dead || !dn.LastSeen.Before(freshThreshold) {
			continue
		}
		glog.V(0).Infof("data node %s missed heartbeats since %v", dn.Id, dn.LastSeen)
		t.markDead(dn)
	}
	t.updateDeadNodeGauge()
}

// UnRegisterDataNode marks a node dead right away, as when its heartbeat
// stream is closed.
func (t *Topology) UnRegisterDataNode(nodeId string) {
	t.Lock()
	defer t.Unlock()

	dn, found := t.nodes[nodeId]
	if !found || dn.dead {
		return
	}
	glog.V(0).Infof("unregister data node %s", dn.Id)
	t.markDead(dn)
	t.updateDeadNodeGauge()
}

func (t *Topology) markDead(dn *DataNode) {
	dn.dead = true
	for id := range dn.blocks {
		if info, ok := t.blocks[id]; ok {
			t.updateNeededReplication(info)
		}
	}
}

func (t *Topology) updateDeadNodeGauge() {
	dead := 0
	for _, dn := range t.nodes {
		if dn.dead {
			dead++
		}
	}
	stats.MasterDeadDataNodeGauge.Set(float64(dead))
}

func (t *Topology) IsDead(nodeId string) bool {
	t.RLock()
	defer t.RUnlock()
	dn, found := t.nodes[nodeId]
	return found && dn.dead
}

// DeadNodeIds returns the ids of nodes currently considered dead, sorted.
func (t *Topology) DeadNodeIds() []string {
	t.RLock()
	defer t.RUnlock()
	var ids []string
	for _, dn := range t.nodes {
		if dn.dead {
			ids = append(ids, dn.Id)
		}
	}
	slices.Sort(ids)
	return ids
}
