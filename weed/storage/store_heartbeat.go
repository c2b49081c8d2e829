package storage

import (
	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/types"
)

// BlockReport is the state of one block replica as reported to the master.
type BlockReport struct {
	Id    types.BlockId         `json:"id"`
	Gen   types.GenerationStamp `json:"gen"`
	Size  uint64                `json:"size"`
	State types.ReplicaState    `json:"state"`
}

func (b BlockReport) Persisted() bool {
	return b.State.IsDurable()
}

// Heartbeat carries a full block report of one data node.
type Heartbeat struct {
	NodeId      string        `json:"nodeId"`
	Ip          string        `json:"ip"`
	Port        int           `json:"port"`
	RamCapacity uint64        `json:"ramCapacity"`
	RamUsed     uint64        `json:"ramUsed"`
	Blocks      []BlockReport `json:"blocks"`
}

// HeartbeatResponse lists blocks the master wants removed from the node.
type HeartbeatResponse struct {
	BlocksToDelete []types.BlockId `json:"blocksToDelete"`
}

func (s *Store) CollectHeartbeat() *Heartbeat {
	hb := &Heartbeat{
		NodeId: s.NodeId(),
		Ip:     s.Ip,
		Port:   s.Port,
	}
	for _, volume := range s.Allocator.Volumes() {
		if c, err := s.Allocator.Stats(volume); err == nil {
			hb.RamCapacity += c.Capacity
			hb.RamUsed += c.Used
		}
	}
	for _, r := range s.Tracker.Replicas() {
		hb.Blocks = append(hb.Blocks, BlockReport{
			Id:    r.Id,
			Gen:   r.Gen,
			Size:  r.Size,
			State: r.State,
		})
	}
	return hb
}

type DiskLocationStatus struct {
	Directory  string            `json:"directory"`
	StorageId  string            `json:"storageId"`
	BlockCount int64             `json:"blockCount"`
	Disk       *stats.DiskStatus `json:"disk"`
}

type StoreStatus struct {
	NodeId        string               `json:"nodeId"`
	RamVolumes    []VolumeCapacity     `json:"ramVolumes"`
	DiskLocations []DiskLocationStatus `json:"diskLocations"`
	Replicas      map[string]int       `json:"replicas"`
	Memory        stats.MemStatus      `json:"memory"`
}

func (s *Store) Status() *StoreStatus {
	status := &StoreStatus{
		NodeId:   s.NodeId(),
		Replicas: make(map[string]int),
		Memory:   stats.MemStat(),
	}
	for _, volume := range s.Allocator.Volumes() {
		if c, err := s.Allocator.Stats(volume); err == nil {
			status.RamVolumes = append(status.RamVolumes, c)
		}
	}
	for _, location := range s.DiskLocations() {
		status.DiskLocations = append(status.DiskLocations, DiskLocationStatus{
			Directory:  location.Directory,
			StorageId:  location.StorageId,
			BlockCount: location.BlockCount(),
			Disk:       location.DiskStatus(),
		})
	}
	for _, r := range s.Tracker.Replicas() {
		status.Replicas[r.State.String()]++
	}
	return status
}
