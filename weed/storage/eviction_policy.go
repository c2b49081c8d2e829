package storage

import (
	"github.com/google/btree"
)

// EvictionPolicy picks which persisted RAM replicas to evict. It is a pure
// function of its input and owns no state.
type EvictionPolicy interface {
	Select(candidates []Replica, bytesToFree uint64) []Replica
}

// FifoEvictionPolicy evicts the oldest created replicas first; among
// replicas created at the same instant the lower block id goes first.
// Replicas that are not persisted are never selected.
type FifoEvictionPolicy struct{}

var _ EvictionPolicy = FifoEvictionPolicy{}

func (FifoEvictionPolicy) Select(candidates []Replica, bytesToFree uint64) (selected []Replica) {
	if bytesToFree == 0 {
		return nil
	}
	ordered := btree.NewG[Replica](8, olderFirst)
	for _, r := range candidates {
		if !r.Persisted() || !r.State.HasRam() {
			continue
		}
		ordered.ReplaceOrInsert(r)
	}

	var freed uint64
	ordered.Ascend(func(r Replica) bool {
		selected = append(selected, r)
		freed += r.Size
		return freed < bytesToFree
	})
	return
}
