package topology

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

const DefaultScrubberInterval = 300 * time.Second

// Membership answers which data nodes are dead. The answer may lag behind
// reality by up to one replication monitor pulse.
type Membership interface {
	IsDead(nodeId string) bool
	DeadNodeIds() []string
}

type BlockMap interface {
	LazyPersistBlocks() []BlockLocations
}

// Namespace is the file system side the scrubber deletes from.
type Namespace interface {
	DeleteFile(ctx context.Context, fullpath util.FullPath) error
	RemoveFromUnderReplicated(id types.BlockId) bool
}

type ScrubStats struct {
	Unrecoverable int `json:"unrecoverable"`
	DeletedFiles  int `json:"deletedFiles"`
	DeleteFailed  int `json:"deleteFailed"`
}

// LazyPersistFileScrubber deletes lazy persist files that lost their only
// replicas: every known replica was still RAM only and sits on a dead node,
// so there is no durable copy to re-replicate from.
type LazyPersistFileScrubber struct {
	membership Membership
	blocks     BlockMap
	namespace  Namespace
	clock      clock.Clock

	task      *util.PeriodicTask
	cycleLock sync.Mutex
	lastRun   time.Time
	last      ScrubStats
}

// NewLazyPersistFileScrubber creates a scrubber running every interval.
// A zero interval disables the timer; RunOnce still works.
func NewLazyPersistFileScrubber(membership Membership, blocks BlockMap, namespace Namespace, interval time.Duration, clk clock.Clock) *LazyPersistFileScrubber {
	if clk == nil {
		clk = clock.New()
	}
	s := &LazyPersistFileScrubber{
		membership: membership,
		blocks:     blocks,
		namespace:  namespace,
		clock:      clk,
	}
	s.task = util.NewPeriodicTask("lazy persist file scrubber", interval, clk, func(ctx context.Context) {
		s.RunOnce(ctx)
	})
	return s
}

func (s *LazyPersistFileScrubber) Start() {
	s.task.Start()
}

func (s *LazyPersistFileScrubber) Stop() {
	s.task.Stop()
}

func (s *LazyPersistFileScrubber) Trigger() {
	s.task.Trigger()
}

// RunOnce runs one scrub cycle. A failed deletion is logged and retried on
// the next cycle.
func (s *LazyPersistFileScrubber) RunOnce(ctx context.Context) (result ScrubStats) {
	s.cycleLock.Lock()
	defer s.cycleLock.Unlock()

	dead := make(map[string]struct{})
	for _, id := range s.membership.DeadNodeIds() {
		dead[id] = struct{}{}
	}
	if len(dead) == 0 {
		s.finish(result)
		return
	}

	unrecoverable := make(map[util.FullPath][]types.BlockId)
	for _, b := range s.blocks.LazyPersistBlocks() {
		if isUnrecoverable(b, dead) {
			unrecoverable[b.Owner] = append(unrecoverable[b.Owner], b.Id)
			result.Unrecoverable++
		}
	}
	stats.MasterLazyPersistScrubberCounter.WithLabelValues(stats.ScrubberUnrecoverable).Add(float64(result.Unrecoverable))

	for owner, ids := range unrecoverable {
		if ctx.Err() != nil {
			break
		}
		glog.Warningf("removing lazy persist file %s: blocks %v have no replica left on a live node", owner, ids)
		if err := s.namespace.DeleteFile(ctx, owner); err != nil {
			glog.Errorf("delete lazy persist file %s: %v", owner, err)
			stats.MasterLazyPersistScrubberCounter.WithLabelValues(stats.ScrubberDeleteFailed).Inc()
			result.DeleteFailed++
			continue
		}
		// blocks of a file that is still mapped stay repair targets
		for _, id := range ids {
			s.namespace.RemoveFromUnderReplicated(id)
		}
		stats.MasterLazyPersistScrubberCounter.WithLabelValues(stats.ScrubberDeletedFiles).Inc()
		result.DeletedFiles++
	}
	s.finish(result)
	return
}

func (s *LazyPersistFileScrubber) finish(result ScrubStats) {
	s.lastRun = s.clock.Now()
	s.last = result
	if result.Unrecoverable > 0 {
		glog.V(0).Infof("lazy persist scrubber: %d unrecoverable blocks, %d files deleted, %d failed",
			result.Unrecoverable, result.DeletedFiles, result.DeleteFailed)
	}
}

func isUnrecoverable(b BlockLocations, dead map[string]struct{}) bool {
	if len(b.Replicas) == 0 {
		return false
	}
	for _, r := range b.Replicas {
		if r.Persisted() {
			return false
		}
		if _, ok := dead[r.NodeId]; !ok {
			return false
		}
	}
	return true
}

type ScrubberStatus struct {
	Running bool       `json:"running"`
	LastRun time.Time  `json:"lastRun"`
	Last    ScrubStats `json:"last"`
}

func (s *LazyPersistFileScrubber) Status() ScrubberStatus {
	s.cycleLock.Lock()
	defer s.cycleLock.Unlock()
	return ScrubberStatus{
		Running: s.task.IsRunning(),
		LastRun: s.lastRun,
		Last:    s.last,
	}
}
