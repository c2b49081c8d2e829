package weed_server

import (
	"context"
	"net/http"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/sequence"
	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/topology"
)

type MasterOption struct {
	Pulse            time.Duration
	DeadTimeout      time.Duration
	ScrubberInterval time.Duration
	Clock            clock.Clock
}

type MasterServer struct {
	option *MasterOption

	Topo       *topology.Topology
	Namesystem *namespace.Namesystem
	Scrubber   *topology.LazyPersistFileScrubber
	store      namespace.FileStore
}

var _ MasterClient = (*MasterServer)(nil)

func NewMasterServer(r *mux.Router, option *MasterOption, store namespace.FileStore, sequencer sequence.Sequencer) (*MasterServer, error) {
	if option.Clock == nil {
		option.Clock = clock.New()
	}
	topo := topology.NewTopology(option.Pulse, option.DeadTimeout, option.Clock)
	ns := namespace.NewNamesystem(store, topo, sequencer, option.Clock)
	if err := ns.LoadBlocks(context.Background()); err != nil {
		return nil, err
	}
	ms := &MasterServer{
		option:     option,
		Topo:       topo,
		Namesystem: ns,
		Scrubber:   topology.NewLazyPersistFileScrubber(topo, topo, ns, option.ScrubberInterval, option.Clock),
		store:      store,
	}

	r.HandleFunc("/cluster/status", ms.clusterStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/dir/list", ms.dirListHandler).Methods(http.MethodGet)
	r.HandleFunc("/dir/lookup", ms.dirLookupHandler).Methods(http.MethodGet)
	r.HandleFunc("/dir/create", ms.dirCreateHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/addBlock", ms.dirAddBlockHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/commit", ms.dirCommitBlockHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/complete", ms.dirCompleteHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/append", ms.dirAppendHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/truncate", ms.dirTruncateHandler).Methods(http.MethodPost)
	r.HandleFunc("/dir/delete", ms.dirDeleteHandler).Methods(http.MethodPost, http.MethodDelete)
	r.HandleFunc("/admin/scrubber/run", ms.scrubberRunHandler).Methods(http.MethodPost)
	r.HandleFunc("/admin/replication/run", ms.replicationRunHandler).Methods(http.MethodPost)
	r.Handle("/metrics", stats.MetricsHandler())

	return ms, nil
}

// SendHeartbeat accepts a data node heartbeat delivered in process.
func (ms *MasterServer) SendHeartbeat(ctx context.Context, hb *storage.Heartbeat) (*storage.HeartbeatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ms.Topo.ProcessHeartbeat(hb), nil
}

func (ms *MasterServer) Start() {
	ms.Topo.StartRefresh()
	ms.Scrubber.Start()
}

func (ms *MasterServer) Shutdown() {
	glog.V(0).Infoln("Shutting down master server...")
	ms.Scrubber.Stop()
	ms.Topo.StopRefresh()
	ms.Namesystem.Shutdown()
	ms.store.Shutdown()
	glog.V(0).Infoln("Shut down successfully!")
}
