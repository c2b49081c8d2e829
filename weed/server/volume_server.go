package weed_server

import (
	"context"
	"net/http"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
	"github.com/gorilla/mux"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/util"
)

// MasterClient delivers heartbeats to the master.
type MasterClient interface {
	SendHeartbeat(ctx context.Context, hb *storage.Heartbeat) (*storage.HeartbeatResponse, error)
}

type VolumeServerOption struct {
	Pulse time.Duration
	Clock clock.Clock
}

type VolumeServer struct {
	store      *storage.Store
	lazyWriter *storage.LazyWriter
	master     MasterClient
	pulse      time.Duration
	clock      clock.Clock

	heartbeatTask *util.PeriodicTask
}

func NewVolumeServer(r *mux.Router, store *storage.Store, lazyWriter *storage.LazyWriter, master MasterClient, option *VolumeServerOption) *VolumeServer {
	clk := option.Clock
	if clk == nil {
		clk = clock.New()
	}
	vs := &VolumeServer{
		store:      store,
		lazyWriter: lazyWriter,
		master:     master,
		pulse:      option.Pulse,
		clock:      clk,
	}
	vs.heartbeatTask = util.NewPeriodicTask("heartbeat", option.Pulse, clk, func(ctx context.Context) {
		if err := vs.doHeartbeat(ctx); err != nil {
			glog.V(0).Infof("heartbeat to master: %v", err)
		}
	})

	r.HandleFunc("/status", vs.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats/disk", vs.statsDiskHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/lazy_writer/run", vs.lazyWriterRunHandler).Methods(http.MethodPost)
	r.HandleFunc("/admin/heartbeat", vs.heartbeatHandler).Methods(http.MethodPost)
	r.HandleFunc("/block/{id:[0-9]+}", vs.readBlockHandler).Methods(http.MethodGet)
	r.HandleFunc("/block/{id:[0-9]+}", vs.writeBlockHandler).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/block/{id:[0-9]+}", vs.deleteBlockHandler).Methods(http.MethodDelete)
	r.Handle("/metrics", stats.MetricsHandler())

	return vs
}

// Start runs the lazy writer and, when a master is set, the heartbeat loop.
func (vs *VolumeServer) Start() {
	vs.lazyWriter.Start()
	if vs.master != nil {
		vs.heartbeatTask.Start()
		vs.heartbeatTask.Trigger()
	}
}

func (vs *VolumeServer) Shutdown() {
	glog.V(0).Infoln("Shutting down volume server...")
	vs.heartbeatTask.Stop()
	vs.lazyWriter.Stop()
	vs.store.Close()
	glog.V(0).Infoln("Shut down successfully!")
}
