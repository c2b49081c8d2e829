package weed_server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/valyala/bytebufferpool"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

func (vs *VolumeServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	m := make(map[string]interface{})
	m["Version"] = util.Version()
	m["Store"] = vs.store.Status()
	m["LazyWriter"] = vs.lazyWriter.Status()
	writeJsonQuiet(w, r, http.StatusOK, m)
}

func (vs *VolumeServer) statsDiskHandler(w http.ResponseWriter, r *http.Request) {
	m := make(map[string]interface{})
	m["Version"] = util.Version()
	var ds []*stats.DiskStatus
	for _, loc := range vs.store.DiskLocations() {
		if dir, e := filepath.Abs(loc.Directory); e == nil {
			ds = append(ds, stats.NewDiskStatus(dir))
		}
	}
	m["DiskStatuses"] = ds
	writeJsonQuiet(w, r, http.StatusOK, m)
}

func (vs *VolumeServer) lazyWriterRunHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonQuiet(w, r, http.StatusOK, vs.lazyWriter.RunOnce(r.Context()))
}

func (vs *VolumeServer) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	if vs.master == nil {
		writeJsonError(w, r, http.StatusServiceUnavailable, fmt.Errorf("no master configured"))
		return
	}
	if err := vs.doHeartbeat(r.Context()); err != nil {
		writeJsonError(w, r, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (vs *VolumeServer) readBlockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseBlockId(mux.Vars(r)["id"])
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	data, err := vs.store.ReadBlock(id)
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err = w.Write(data); err != nil {
		glog.V(2).Infof("write block %d response: %v", id, err)
	}
}

// writeBlockHandler stores the request body as a new block. The medium
// query parameter selects the tier, RAM unless "disk" is given.
func (vs *VolumeServer) writeBlockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseBlockId(mux.Vars(r)["id"])
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	gen, err := parseUint64(r, "gen", 0)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	medium := types.RamDiskMedium
	if m := r.FormValue("medium"); m != "" {
		if medium, err = types.ToMedium(m); err != nil {
			writeJsonError(w, r, http.StatusBadRequest, err)
			return
		}
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err = buf.ReadFrom(r.Body); err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	replica, err := vs.store.WriteBlock(id, types.GenerationStamp(gen), buf.B, medium)
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusCreated, map[string]interface{}{
		"id":    replica.Id,
		"gen":   replica.Gen,
		"size":  replica.Size,
		"state": replica.State.String(),
	})
}

func (vs *VolumeServer) deleteBlockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseBlockId(mux.Vars(r)["id"])
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	deleted, err := vs.store.DeleteBlocks([]types.BlockId{id})
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	if deleted == 0 {
		writeJsonError(w, r, http.StatusNotFound, fmt.Errorf("block %d not found", id))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
