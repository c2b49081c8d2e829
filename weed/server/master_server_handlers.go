package weed_server

import (
	"net/http"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/topology"
	"github.com/seaweedfs/ramtier/weed/util"
)

func (ms *MasterServer) clusterStatusHandler(w http.ResponseWriter, r *http.Request) {
	m := make(map[string]interface{})
	m["Version"] = util.Version()
	m["DataNodes"] = ms.Topo.DataNodes()
	m["DeadNodes"] = ms.Topo.DeadNodeIds()
	m["UnderReplicated"] = ms.Topo.UnderReplicatedBlocks()
	m["Scrubber"] = ms.Scrubber.Status()
	writeJsonQuiet(w, r, http.StatusOK, m)
}

func (ms *MasterServer) dirListHandler(w http.ResponseWriter, r *http.Request) {
	files, err := ms.Namesystem.ListFiles(r.Context())
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, map[string]interface{}{"Files": files})
}

type lookupResult struct {
	File      *namespace.FileMetadata    `json:"file"`
	Locations []topology.BlockLocations `json:"locations"`
}

func (ms *MasterServer) dirLookupHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := ms.Namesystem.GetFile(r.Context(), util.FullPath(r.FormValue("path")))
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	result := lookupResult{File: entry}
	for _, b := range entry.Blocks {
		if locations, found := ms.Topo.Locations(b.Id); found {
			result.Locations = append(result.Locations, locations)
		}
	}
	writeJsonQuiet(w, r, http.StatusOK, result)
}

func (ms *MasterServer) dirCreateHandler(w http.ResponseWriter, r *http.Request) {
	replication, err := parseUint64(r, "replication", 1)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	entry, err := ms.Namesystem.Create(r.Context(), util.FullPath(r.FormValue("path")), namespace.CreateOption{
		LazyPersist: parseBool(r, "lazyPersist"),
		Replication: int(replication),
	})
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusCreated, entry)
}

func (ms *MasterServer) dirAddBlockHandler(w http.ResponseWriter, r *http.Request) {
	block, err := ms.Namesystem.AddBlock(r.Context(), util.FullPath(r.FormValue("path")))
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, block)
}

func (ms *MasterServer) dirCommitBlockHandler(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseBlockId(r.FormValue("id"))
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	size, err := parseUint64(r, "size", 0)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	if err = ms.Namesystem.CommitBlock(r.Context(), util.FullPath(r.FormValue("path")), id, size); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ms *MasterServer) dirCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := ms.Namesystem.Complete(r.Context(), util.FullPath(r.FormValue("path"))); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ms *MasterServer) dirAppendHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := ms.Namesystem.Append(r.Context(), util.FullPath(r.FormValue("path")))
	if err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	writeJsonQuiet(w, r, http.StatusOK, entry)
}

func (ms *MasterServer) dirTruncateHandler(w http.ResponseWriter, r *http.Request) {
	length, err := parseUint64(r, "length", 0)
	if err != nil {
		writeJsonError(w, r, http.StatusBadRequest, err)
		return
	}
	if err = ms.Namesystem.Truncate(r.Context(), util.FullPath(r.FormValue("path")), length); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ms *MasterServer) dirDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := ms.Namesystem.DeleteFile(r.Context(), util.FullPath(r.FormValue("path"))); err != nil {
		writeJsonError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (ms *MasterServer) scrubberRunHandler(w http.ResponseWriter, r *http.Request) {
	writeJsonQuiet(w, r, http.StatusOK, ms.Scrubber.RunOnce(r.Context()))
}

func (ms *MasterServer) replicationRunHandler(w http.ResponseWriter, r *http.Request) {
	ms.Topo.CollectDeadNodes(r.Context())
	m := make(map[string]interface{})
	m["DeadNodes"] = ms.Topo.DeadNodeIds()
	m["UnderReplicated"] = ms.Topo.UnderReplicatedCount()
	writeJsonQuiet(w, r, http.StatusOK, m)
}
