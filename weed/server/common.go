package weed_server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/seaweedfs/ramtier/weed/namespace"
	"github.com/seaweedfs/ramtier/weed/storage"
	"github.com/seaweedfs/ramtier/weed/storage/backend"
	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeJson(w http.ResponseWriter, r *http.Request, httpStatus int, obj interface{}) (err error) {
	var bytes []byte
	if r.FormValue("pretty") != "" {
		bytes, err = json.MarshalIndent(obj, "", "  ")
	} else {
		bytes, err = json.Marshal(obj)
	}
	if err != nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, err = w.Write(bytes)
	return
}

// wrapper for writeJson - just logs errors
func writeJsonQuiet(w http.ResponseWriter, r *http.Request, httpStatus int, obj interface{}) {
	if err := writeJson(w, r, httpStatus, obj); err != nil {
		glog.V(0).Infof("error writing JSON %v: %v", obj, err)
	}
}

func writeJsonError(w http.ResponseWriter, r *http.Request, httpStatus int, err error) {
	m := make(map[string]interface{})
	m["error"] = err.Error()
	writeJsonQuiet(w, r, httpStatus, m)
}

// errorStatus maps package errors to http status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrInsufficientSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, namespace.ErrUnsupportedOperation):
		return http.StatusMethodNotAllowed
	case errors.Is(err, namespace.ErrFileNotFound),
		errors.Is(err, storage.ErrReplicaNotFound),
		errors.Is(err, backend.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, namespace.ErrFileExists),
		errors.Is(err, storage.ErrReplicaExists),
		errors.Is(err, namespace.ErrNotUnderConstruction),
		errors.Is(err, namespace.ErrUnderConstruction):
		return http.StatusConflict
	case errors.Is(err, namespace.ErrInvalidPath),
		errors.Is(err, namespace.ErrBlockNotInFile),
		errors.Is(err, types.ErrUnknownMedium):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return util.HttpStatusCancelled
	}
	return http.StatusInternalServerError
}

func parseUint64(r *http.Request, name string, defaultValue uint64) (uint64, error) {
	s := r.FormValue(name)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func parseBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.FormValue(name))
	return v
}
