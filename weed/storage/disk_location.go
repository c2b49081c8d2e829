package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/seaweedfs/ramtier/weed/stats"
	"github.com/seaweedfs/ramtier/weed/storage/backend"
	"github.com/seaweedfs/ramtier/weed/util"
)

const storageIdFileName = "storage.id"

// DiskLocation is one durable directory holding persisted block files.
// StorageId is stable across restarts and is what replicas refer to.
type DiskLocation struct {
	Directory  string
	StorageId  string
	Storage    backend.DurableStorage
	blockCount atomic.Int64
}

func NewDiskLocation(dir string) (*DiskLocation, error) {
	dir = util.ResolvePath(dir)
	storage, err := backend.NewDiskStorage(filepath.Base(dir), dir)
	if err != nil {
		return nil, err
	}
	storageId, err := loadOrCreateStorageId(dir)
	if err != nil {
		return nil, err
	}
	return NewDiskLocationWithStorage(storageId, storage), nil
}

func NewDiskLocationWithStorage(storageId string, storage backend.DurableStorage) *DiskLocation {
	return &DiskLocation{
		Directory: storage.Directory(),
		StorageId: storageId,
		Storage:   storage,
	}
}

func loadOrCreateStorageId(dir string) (string, error) {
	idFile := filepath.Join(dir, storageIdFileName)
	if content, err := os.ReadFile(idFile); err == nil {
		storageId := strings.TrimSpace(string(content))
		if _, parseErr := uuid.Parse(storageId); parseErr != nil {
			return "", fmt.Errorf("invalid storage id %q in %s: %v", storageId, idFile, parseErr)
		}
		return storageId, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	storageId := uuid.New().String()
	if err := os.WriteFile(idFile, []byte(storageId+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write %s: %v", idFile, err)
	}
	if err := util.SyncDir(dir); err != nil {
		return "", err
	}
	glog.V(0).Infof("new storage id %s for %s", storageId, dir)
	return storageId, nil
}

// LoadExistingBlocks registers every persisted block of this location with
// the tracker as a disk only replica.
func (l *DiskLocation) LoadExistingBlocks(tracker *ReplicaTracker, now time.Time) error {
	blocks, err := l.Storage.LoadExistingBlocks()
	if err != nil {
		return fmt.Errorf("load blocks from %s: %v", l.Directory, err)
	}
	for _, b := range blocks {
		if err := tracker.RecordDiskReplica(b.Id, b.Gen, l.StorageId, b.Path, uint64(b.Size), b.Checksum, now); err != nil {
			glog.Warningf("skip %s: %v", b.Path, err)
			continue
		}
		l.blockCount.Inc()
	}
	glog.V(0).Infof("Store started on dir: %s with %d blocks, storage id %s", l.Directory, l.BlockCount(), l.StorageId)
	return nil
}

func (l *DiskLocation) BlockCount() int64 {
	return l.blockCount.Load()
}

func (l *DiskLocation) DiskStatus() *stats.DiskStatus {
	return stats.NewDiskStatus(l.Directory)
}

func (l *DiskLocation) String() string {
	return fmt.Sprintf("%s(%s)", l.Directory, l.StorageId)
}

// RamLocation is one RAM volume. Its capacity is accounted by the RamTierAllocator.
type RamLocation struct {
	Name     string
	Capacity uint64
	Storage  backend.BlockStorage
}

func NewRamLocation(name string, capacity uint64) *RamLocation {
	return &RamLocation{
		Name:     name,
		Capacity: capacity,
		Storage:  backend.NewMemoryStorage(name),
	}
}
