package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var (
	_ DurableStorage = &DiskStorage{}
)

const tmpFileSuffix = ".tmp"

// DiskStorage keeps each block as blk_<id>_<gs> plus a .meta file holding the
// checksum, both inside one directory.
type DiskStorage struct {
	name      string
	directory string
	mu        sync.RWMutex
	closed    bool
}

func NewDiskStorage(name, directory string) (*DiskStorage, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("create block directory %s: %v", directory, err)
	}
	if err := util.TestFolderWritable(directory); err != nil {
		return nil, fmt.Errorf("check block directory %s writable: %v", directory, err)
	}
	return &DiskStorage{
		name:      name,
		directory: directory,
	}, nil
}

func (ds *DiskStorage) Medium() types.Medium {
	return types.DiskMedium
}

func (ds *DiskStorage) Name() string {
	return ds.name
}

func (ds *DiskStorage) Directory() string {
	return ds.directory
}

func (ds *DiskStorage) BlockPath(id types.BlockId, gs types.GenerationStamp) string {
	return filepath.Join(ds.directory, types.BlockFileName(id, gs))
}

func (ds *DiskStorage) metaPath(id types.BlockId, gs types.GenerationStamp) string {
	return filepath.Join(ds.directory, types.MetaFileName(id, gs))
}

// WriteBlock writes the data and meta files under temporary names and renames
// them into place, so a crash never leaves a block file without its checksum.
func (ds *DiskStorage) WriteBlock(id types.BlockId, gs types.GenerationStamp, data []byte) (string, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return "", ErrStorageClosed
	}

	blockPath, metaPath := ds.BlockPath(id, gs), ds.metaPath(id, gs)
	if util.FileExists(blockPath) {
		return "", fmt.Errorf("%s: %w", blockPath, ErrBlockAlreadyExist)
	}

	meta := make([]byte, types.ChecksumSize)
	util.Uint64toBytes(meta, Checksum(data))

	if err := writeFileSynced(metaPath+tmpFileSuffix, meta); err != nil {
		return "", err
	}
	if err := writeFileSynced(blockPath+tmpFileSuffix, data); err != nil {
		os.Remove(metaPath + tmpFileSuffix)
		return "", err
	}
	if err := os.Rename(metaPath+tmpFileSuffix, metaPath); err != nil {
		os.Remove(metaPath + tmpFileSuffix)
		os.Remove(blockPath + tmpFileSuffix)
		return "", fmt.Errorf("rename %s: %v", metaPath, err)
	}
	if err := os.Rename(blockPath+tmpFileSuffix, blockPath); err != nil {
		os.Remove(metaPath)
		os.Remove(blockPath + tmpFileSuffix)
		return "", fmt.Errorf("rename %s: %v", blockPath, err)
	}
	return blockPath, nil
}

func writeFileSynced(fullPath string, data []byte) error {
	df, err := OpenDiskFile(fullPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("create %s: %v", fullPath, err)
	}
	if _, err = df.WriteAt(data, 0); err != nil {
		df.Close()
		os.Remove(fullPath)
		return fmt.Errorf("write %s: %v", fullPath, err)
	}
	if err = df.Sync(); err != nil {
		df.Close()
		os.Remove(fullPath)
		return fmt.Errorf("sync %s: %v", fullPath, err)
	}
	return df.Close()
}

// ReadBlock returns the block content after checking it against the meta file.
func (ds *DiskStorage) ReadBlock(id types.BlockId, gs types.GenerationStamp) ([]byte, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if ds.closed {
		return nil, ErrStorageClosed
	}

	data, err := readWholeFile(ds.BlockPath(id, gs))
	if err != nil {
		return nil, err
	}
	expected, err := ds.readChecksum(id, gs)
	if err != nil {
		return nil, err
	}
	if actual := Checksum(data); actual != expected {
		return nil, fmt.Errorf("%s: expected %x actual %x: %w", ds.BlockPath(id, gs), expected, actual, ErrChecksumMismatch)
	}
	return data, nil
}

func readWholeFile(fullPath string) ([]byte, error) {
	df, err := OpenDiskFile(fullPath, os.O_RDONLY)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", fullPath, ErrBlockNotFound)
		}
		return nil, err
	}
	defer df.Close()
	return df.ReadAll()
}

func (ds *DiskStorage) readChecksum(id types.BlockId, gs types.GenerationStamp) (uint64, error) {
	meta, err := readWholeFile(ds.metaPath(id, gs))
	if err != nil {
		return 0, err
	}
	if len(meta) != types.ChecksumSize {
		return 0, fmt.Errorf("%s: meta size %d: %w", ds.metaPath(id, gs), len(meta), ErrChecksumMismatch)
	}
	return util.BytesToUint64(meta), nil
}

// Sync fsyncs both files and the directory entries pointing at them.
func (ds *DiskStorage) Sync(id types.BlockId, gs types.GenerationStamp) error {
	for _, fullPath := range []string{ds.BlockPath(id, gs), ds.metaPath(id, gs)} {
		df, err := OpenDiskFile(fullPath, os.O_RDONLY)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", fullPath, ErrBlockNotFound)
			}
			return err
		}
		syncErr := df.Sync()
		df.Close()
		if syncErr != nil {
			return fmt.Errorf("sync %s: %v", fullPath, syncErr)
		}
	}
	return util.SyncDir(ds.directory)
}

func (ds *DiskStorage) DeleteBlock(id types.BlockId, gs types.GenerationStamp) error {
	blockErr := os.Remove(ds.BlockPath(id, gs))
	metaErr := os.Remove(ds.metaPath(id, gs))
	if blockErr != nil && errors.Is(blockErr, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", ds.BlockPath(id, gs), ErrBlockNotFound)
	}
	if blockErr != nil {
		return blockErr
	}
	if metaErr != nil && !errors.Is(metaErr, os.ErrNotExist) {
		return metaErr
	}
	return nil
}

func (ds *DiskStorage) HasBlock(id types.BlockId, gs types.GenerationStamp) bool {
	return util.FileExists(ds.BlockPath(id, gs)) && util.FileExists(ds.metaPath(id, gs))
}

// VerifyBlock checks that the on-disk copy exists and matches the checksum.
func (ds *DiskStorage) VerifyBlock(id types.BlockId, gs types.GenerationStamp, checksum uint64) error {
	expected, err := ds.readChecksum(id, gs)
	if err != nil {
		return err
	}
	if expected != checksum {
		return fmt.Errorf("%s: meta %x, replica %x: %w", ds.metaPath(id, gs), expected, checksum, ErrChecksumMismatch)
	}
	data, err := ds.ReadBlock(id, gs)
	if err != nil {
		return err
	}
	if actual := Checksum(data); actual != checksum {
		return fmt.Errorf("%s: data %x, replica %x: %w", ds.BlockPath(id, gs), actual, checksum, ErrChecksumMismatch)
	}
	return nil
}

// LoadExistingBlocks scans the directory for complete block files. Leftover
// temporary files from an interrupted write are removed.
func (ds *DiskStorage) LoadExistingBlocks() (blocks []BlockInfo, err error) {
	entries, err := os.ReadDir(ds.directory)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tmpFileSuffix) {
			glog.V(0).Infof("removing incomplete block file %s", filepath.Join(ds.directory, name))
			os.Remove(filepath.Join(ds.directory, name))
			continue
		}
		id, gs, parseErr := types.ParseBlockFileName(name)
		if parseErr != nil {
			continue
		}
		checksum, metaErr := ds.readChecksum(id, gs)
		if metaErr != nil {
			glog.Warningf("skip block %s without valid meta: %v", name, metaErr)
			continue
		}
		info, statErr := entry.Info()
		if statErr != nil {
			glog.Warningf("stat %s: %v", name, statErr)
			continue
		}
		blocks = append(blocks, BlockInfo{
			Id:       id,
			Gen:      gs,
			Size:     info.Size(),
			Checksum: checksum,
			Path:     filepath.Join(ds.directory, name),
		})
	}
	glog.V(0).Infof("loaded %d blocks from %s", len(blocks), ds.directory)
	return blocks, nil
}

func (ds *DiskStorage) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.closed = true
	return nil
}
