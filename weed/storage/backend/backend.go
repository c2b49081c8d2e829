package backend

import (
	"errors"

	"github.com/minio/crc64nvme"

	"github.com/seaweedfs/ramtier/weed/storage/types"
)

var (
	ErrBlockNotFound     = errors.New("backend: block not found")
	ErrChecksumMismatch  = errors.New("backend: checksum mismatch")
	ErrStorageClosed     = errors.New("backend: storage closed")
	ErrBlockAlreadyExist = errors.New("backend: block already exists")
)

// BlockStorage is one storage medium at one location. Callers never branch on
// RAM versus disk; they only ask the storage for its Medium.
type BlockStorage interface {
	Medium() types.Medium
	Name() string
	WriteBlock(id types.BlockId, gs types.GenerationStamp, data []byte) (path string, err error)
	ReadBlock(id types.BlockId, gs types.GenerationStamp) ([]byte, error)
	// Sync makes a previously written block durable. No-op for volatile media.
	Sync(id types.BlockId, gs types.GenerationStamp) error
	DeleteBlock(id types.BlockId, gs types.GenerationStamp) error
	HasBlock(id types.BlockId, gs types.GenerationStamp) bool
	Close() error
}

// DurableStorage is a medium that survives a restart and can be verified
// before the RAM copy of a block is dropped.
type DurableStorage interface {
	BlockStorage
	Directory() string
	VerifyBlock(id types.BlockId, gs types.GenerationStamp, checksum uint64) error
	LoadExistingBlocks() ([]BlockInfo, error)
}

// BlockInfo describes a block found on a durable medium at startup.
type BlockInfo struct {
	Id       types.BlockId
	Gen      types.GenerationStamp
	Size     int64
	Checksum uint64
	Path     string
}

// Checksum is the CRC-64/NVME of the block content.
func Checksum(data []byte) uint64 {
	h := crc64nvme.New()
	h.Write(data)
	return h.Sum64()
}
