package backend

import (
	"fmt"
	"sync"

	"github.com/seaweedfs/ramtier/weed/storage/types"
)

var (
	_ BlockStorage = &MemoryStorage{}
)

type blockKey struct {
	id types.BlockId
	gs types.GenerationStamp
}

// MemoryStorage keeps block bytes in process memory, the RAM disk medium.
// Stored slices are private copies so a replica can never change after it is written.
type MemoryStorage struct {
	name   string
	blocks map[blockKey][]byte
	closed bool
	mu     sync.RWMutex
}

func NewMemoryStorage(name string) *MemoryStorage {
	return &MemoryStorage{
		name:   name,
		blocks: make(map[blockKey][]byte),
	}
}

func (ms *MemoryStorage) Medium() types.Medium {
	return types.RamDiskMedium
}

func (ms *MemoryStorage) Name() string {
	return ms.name
}

func (ms *MemoryStorage) WriteBlock(id types.BlockId, gs types.GenerationStamp, data []byte) (string, error) {
	buf := make([]byte, len(data))
	copy(buf, data)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.closed {
		return "", ErrStorageClosed
	}
	key := blockKey{id, gs}
	if _, found := ms.blocks[key]; found {
		return "", fmt.Errorf("block %d_%d on %s: %w", id, gs, ms.name, ErrBlockAlreadyExist)
	}
	ms.blocks[key] = buf
	return ms.path(id, gs), nil
}

func (ms *MemoryStorage) ReadBlock(id types.BlockId, gs types.GenerationStamp) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return nil, ErrStorageClosed
	}
	data, found := ms.blocks[blockKey{id, gs}]
	if !found {
		return nil, fmt.Errorf("block %d_%d on %s: %w", id, gs, ms.name, ErrBlockNotFound)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (ms *MemoryStorage) Sync(id types.BlockId, gs types.GenerationStamp) error {
	return nil
}

func (ms *MemoryStorage) DeleteBlock(id types.BlockId, gs types.GenerationStamp) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	key := blockKey{id, gs}
	if _, found := ms.blocks[key]; !found {
		return fmt.Errorf("block %d_%d on %s: %w", id, gs, ms.name, ErrBlockNotFound)
	}
	delete(ms.blocks, key)
	return nil
}

func (ms *MemoryStorage) HasBlock(id types.BlockId, gs types.GenerationStamp) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, found := ms.blocks[blockKey{id, gs}]
	return found
}

// BlockCount is the number of blocks currently held in memory.
func (ms *MemoryStorage) BlockCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.blocks)
}

func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	ms.blocks = make(map[blockKey][]byte)
	return nil
}

func (ms *MemoryStorage) path(id types.BlockId, gs types.GenerationStamp) string {
	return "mem://" + ms.name + "/" + types.BlockFileName(id, gs)
}
