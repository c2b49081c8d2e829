package namespace

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/seaweedfs/ramtier/weed/util"
)

// MemoryStore keeps entries in an ordered in-memory index. Entries are
// copied in and out so callers never share a *FileMetadata with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries *btree.BTreeG[*FileMetadata]
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	store.initialize()
	return store
}

func (store *MemoryStore) GetName() string {
	return "memory"
}

func (store *MemoryStore) Initialize(configuration util.Configuration, prefix string) error {
	store.initialize()
	return nil
}

func (store *MemoryStore) initialize() {
	store.entries = btree.NewG[*FileMetadata](16, func(a, b *FileMetadata) bool {
		return a.Path < b.Path
	})
}

func (store *MemoryStore) InsertEntry(ctx context.Context, entry *FileMetadata) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.entries.Has(&FileMetadata{Path: entry.Path}) {
		return fmt.Errorf("insert %s: %w", entry.Path, ErrFileExists)
	}
	store.entries.ReplaceOrInsert(entry.Clone())
	return nil
}

func (store *MemoryStore) UpdateEntry(ctx context.Context, entry *FileMetadata) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.entries.Has(&FileMetadata{Path: entry.Path}) {
		return fmt.Errorf("update %s: %w", entry.Path, ErrFileNotFound)
	}
	store.entries.ReplaceOrInsert(entry.Clone())
	return nil
}

func (store *MemoryStore) FindEntry(ctx context.Context, fullpath util.FullPath) (*FileMetadata, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	entry, found := store.entries.Get(&FileMetadata{Path: fullpath})
	if !found {
		return nil, fmt.Errorf("find %s: %w", fullpath, ErrFileNotFound)
	}
	return entry.Clone(), nil
}

func (store *MemoryStore) DeleteEntry(ctx context.Context, fullpath util.FullPath) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, found := store.entries.Delete(&FileMetadata{Path: fullpath}); !found {
		return fmt.Errorf("delete %s: %w", fullpath, ErrFileNotFound)
	}
	return nil
}

func (store *MemoryStore) ListEntries(ctx context.Context, fn func(entry *FileMetadata) bool) error {
	store.mu.RLock()
	var entries []*FileMetadata
	store.entries.Ascend(func(entry *FileMetadata) bool {
		entries = append(entries, entry.Clone())
		return true
	})
	store.mu.RUnlock()

	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !fn(entry) {
			break
		}
	}
	return nil
}

func (store *MemoryStore) Shutdown() {
}
