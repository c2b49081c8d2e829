package namespace

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/seaweedfs/ramtier/weed/util"
)

var (
	ErrFileNotFound = errors.New("namespace: file not found")
	ErrFileExists   = errors.New("namespace: file already exists")
)

// FileStore persists file metadata of the namespace.
type FileStore interface {
	// GetName gets the name to locate the configuration in the toml file
	GetName() string
	// Initialize initializes the file store
	Initialize(configuration util.Configuration, prefix string) error
	InsertEntry(ctx context.Context, entry *FileMetadata) error
	UpdateEntry(ctx context.Context, entry *FileMetadata) error
	// err is ErrFileNotFound if not found
	FindEntry(ctx context.Context, fullpath util.FullPath) (*FileMetadata, error)
	DeleteEntry(ctx context.Context, fullpath util.FullPath) error
	// ListEntries visits entries in path order until fn returns false
	ListEntries(ctx context.Context, fn func(entry *FileMetadata) bool) error
	Shutdown()
}

var Stores = []FileStore{
	&MemoryStore{},
	&LevelDBStore{},
}

// LoadFileStore picks the store named by <prefix>store and initializes it
// with the keys under <prefix>.
func LoadFileStore(configuration util.Configuration, prefix string) (FileStore, error) {
	name := configuration.GetString(prefix + "store")
	if name == "" {
		name = "memory"
	}
	for _, store := range Stores {
		if store.GetName() != name {
			continue
		}
		if err := store.Initialize(configuration, prefix); err != nil {
			return nil, fmt.Errorf("initialize file store %s: %v", name, err)
		}
		glog.V(0).Infof("configured file store to %s", name)
		return store, nil
	}
	return nil, fmt.Errorf("unknown file store %q", name)
}
