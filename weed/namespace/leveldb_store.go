package namespace

import (
	"context"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/syndtr/goleveldb/leveldb"
	leveldb_errors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldb_util "github.com/syndtr/goleveldb/leveldb/util"

	weed_util "github.com/seaweedfs/ramtier/weed/util"
)

const fileKeyPrefix = "f:"

// LevelDBStore keeps one leveldb key per file, keyed by its full path.
type LevelDBStore struct {
	dir string
	db  *leveldb.DB
}

func NewLevelDBStore(dir string) (*LevelDBStore, error) {
	store := &LevelDBStore{}
	if err := store.initialize(dir); err != nil {
		return nil, err
	}
	return store, nil
}

func (store *LevelDBStore) GetName() string {
	return "leveldb"
}

func (store *LevelDBStore) Initialize(configuration weed_util.Configuration, prefix string) (err error) {
	dir := configuration.GetString(prefix + "dir")
	return store.initialize(dir)
}

func (store *LevelDBStore) initialize(dir string) (err error) {
	glog.Infof("file store leveldb dir: %s", dir)
	os.MkdirAll(dir, 0755)
	if err := weed_util.TestFolderWritable(dir); err != nil {
		return fmt.Errorf("Check Level Folder %s Writable: %s", dir, err)
	}
	store.dir = dir

	opts := &opt.Options{
		BlockCacheCapacity: 8 * 1024 * 1024, // default value is 8MiB
		WriteBuffer:        4 * 1024 * 1024, // default value is 4MiB
		Filter:             filter.NewBloomFilter(8),
	}
	db, dbErr := leveldb.OpenFile(dir, opts)
	if leveldb_errors.IsCorrupted(dbErr) {
		db, dbErr = leveldb.RecoverFile(dir, opts)
	}
	if dbErr != nil {
		glog.Errorf("file store open dir %s: %v", dir, dbErr)
		return dbErr
	}
	store.db = db
	return nil
}

func genKey(fullpath weed_util.FullPath) []byte {
	return []byte(fileKeyPrefix + string(fullpath))
}

func (store *LevelDBStore) InsertEntry(ctx context.Context, entry *FileMetadata) (err error) {
	key := genKey(entry.Path)
	if found, _ := store.db.Has(key, nil); found {
		return fmt.Errorf("insert %s: %w", entry.Path, ErrFileExists)
	}
	return store.put(key, entry)
}

func (store *LevelDBStore) UpdateEntry(ctx context.Context, entry *FileMetadata) (err error) {
	key := genKey(entry.Path)
	if found, _ := store.db.Has(key, nil); !found {
		return fmt.Errorf("update %s: %w", entry.Path, ErrFileNotFound)
	}
	return store.put(key, entry)
}

func (store *LevelDBStore) put(key []byte, entry *FileMetadata) error {
	value, err := entry.EncodeAttributesAndBlocks()
	if err != nil {
		return fmt.Errorf("encoding %s: %v", entry.Path, err)
	}
	if err = store.db.Put(key, value, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("persisting %s : %v", entry.Path, err)
	}
	return nil
}

func (store *LevelDBStore) FindEntry(ctx context.Context, fullpath weed_util.FullPath) (entry *FileMetadata, err error) {
	data, err := store.db.Get(genKey(fullpath), nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("find %s: %w", fullpath, ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s : %v", fullpath, err)
	}
	entry = &FileMetadata{}
	if err = entry.DecodeAttributesAndBlocks(data); err != nil {
		return nil, fmt.Errorf("decode %s : %v", fullpath, err)
	}
	return entry, nil
}

func (store *LevelDBStore) DeleteEntry(ctx context.Context, fullpath weed_util.FullPath) (err error) {
	key := genKey(fullpath)
	if found, _ := store.db.Has(key, nil); !found {
		return fmt.Errorf("delete %s: %w", fullpath, ErrFileNotFound)
	}
	if err = store.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("delete %s : %v", fullpath, err)
	}
	return nil
}

func (store *LevelDBStore) ListEntries(ctx context.Context, fn func(entry *FileMetadata) bool) error {
	iter := store.db.NewIterator(leveldb_util.BytesPrefix([]byte(fileKeyPrefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entry := &FileMetadata{}
		if err := entry.DecodeAttributesAndBlocks(iter.Value()); err != nil {
			glog.V(0).Infof("list %s : %v", iter.Key(), err)
			continue
		}
		if !fn(entry) {
			break
		}
	}
	return iter.Error()
}

func (store *LevelDBStore) Shutdown() {
	if store.db != nil {
		store.db.Close()
	}
}
