package namespace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaweedfs/ramtier/weed/util"
)

func testFileStore(t *testing.T, store FileStore) {
	ctx := context.Background()
	entry := &FileMetadata{
		Path:        "/b/file",
		LazyPersist: true,
		Replication: 1,
		Blocks:      []BlockMeta{{Id: 7, Gen: 1001, Size: 10, Committed: true}},
		Length:      10,
		Crtime:      time.Unix(1700000000, 0).UTC(),
		Mtime:       time.Unix(1700000001, 0).UTC(),
	}
	require.NoError(t, store.InsertEntry(ctx, entry))
	assert.ErrorIs(t, store.InsertEntry(ctx, entry), ErrFileExists)
	require.NoError(t, store.InsertEntry(ctx, &FileMetadata{Path: "/a/file"}))

	found, err := store.FindEntry(ctx, "/b/file")
	require.NoError(t, err)
	assert.Equal(t, entry, found)

	// returned entries are copies
	found.Blocks[0].Size = 99
	again, _ := store.FindEntry(ctx, "/b/file")
	assert.Equal(t, uint64(10), again.Blocks[0].Size)

	found.Length = 20
	require.NoError(t, store.UpdateEntry(ctx, found))
	again, _ = store.FindEntry(ctx, "/b/file")
	assert.Equal(t, uint64(20), again.Length)
	assert.ErrorIs(t, store.UpdateEntry(ctx, &FileMetadata{Path: "/none"}), ErrFileNotFound)

	var paths []util.FullPath
	require.NoError(t, store.ListEntries(ctx, func(e *FileMetadata) bool {
		paths = append(paths, e.Path)
		return true
	}))
	assert.Equal(t, []util.FullPath{"/a/file", "/b/file"}, paths)

	require.NoError(t, store.DeleteEntry(ctx, "/b/file"))
	_, err = store.FindEntry(ctx, "/b/file")
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.ErrorIs(t, store.DeleteEntry(ctx, "/b/file"), ErrFileNotFound)
}

func TestMemoryStore(t *testing.T) {
	testFileStore(t, NewMemoryStore())
}

func TestLevelDBStore(t *testing.T) {
	store, err := NewLevelDBStore(t.TempDir())
	require.NoError(t, err)
	defer store.Shutdown()
	testFileStore(t, store)
}

func TestLevelDBStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLevelDBStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.InsertEntry(context.Background(), &FileMetadata{Path: "/x", LazyPersist: true}))
	store.Shutdown()

	reopened, err := NewLevelDBStore(dir)
	require.NoError(t, err)
	defer reopened.Shutdown()
	entry, err := reopened.FindEntry(context.Background(), "/x")
	require.NoError(t, err)
	assert.True(t, entry.LazyPersist)
}

func TestLoadFileStore(t *testing.T) {
	v := util.NewViperProxy()
	v.Set("master.meta.store", "leveldb")
	v.Set("master.meta.dir", t.TempDir())
	store, err := LoadFileStore(v, "master.meta.")
	require.NoError(t, err)
	defer store.Shutdown()
	assert.Equal(t, "leveldb", store.GetName())

	v.Set("master.meta.store", "nope")
	_, err = LoadFileStore(v, "master.meta.")
	assert.Error(t, err)
}
