package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaweedfs/ramtier/weed/storage/types"
)

func TestDiskStorageWriteSyncRead(t *testing.T) {
	ds, err := NewDiskStorage("d1", t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	data := []byte("lazy persisted block content")
	path, err := ds.WriteBlock(7, 1001, data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ds.Directory(), "blk_7_1001"), path)
	require.NoError(t, ds.Sync(7, 1001))
	assert.True(t, ds.HasBlock(7, 1001))

	got, err := ds.ReadBlock(7, 1001)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoError(t, ds.VerifyBlock(7, 1001, Checksum(data)))

	_, err = ds.WriteBlock(7, 1001, data)
	assert.ErrorIs(t, err, ErrBlockAlreadyExist)
}

func TestDiskStorageDetectsCorruption(t *testing.T) {
	ds, err := NewDiskStorage("d1", t.TempDir())
	require.NoError(t, err)

	data := []byte("0123456789")
	path, err := ds.WriteBlock(1, 1, data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("0123456780"), 0644))

	_, err = ds.ReadBlock(1, 1)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.ErrorIs(t, ds.VerifyBlock(1, 1, Checksum(data)), ErrChecksumMismatch)
}

func TestDiskStorageDelete(t *testing.T) {
	ds, err := NewDiskStorage("d1", t.TempDir())
	require.NoError(t, err)

	_, err = ds.WriteBlock(3, 2, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, ds.DeleteBlock(3, 2))
	assert.False(t, ds.HasBlock(3, 2))

	_, err = ds.ReadBlock(3, 2)
	assert.ErrorIs(t, err, ErrBlockNotFound)
	assert.ErrorIs(t, ds.DeleteBlock(3, 2), ErrBlockNotFound)
}

func TestDiskStorageLoadExistingBlocks(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStorage("d1", dir)
	require.NoError(t, err)

	_, err = ds.WriteBlock(10, 1, []byte("ten"))
	require.NoError(t, err)
	_, err = ds.WriteBlock(11, 2, []byte("eleven"))
	require.NoError(t, err)
	// leftovers of an interrupted write and a block without meta
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blk_12_1.tmp"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blk_13_1"), []byte("orphan"), 0644))

	reopened, err := NewDiskStorage("d1", dir)
	require.NoError(t, err)
	blocks, err := reopened.LoadExistingBlocks()
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	byId := make(map[types.BlockId]BlockInfo)
	for _, b := range blocks {
		byId[b.Id] = b
	}
	assert.Equal(t, types.GenerationStamp(1), byId[10].Gen)
	assert.Equal(t, int64(3), byId[10].Size)
	assert.Equal(t, Checksum([]byte("eleven")), byId[11].Checksum)

	_, err = os.Stat(filepath.Join(dir, "blk_12_1.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryStorageCopiesData(t *testing.T) {
	ms := NewMemoryStorage("ram0")
	data := []byte("abc")
	_, err := ms.WriteBlock(1, 1, data)
	require.NoError(t, err)
	data[0] = 'z'

	got, err := ms.ReadBlock(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'z'

	again, _ := ms.ReadBlock(1, 1)
	assert.Equal(t, []byte("abc"), again)
	assert.Equal(t, types.RamDiskMedium, ms.Medium())
	assert.NoError(t, ms.Sync(1, 1))

	require.NoError(t, ms.DeleteBlock(1, 1))
	assert.Equal(t, 0, ms.BlockCount())
	_, err = ms.ReadBlock(1, 1)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}
