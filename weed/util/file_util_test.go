package util

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderWritableAndFileExists(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, TestFolderWritable(dir))

	file := filepath.Join(dir, "blk_1")
	assert.False(t, FileExists(file))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	assert.True(t, FileExists(file))

	assert.Error(t, TestFolderWritable(file), "a regular file is not a folder")
	assert.Error(t, TestFolderWritable(filepath.Join(dir, "missing")))
	assert.NoError(t, SyncDir(dir))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/data/ram", ResolvePath("/data/ram"))
	assert.Equal(t, "~data", ResolvePath("~data"))

	usr, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	assert.Equal(t, usr.HomeDir, ResolvePath("~"))
	assert.Equal(t, filepath.Join(usr.HomeDir, "ram"), ResolvePath("~/ram"))
}
