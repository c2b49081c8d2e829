package util

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

func TestFolderWritable(folder string) (err error) {
	fileInfo, err := os.Stat(folder)
	if err != nil {
		return err
	}

	if !fileInfo.IsDir() {
		return errors.New("Not a valid folder!")
	}

	perm := fileInfo.Mode().Perm()
	glog.V(0).Infoln("Folder", folder, "Permission:", perm)
	if 0200&perm != 0 {
		return nil
	}
	return errors.New("Not writable!")
}

func FileExists(filename string) bool {

	_, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return true

}

// ResolvePath expands a leading "~" to the current user's home directory.
func ResolvePath(path string) string {

	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path
	}

	usr, err := user.Current()
	if err != nil {
		glog.Warningf("resolve %s: %v", path, err)
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	return filepath.Join(usr.HomeDir, path[2:])
}

// SyncDir fsyncs a directory so a newly created entry in it survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
