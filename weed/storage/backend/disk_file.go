package backend

import (
	"io"
	"os"
	"time"
)

// DiskFile is a block or meta file on a local disk.
type DiskFile struct {
	File         *os.File
	fullFilePath string
	fileSize     int64
	modTime      time.Time
}

func NewDiskFile(f *os.File) *DiskFile {
	return &DiskFile{
		fullFilePath: f.Name(),
		File:         f,
	}
}

func OpenDiskFile(fullFilePath string, flag int) (*DiskFile, error) {
	f, err := os.OpenFile(fullFilePath, flag, 0644)
	if err != nil {
		return nil, err
	}
	return NewDiskFile(f), nil
}

func (df *DiskFile) ReadAt(p []byte, off int64) (n int, err error) {
	return df.File.ReadAt(p, off)
}

// ReadAll reads the whole file from offset 0.
func (df *DiskFile) ReadAll() ([]byte, error) {
	size, _, err := df.GetStat()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := df.File.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func (df *DiskFile) WriteAt(p []byte, off int64) (n int, err error) {
	n, err = df.File.WriteAt(p, off)
	if err == nil {
		waterMark := off + int64(n)
		if waterMark > df.fileSize {
			df.fileSize = waterMark
			df.modTime = time.Now()
		}
	}
	return
}

func (df *DiskFile) Truncate(off int64) error {
	err := df.File.Truncate(off)
	if err == nil {
		df.fileSize = off
		df.modTime = time.Now()
	}
	return err
}

func (df *DiskFile) Close() error {
	return df.File.Close()
}

func (df *DiskFile) GetStat() (datSize int64, modTime time.Time, err error) {
	if df.fileSize != 0 {
		return df.fileSize, df.modTime, nil
	}
	stat, e := df.File.Stat()
	if e == nil {
		return stat.Size(), stat.ModTime(), nil
	}
	return 0, time.Time{}, e
}

func (df *DiskFile) Name() string {
	return df.fullFilePath
}
