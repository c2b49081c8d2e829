//go:build !linux && !darwin
// +build !linux,!darwin

package backend

func (df *DiskFile) Sync() error {
	return df.File.Sync()
}
