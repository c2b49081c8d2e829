package stats

import (
	"path/filepath"

	"github.com/golang/glog"
	"github.com/shirou/gopsutil/v4/disk"
)

type DiskStatus struct {
	Dir         string  `json:"dir"`
	All         uint64  `json:"all"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	PercentFree float32 `json:"percentFree"`
	PercentUsed float32 `json:"percentUsed"`
}

func NewDiskStatus(path string) (status *DiskStatus) {
	status = &DiskStatus{Dir: path}
	fillInDiskStatus(status)
	return
}

func fillInDiskStatus(status *DiskStatus) {
	absPath, _ := filepath.Abs(status.Dir)
	usage, err := disk.Usage(absPath)
	if err != nil {
		glog.V(1).Infof("disk usage of %s: %v", status.Dir, err)
		return
	}
	status.All = usage.Total
	status.Free = usage.Free
	status.Used = usage.Used
	if status.All > 0 {
		status.PercentFree = float32(float64(status.Free) / float64(status.All) * 100)
		status.PercentUsed = float32(float64(status.Used) / float64(status.All) * 100)
	}
}
