package stats

import (
	"runtime"

	"github.com/golang/glog"
	"github.com/shirou/gopsutil/v4/mem"
)

type MemStatus struct {
	Goroutines int    `json:"goroutines"`
	All        uint64 `json:"all"`
	Used       uint64 `json:"used"`
	Free       uint64 `json:"free"`
	Self       uint64 `json:"self"`
	Heap       uint64 `json:"heap"`
	Stack      uint64 `json:"stack"`
}

func MemStat() MemStatus {
	memStatus := MemStatus{}
	memStatus.Goroutines = runtime.NumGoroutine()
	memStat := new(runtime.MemStats)
	runtime.ReadMemStats(memStat)
	memStatus.Self = memStat.Alloc
	memStatus.Heap = memStat.HeapAlloc
	memStatus.Stack = memStat.StackInuse

	memStatus.fillInStatus()
	return memStatus
}

func (m *MemStatus) fillInStatus() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		glog.V(1).Infof("virtual memory stat: %v", err)
		return
	}
	m.All = vm.Total
	m.Free = vm.Available
	m.Used = vm.Used
}
