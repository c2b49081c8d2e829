package util

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
)

// ParseCapacity accepts either a plain byte count or a human readable size like "64MiB".
func ParseCapacity(name, capacityArg string) (uint64, error) {
	capacity, err := humanize.ParseBytes(capacityArg)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, capacityArg, err)
	}
	return capacity, nil
}

func Assert(condition bool, format string, args ...interface{}) {
	if condition {
		glog.Fatalf(format, args...)
	}
}
