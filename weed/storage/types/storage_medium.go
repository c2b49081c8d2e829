package types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownMedium = errors.New("types: unknown storage medium")

// Medium is where a replica physically lives.
type Medium string

const (
	RamDiskMedium Medium = "ram"
	DiskMedium    Medium = "disk"
)

func ToMedium(m string) (Medium, error) {
	switch strings.ToLower(m) {
	case "", "disk", "hdd", "ssd":
		return DiskMedium, nil
	case "ram", "ram_disk", "mem", "memory":
		return RamDiskMedium, nil
	}
	return "", fmt.Errorf("medium %q: %w", m, ErrUnknownMedium)
}

func (medium Medium) String() string {
	return string(medium)
}

func (medium Medium) IsVolatile() bool {
	return medium == RamDiskMedium
}

// ReplicaState is the location of a block on this node across both media.
type ReplicaState int

const (
	RamOnly ReplicaState = iota
	RamAndDisk
	DiskOnly
)

func (s ReplicaState) String() string {
	switch s {
	case RamOnly:
		return "ram"
	case RamAndDisk:
		return "ram+disk"
	case DiskOnly:
		return "disk"
	}
	return "unknown"
}

// HasRam reports whether a RAM copy still exists.
func (s ReplicaState) HasRam() bool {
	return s == RamOnly || s == RamAndDisk
}

// IsDurable reports whether an fsync'ed disk copy exists.
func (s ReplicaState) IsDurable() bool {
	return s == RamAndDisk || s == DiskOnly
}
