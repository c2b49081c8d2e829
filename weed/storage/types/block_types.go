package types

import (
	"fmt"
	"strconv"
	"strings"
)

type BlockId uint64

type GenerationStamp uint64

const (
	ChecksumSize = 8

	BlockFilePrefix    = "blk_"
	MetaFileExtension  = ".meta"
	GenerationStampNil = GenerationStamp(0)
)

func (id BlockId) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func ParseBlockId(idString string) (BlockId, error) {
	id, err := strconv.ParseUint(idString, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("block id %s format error: %v", idString, err)
	}
	return BlockId(id), nil
}

func (gs GenerationStamp) String() string {
	return strconv.FormatUint(uint64(gs), 10)
}

// BlockFileName is the on-disk name of a persisted replica, e.g. blk_1073741825_1001
func BlockFileName(id BlockId, gs GenerationStamp) string {
	return fmt.Sprintf("%s%d_%d", BlockFilePrefix, id, gs)
}

func MetaFileName(id BlockId, gs GenerationStamp) string {
	return BlockFileName(id, gs) + MetaFileExtension
}

// ParseBlockFileName is the reverse of BlockFileName. Meta files are rejected.
func ParseBlockFileName(name string) (id BlockId, gs GenerationStamp, err error) {
	if !strings.HasPrefix(name, BlockFilePrefix) || strings.HasSuffix(name, MetaFileExtension) {
		return 0, 0, fmt.Errorf("%s is not a block file", name)
	}
	parts := strings.Split(name[len(BlockFilePrefix):], "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%s is not a block file", name)
	}
	if id, err = ParseBlockId(parts[0]); err != nil {
		return 0, 0, err
	}
	stamp, parseErr := strconv.ParseUint(parts[1], 10, 64)
	if parseErr != nil {
		return 0, 0, fmt.Errorf("generation stamp %s format error: %v", parts[1], parseErr)
	}
	return id, GenerationStamp(stamp), nil
}
