package namespace

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/seaweedfs/ramtier/weed/storage/types"
	"github.com/seaweedfs/ramtier/weed/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type BlockMeta struct {
	Id        types.BlockId         `json:"id"`
	Gen       types.GenerationStamp `json:"gen"`
	Size      uint64                `json:"size"`
	Committed bool                  `json:"committed,omitempty"`
}

// FileMetadata is one file of the namespace. LazyPersist files have all
// their blocks written through the RAM tier.
type FileMetadata struct {
	Path              util.FullPath `json:"path"`
	LazyPersist       bool          `json:"lazyPersist,omitempty"`
	Replication       int           `json:"replication"`
	Blocks            []BlockMeta   `json:"blocks,omitempty"`
	Length            uint64        `json:"length"`
	UnderConstruction bool          `json:"underConstruction,omitempty"`
	Crtime            time.Time     `json:"crtime"`
	Mtime             time.Time     `json:"mtime"`
}

func (f *FileMetadata) String() string {
	return fmt.Sprintf("%s lazyPersist:%v replication:%d blocks:%d length:%d", f.Path, f.LazyPersist, f.Replication, len(f.Blocks), f.Length)
}

func (f *FileMetadata) Clone() *FileMetadata {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Blocks = append([]BlockMeta(nil), f.Blocks...)
	return &clone
}

func (f *FileMetadata) findBlock(id types.BlockId) int {
	for i, b := range f.Blocks {
		if b.Id == id {
			return i
		}
	}
	return -1
}

func (f *FileMetadata) EncodeAttributesAndBlocks() ([]byte, error) {
	return json.Marshal(f)
}

func (f *FileMetadata) DecodeAttributesAndBlocks(blob []byte) error {
	if err := json.Unmarshal(blob, f); err != nil {
		return fmt.Errorf("decode file metadata: %v", err)
	}
	return nil
}
