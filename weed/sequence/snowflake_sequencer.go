package sequence

import (
	"fmt"
	"hash/fnv"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/glog"
)

// a simple snowflake Sequencer
type SnowflakeSequencer struct {
	node *snowflake.Node
}

func NewSnowflakeSequencer(nodeid string, snowflakeId int) (*SnowflakeSequencer, error) {
	nodeid_hash := hash(nodeid) & 0x3ff
	if snowflakeId != 0 {
		nodeid_hash = uint32(snowflakeId)
	}
	glog.V(0).Infof("use snowflake seq id generator, nodeid:%s hex_of_nodeid: %x", nodeid, nodeid_hash)
	node, err := snowflake.NewNode(int64(nodeid_hash))
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %v", nodeid_hash, err)
	}

	sequencer := &SnowflakeSequencer{node: node}
	return sequencer, nil
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// the count is ignored, every id is unique on its own
func (m *SnowflakeSequencer) NextBlockId(count uint64) uint64 {
	return uint64(m.node.Generate().Int64())
}

// ignore setmax as we are snowflake
func (m *SnowflakeSequencer) SetMax(seenValue uint64) {
}

// return a new id as no Peek is stored
func (m *SnowflakeSequencer) Peek() uint64 {
	return uint64(m.node.Generate().Int64())
}
