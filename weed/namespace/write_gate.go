package namespace

import (
	"errors"
	"fmt"

	"github.com/seaweedfs/ramtier/weed/stats"
)

var ErrUnsupportedOperation = errors.New("namespace: operation not supported on lazy persist file")

type Operation int

const (
	OpCreate Operation = iota
	OpWrite
	OpAppend
	OpTruncate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpAppend:
		return "append"
	case OpTruncate:
		return "truncate"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// WriteGate rejects mutations of blocks that were written through the RAM
// tier. Such blocks are written exactly once, so append and truncate are
// refused immediately and never retried.
type WriteGate struct{}

func (WriteGate) Authorize(op Operation, meta *FileMetadata) error {
	if meta == nil || !meta.LazyPersist {
		return nil
	}
	switch op {
	case OpAppend, OpTruncate:
		stats.MasterWriteGateDeniedCounter.WithLabelValues(op.String()).Inc()
		return fmt.Errorf("%s %s: %w", op, meta.Path, ErrUnsupportedOperation)
	}
	return nil
}
