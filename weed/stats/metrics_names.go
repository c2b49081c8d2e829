package stats

// metric label values
const (
	// ram tier bytes
	RamTierCapacity = "capacity"
	RamTierUsed     = "used"
	RamTierReserved = "reserved"

	// lazy writer
	LazyPersisted         = "persisted"
	LazyPersistFailed     = "persistFailed"
	LazyEvicted           = "evicted"
	LazyEvictFailed       = "evictFailed"
	LazyEvictedBytes      = "evictedBytes"
	LazyWriterCycle       = "cycle"
	LazyWriterPersist     = "persist"
	LazyWriterEvict       = "evict"
	BlockRead             = "read"
	BlockWrite            = "write"
	BlockDelete           = "delete"
	ErrorChecksumMismatch = "errorChecksumMismatch"

	// master
	ScrubberDeletedFiles  = "deletedFiles"
	ScrubberDeleteFailed  = "deleteFailed"
	ScrubberUnrecoverable = "unrecoverableBlocks"
	HeartbeatFull         = "full"
	HeartbeatNewNode      = "newNode"
)
