package sequence

// Sequencer hands out block ids.
type Sequencer interface {
	NextBlockId(count uint64) uint64
	SetMax(uint64)
	Peek() uint64
}
