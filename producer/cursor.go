package producer

// Cursor tracks the last JobSubmitted event this producer has emitted,
// as a (block number, log index) pair. It is monotonic: the producer
// never emits an event at or before its current cursor, which is what
// keeps restarts from re-emitting the tail of the previous poll.
type Cursor struct {
	BlockNumber uint64
	LogIndex    uint
	set         bool
}

// Before reports whether (blockNumber, logIndex) is strictly after the
// cursor's current position — i.e. whether it should be emitted.
func (c Cursor) Before(blockNumber uint64, logIndex uint) bool {
	if !c.set {
		return true
	}
	if blockNumber != c.BlockNumber {
		return blockNumber > c.BlockNumber
	}
	return logIndex > c.LogIndex
}

// Advance moves the cursor to (blockNumber, logIndex), if that position
// is after the current one. Advancing backwards is a no-op rather than
// an error: a reorg'd poll can legitimately re-see older logs.
func (c *Cursor) Advance(blockNumber uint64, logIndex uint) {
	if c.Before(blockNumber, logIndex) {
		c.BlockNumber = blockNumber
		c.LogIndex = logIndex
		c.set = true
	}
}

// IsSet reports whether the cursor has ever been advanced.
func (c Cursor) IsSet() bool { return c.set }
