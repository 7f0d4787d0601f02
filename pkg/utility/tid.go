package utility

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TraceID is a snowflake-style id: 41 bits of milliseconds since the epoch,
// 10 bits of node identity, 13 bits of sequence. Ids created on one node are
// strictly increasing.
type TraceID = uint64

const (
	nodeBits     = 10
	sequenceBits = 13

	maxSequence = 1<<sequenceBits - 1
	maxNode     = 1<<nodeBits - 1

	timestampShift = nodeBits + sequenceBits
	nodeShift      = sequenceBits
)

var (
	sequence atomic.Uint64
	nodeID   uint64
	epoch    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
)

func init() {
	nodeID = uint64(uuid.New().ID()) & maxNode
}

func CreateTraceID() TraceID {
	timestamp := uint64(time.Now().UnixMilli() - epoch)
	seq := sequence.Add(1) & maxSequence

	// Sequence wrapped within the same millisecond, wait it out.
	if seq == 0 {
		time.Sleep(time.Millisecond)
		timestamp = uint64(time.Now().UnixMilli() - epoch)
	}

	return (timestamp << timestampShift) | (nodeID << nodeShift) | seq
}

func ParseTraceID(id TraceID) (timestamp time.Time, node uint64, seq uint64) {
	seq = id & maxSequence
	node = (id >> nodeShift) & maxNode
	ts := id >> timestampShift
	timestamp = time.UnixMilli(epoch + int64(ts))
	return
}
