// Package comm defines the message-passing substrate used by the
// compositors and the collectives built on top of it.
//
// A Comm is one rank's endpoint. Transports only provide tagged
// point-to-point messages; gather, all-gather, broadcast, barrier,
// all-reduce, and the two-phase Exchange are implemented here once, so every
// transport gets identical collective semantics.
//
// Transport contract:
//   - Send never waits for the matching Recv.
//   - Messages between one (source, destination, tag) triple arrive in the
//     order they were sent.
//   - Every rank enters collectives in the same order.
package comm

import (
	"context"
	"errors"
	"fmt"
)

// Communication errors
var (
	ErrClosed      = errors.New("comm: endpoint closed")
	ErrInvalidRank = errors.New("comm: rank out of range")
	ErrPeerFailed  = errors.New("comm: peer rank failed")
	ErrProtocol    = errors.New("comm: malformed collective message")
)

// Tag distinguishes message streams between the same pair of ranks.
type Tag uint32

// Tags at or above TagReserved belong to the collectives in this package.
const TagReserved Tag = 0xc0000000

const (
	tagGather Tag = TagReserved + iota
	tagBcast
	tagAllgather
	tagBarrier
	tagReduce
	tagReduceResult
	tagCounts
	tagData
	tagAgree
)

// Comm is one rank's view of a fixed group of ranks.
type Comm interface {
	// Rank returns this endpoint's rank in [0, Size()).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Send queues payload for dest. Ownership of payload passes to the
	// transport; the caller must not modify it afterwards.
	Send(ctx context.Context, dest int, tag Tag, payload []byte) error

	// Recv blocks until a message from src with the given tag arrives.
	Recv(ctx context.Context, src int, tag Tag) ([]byte, error)
}

// SizeMismatchError reports a received message whose length differs from
// the length announced in the count exchange.
type SizeMismatchError struct {
	Src      int
	Index    int
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("comm: message %d from rank %d is %d bytes, announced %d",
		e.Index, e.Src, e.Actual, e.Expected)
}

func checkRank(c Comm, rank int) error {
	if rank < 0 || rank >= c.Size() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidRank, rank, c.Size())
	}
	return nil
}
