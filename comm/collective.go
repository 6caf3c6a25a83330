package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-sortlast/internal/xdr"
)

// Gatherv collects one variable-length payload from every rank at root.
// On root the result is indexed by source rank; other ranks get nil.
func Gatherv(ctx context.Context, c Comm, root int, data []byte) ([][]byte, error) {
	return gatherv(ctx, c, root, tagGather, data)
}

func gatherv(ctx context.Context, c Comm, root int, tag Tag, data []byte) ([][]byte, error) {
	if err := checkRank(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return nil, c.Send(ctx, root, tag, data)
	}

	out := make([][]byte, c.Size())
	out[root] = data
	for src := 0; src < c.Size(); src++ {
		if src == root {
			continue
		}
		msg, err := c.Recv(ctx, src, tag)
		if err != nil {
			return nil, fmt.Errorf("gather from rank %d: %w", src, err)
		}
		out[src] = msg
	}
	return out, nil
}

// Bcast sends root's data to every rank and returns it everywhere.
func Bcast(ctx context.Context, c Comm, root int, data []byte) ([]byte, error) {
	return bcast(ctx, c, root, tagBcast, data)
}

func bcast(ctx context.Context, c Comm, root int, tag Tag, data []byte) ([]byte, error) {
	if err := checkRank(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		msg, err := c.Recv(ctx, root, tag)
		if err != nil {
			return nil, fmt.Errorf("broadcast from rank %d: %w", root, err)
		}
		return msg, nil
	}
	for dest := 0; dest < c.Size(); dest++ {
		if dest == root {
			continue
		}
		if err := c.Send(ctx, dest, tag, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Allgatherv collects one variable-length payload from every rank on every
// rank. The result is indexed by source rank.
//
// Each rank sends directly to every peer. Payloads must not be modified
// after the call because peers may share them on in-process transports.
func Allgatherv(ctx context.Context, c Comm, data []byte) ([][]byte, error) {
	return allgatherv(ctx, c, tagAllgather, data)
}

func allgatherv(ctx context.Context, c Comm, tag Tag, data []byte) ([][]byte, error) {
	self := c.Rank()
	for dest := 0; dest < c.Size(); dest++ {
		if dest == self {
			continue
		}
		if err := c.Send(ctx, dest, tag, data); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, c.Size())
	out[self] = data
	for src := 0; src < c.Size(); src++ {
		if src == self {
			continue
		}
		msg, err := c.Recv(ctx, src, tag)
		if err != nil {
			return nil, fmt.Errorf("all-gather from rank %d: %w", src, err)
		}
		out[src] = msg
	}
	return out, nil
}

// Barrier returns once every rank has entered it.
func Barrier(ctx context.Context, c Comm) error {
	if _, err := gatherv(ctx, c, 0, tagBarrier, nil); err != nil {
		return err
	}
	_, err := bcast(ctx, c, 0, tagBarrier, nil)
	return err
}

// AllreduceInt64 sums equal-length vectors element-wise across all ranks.
// The sum is formed on rank 0 in rank order and broadcast, so every rank
// receives identical values.
func AllreduceInt64(ctx context.Context, c Comm, vals []int64) ([]int64, error) {
	w := xdr.NewWriter(4 + 8*len(vals))
	w.WriteUint32(uint32(len(vals)))
	for _, v := range vals {
		w.WriteInt64(v)
	}

	parts, err := gatherv(ctx, c, 0, tagReduce, w.Bytes())
	if err != nil {
		return nil, err
	}

	var result []byte
	if c.Rank() == 0 {
		sum := make([]int64, len(vals))
		for src, part := range parts {
			r := xdr.NewReader(part)
			n, err := r.ReadUint32()
			if err != nil || int(n) != len(vals) {
				return nil, fmt.Errorf("%w: rank %d reduced %d values, want %d", ErrProtocol, src, n, len(vals))
			}
			for i := range sum {
				v, err := r.ReadInt64()
				if err != nil {
					return nil, fmt.Errorf("%w: rank %d: %v", ErrProtocol, src, err)
				}
				sum[i] += v
			}
		}
		out := xdr.NewWriter(8 * len(sum))
		for _, v := range sum {
			out.WriteInt64(v)
		}
		result = out.Bytes()
	}

	result, err = bcast(ctx, c, 0, tagReduceResult, result)
	if err != nil {
		return nil, err
	}
	if len(result) != 8*len(vals) {
		return nil, fmt.Errorf("%w: reduced vector is %d bytes, want %d", ErrProtocol, len(result), 8*len(vals))
	}
	sum := make([]int64, len(vals))
	r := xdr.NewReader(result)
	for i := range sum {
		sum[i], _ = r.ReadInt64()
	}
	return sum, nil
}

// Exchange delivers a variable number of variable-length messages from
// every rank to every other rank. outgoing[dest] lists the payloads for
// dest; the result lists, per source rank, the payloads received from it in
// the order they were sent. Messages a rank addresses to itself are passed
// through without touching the transport.
//
// It runs in two phases. First every rank tells every peer how many
// messages it will send and how long each is. Then all payloads are sent
// concurrently and each rank receives exactly the announced messages,
// checking every length. A length mismatch is a *SizeMismatchError.
func Exchange(ctx context.Context, c Comm, outgoing [][][]byte) ([][][]byte, error) {
	size, self := c.Size(), c.Rank()
	if len(outgoing) != size {
		return nil, fmt.Errorf("comm: exchange has %d destinations, want %d", len(outgoing), size)
	}

	for dest, msgs := range outgoing {
		if dest == self {
			continue
		}
		w := xdr.NewWriter(4 + 8*len(msgs))
		w.WriteUint32(uint32(len(msgs)))
		for _, m := range msgs {
			w.WriteUint64(uint64(len(m)))
		}
		if err := c.Send(ctx, dest, tagCounts, w.Bytes()); err != nil {
			return nil, fmt.Errorf("send counts to rank %d: %w", dest, err)
		}
	}

	expected := make([][]int, size)
	for src := 0; src < size; src++ {
		if src == self {
			continue
		}
		msg, err := c.Recv(ctx, src, tagCounts)
		if err != nil {
			return nil, fmt.Errorf("receive counts from rank %d: %w", src, err)
		}
		sizes, err := decodeCounts(msg)
		if err != nil {
			return nil, fmt.Errorf("counts from rank %d: %w", src, err)
		}
		expected[src] = sizes
	}

	g, gctx := errgroup.WithContext(ctx)
	for dest, msgs := range outgoing {
		if dest == self || len(msgs) == 0 {
			continue
		}
		g.Go(func() error {
			for _, m := range msgs {
				if err := c.Send(gctx, dest, tagData, m); err != nil {
					return fmt.Errorf("send to rank %d: %w", dest, err)
				}
			}
			return nil
		})
	}

	incoming := make([][][]byte, size)
	incoming[self] = outgoing[self]
	var recvErr error
recv:
	for src := 0; src < size; src++ {
		if src == self {
			continue
		}
		msgs := make([][]byte, len(expected[src]))
		for i, want := range expected[src] {
			m, err := c.Recv(gctx, src, tagData)
			if err != nil {
				recvErr = fmt.Errorf("receive from rank %d: %w", src, err)
				break recv
			}
			if len(m) != want {
				recvErr = &SizeMismatchError{Src: src, Index: i, Expected: want, Actual: len(m)}
				break recv
			}
			msgs[i] = m
		}
		incoming[src] = msgs
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if recvErr != nil {
		return nil, recvErr
	}
	return incoming, nil
}

func decodeCounts(msg []byte) ([]int, error) {
	r := xdr.NewReader(msg)
	n, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if int64(n)*8 != int64(r.Len()) {
		return nil, fmt.Errorf("%w: %d counts in %d bytes", ErrProtocol, n, r.Len())
	}
	sizes := make([]int, n)
	for i := range sizes {
		v, _ := r.ReadUint64()
		sizes[i] = int(v)
	}
	return sizes, nil
}

// Agree makes every rank learn whether any rank failed before a
// collective. Each rank contributes localErr; if it is non-nil Agree
// returns it unchanged, otherwise it returns an error wrapping
// ErrPeerFailed naming the lowest failing rank. All ranks return nil only
// when all ranks passed nil.
//
// Calling Agree before the first blocking collective of a pass turns a
// usage error on one rank into an error on every rank instead of a hang.
func Agree(ctx context.Context, c Comm, localErr error) error {
	w := xdr.NewWriter(16)
	if localErr != nil {
		w.WriteUint8(1)
		w.WriteBytes([]byte(localErr.Error()))
	} else {
		w.WriteUint8(0)
	}

	status, err := allgatherv(ctx, c, tagAgree, w.Bytes())
	if err != nil {
		if localErr != nil {
			return localErr
		}
		return err
	}
	if localErr != nil {
		return localErr
	}
	for src, s := range status {
		if len(s) == 0 {
			return fmt.Errorf("%w: empty status from rank %d", ErrProtocol, src)
		}
		if s[0] != 0 {
			return fmt.Errorf("%w: rank %d: %s", ErrPeerFailed, src, s[1:])
		}
	}
	return nil
}
