package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// World is an in-process group of ranks connected by mailboxes. It runs
// every rank as a goroutine and is the transport used by tests and by
// single-process renders.
type World struct {
	comms []*LocalComm
}

// NewWorld creates a group of size ranks.
func NewWorld(size int) *World {
	if size <= 0 {
		panic(fmt.Sprintf("comm: world size %d must be positive", size))
	}
	w := &World{comms: make([]*LocalComm, size)}
	for r := range w.comms {
		w.comms[r] = &LocalComm{rank: r, world: w, box: NewMailbox()}
	}
	return w
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return len(w.comms)
}

// Comm returns the endpoint of rank.
func (w *World) Comm(rank int) *LocalComm {
	return w.comms[rank]
}

// Run calls fn once per rank, each on its own goroutine, and waits for all
// of them. The first error cancels the context passed to the other ranks,
// so ranks blocked in a collective return instead of hanging.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Comm) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range w.comms {
		c := c
		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				return fmt.Errorf("rank %d: %w", c.rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close shuts every mailbox; pending and future receives fail with
// ErrClosed.
func (w *World) Close() {
	for _, c := range w.comms {
		c.box.Close(ErrClosed)
	}
}

// LocalComm is one rank of a World.
type LocalComm struct {
	rank  int
	world *World
	box   *Mailbox
}

// Rank implements Comm.
func (c *LocalComm) Rank() int { return c.rank }

// Size implements Comm.
func (c *LocalComm) Size() int { return len(c.world.comms) }

// Send implements Comm. Delivery is immediate; the call never blocks.
func (c *LocalComm) Send(ctx context.Context, dest int, tag Tag, payload []byte) error {
	if err := checkRank(c, dest); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.world.comms[dest].box.Deliver(c.rank, tag, payload)
	return nil
}

// Recv implements Comm.
func (c *LocalComm) Recv(ctx context.Context, src int, tag Tag) ([]byte, error) {
	if err := checkRank(c, src); err != nil {
		return nil, err
	}
	return c.box.Take(ctx, src, tag)
}

// Pending returns the number of messages delivered to this rank but not yet
// received. A completed compositing pass leaves it at zero.
func (c *LocalComm) Pending() int {
	return c.box.Pending()
}
