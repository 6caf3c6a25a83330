package comm

import (
	"context"
	"sync"
)

type mailKey struct {
	src int
	tag Tag
}

// Mailbox holds messages delivered to one rank until they are received.
// Messages are matched by (source, tag) and kept in arrival order, so a
// transport only has to call Deliver from its receive path.
type Mailbox struct {
	mu      sync.Mutex
	queues  map[mailKey][][]byte
	waiters map[mailKey]chan struct{}
	err     error
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		queues:  make(map[mailKey][][]byte),
		waiters: make(map[mailKey]chan struct{}),
	}
}

// Deliver appends a message from src. Deliveries after Close are dropped.
func (m *Mailbox) Deliver(src int, tag Tag, payload []byte) {
	k := mailKey{src, tag}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.queues[k] = append(m.queues[k], payload)
	if w, ok := m.waiters[k]; ok {
		close(w)
		delete(m.waiters, k)
	}
}

// Take removes and returns the oldest message from src with tag, waiting
// for one if necessary.
func (m *Mailbox) Take(ctx context.Context, src int, tag Tag) ([]byte, error) {
	k := mailKey{src, tag}
	for {
		m.mu.Lock()
		if q := m.queues[k]; len(q) > 0 {
			msg := q[0]
			q[0] = nil
			if len(q) == 1 {
				delete(m.queues, k)
			} else {
				m.queues[k] = q[1:]
			}
			m.mu.Unlock()
			return msg, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return nil, err
		}
		w, ok := m.waiters[k]
		if !ok {
			w = make(chan struct{})
			m.waiters[k] = w
		}
		m.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Pending returns the number of queued, unreceived messages.
func (m *Mailbox) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.queues {
		n += len(q)
	}
	return n
}

// Close wakes every waiter with err (ErrClosed when nil). Messages already
// queued can still be taken.
func (m *Mailbox) Close(err error) {
	if err == nil {
		err = ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return
	}
	m.err = err
	for k, w := range m.waiters {
		close(w)
		delete(m.waiters, k)
	}
}
