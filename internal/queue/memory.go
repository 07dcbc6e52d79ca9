package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultPollWindow = time.Second

// MemoryTransport is an in-process transport for development and tests. Messages do not
// survive a restart. Received messages stay in flight until Ack and Recover puts the
// unacknowledged ones back.
type MemoryTransport struct {
	ch   chan []byte
	poll time.Duration

	mu       sync.Mutex
	nextID   uint64
	inflight map[uint64][]byte
}

func NewMemoryTransport(capacity int) *MemoryTransport {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryTransport{
		ch:       make(chan []byte, capacity),
		poll:     defaultPollWindow,
		inflight: make(map[uint64][]byte),
	}
}

func (t *MemoryTransport) Publish(ctx context.Context, body []byte) error {
	select {
	case t.ch <- append([]byte(nil), body...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Receive(ctx context.Context) (*Message, error) {
	timer := time.NewTimer(t.poll)
	defer timer.Stop()
	select {
	case body := <-t.ch:
		id := t.track(body)
		return NewMessage(body, func(context.Context) error {
			t.mu.Lock()
			delete(t.inflight, id)
			t.mu.Unlock()
			return nil
		}), nil
	case <-timer.C:
		return nil, ErrEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) track(body []byte) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.inflight[t.nextID] = body
	return t.nextID
}

// Recover republishes unacknowledged messages in the order they were received.
func (t *MemoryTransport) Recover(ctx context.Context) (int, error) {
	t.mu.Lock()
	ids := make([]uint64, 0, len(t.inflight))
	for id := range t.inflight {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	bodies := make([][]byte, 0, len(ids))
	for _, id := range ids {
		bodies = append(bodies, t.inflight[id])
		delete(t.inflight, id)
	}
	t.mu.Unlock()

	for i, body := range bodies {
		if err := t.Publish(ctx, body); err != nil {
			for _, rest := range bodies[i:] {
				t.track(rest)
			}
			return i, err
		}
	}
	return len(bodies), nil
}

// Len reports the number of queued messages.
func (t *MemoryTransport) Len() int { return len(t.ch) }

// InFlight reports the number of received but unacknowledged messages.
func (t *MemoryTransport) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

func (t *MemoryTransport) Close() error { return nil }
