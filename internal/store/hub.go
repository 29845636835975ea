package store

import (
	"context"
	"sync"

	"classcal/internal/model"
)

// Hub fans snapshots out to subscribers. Each subscriber has a one-slot
// mailbox: a slow reader skips intermediate snapshots and always receives
// the most recent one. Publishing never blocks.
type Hub struct {
	mu     sync.Mutex
	latest model.Snapshot
	has    bool
	subs   map[int]chan model.Snapshot
	nextID int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan model.Snapshot)}
}

// Publish records s as the latest snapshot and delivers it to every
// subscriber. Snapshots older than the latest one are dropped.
func (h *Hub) Publish(s model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.has && s.Version <= h.latest.Version {
		return
	}
	h.latest = s
	h.has = true
	for _, ch := range h.subs {
		deliver(ch, s)
	}
}

// deliver replaces whatever is waiting in ch with s. Callers hold h.mu, so
// the hub is the only sender and the second send cannot block.
func deliver(ch chan model.Snapshot, s model.Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}

// Latest returns the last published snapshot.
func (h *Hub) Latest() (model.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.has
}

// Subscribe returns a channel receiving every future snapshot, starting with
// the latest one if any. The channel is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan model.Snapshot {
	ch := make(chan model.Snapshot, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.has {
		ch <- h.latest
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
