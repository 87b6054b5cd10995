package stream

import (
	"sync"

	"chaincalc/internal/engine"
)

// Hub fans engine snapshots out to subscribed clients. Publish never blocks:
// a client that cannot keep up has its stale snapshot replaced by the newest
// one, which is all a display needs.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan engine.Snapshot
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan engine.Snapshot)}
}

// Subscribe registers a client and returns its snapshot channel.
func (h *Hub) Subscribe(clientID string) <-chan engine.Snapshot {
	ch := make(chan engine.Snapshot, 1)
	h.mu.Lock()
	h.clients[clientID] = ch
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(clientID string) {
	h.mu.Lock()
	if ch, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers snap to every subscriber, keeping only the latest
// snapshot per client.
func (h *Hub) Publish(snap engine.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot, queue the fresh one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
