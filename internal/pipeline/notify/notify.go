// Package notify implements the tenant-scoped event publisher (§4.13): a
// per-process in-memory fan-out, grounded on the teacher's SSE service
// (internal/notification/sse) — same tenant-keyed client map guarded by a
// mutex, same buffered-channel-plus-non-blocking-send shape — retargeted
// from per-user SSE connections to per-tenant WebSocket broadcast.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Message is the JSON-serializable payload a subscriber receives.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type subscriber struct {
	id string
	ch chan Message
}

// Publisher fans out Messages to subscribers grouped by tenant. The zero
// value is not usable; construct with New.
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
}

func New() *Publisher {
	return &Publisher{subscribers: make(map[string][]*subscriber)}
}

// Subscribe registers a new subscriber for tenantID and returns a receive
// channel plus an unsubscribe func the caller MUST invoke when done (e.g.
// on WebSocket disconnect).
func (p *Publisher) Subscribe(tenantID string) (<-chan Message, func()) {
	sub := &subscriber{id: uuid.New().String(), ch: make(chan Message, 32)}

	p.mu.Lock()
	p.subscribers[tenantID] = append(p.subscribers[tenantID], sub)
	p.mu.Unlock()

	unsubscribe := func() { p.remove(tenantID, sub) }
	return sub.ch, unsubscribe
}

func (p *Publisher) remove(tenantID string, sub *subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[tenantID]
	for i, s := range subs {
		if s == sub {
			p.subscribers[tenantID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(p.subscribers[tenantID]) == 0 {
		delete(p.subscribers, tenantID)
	}
	close(sub.ch)
}

// Publish broadcasts event/data to every subscriber of tenantID. It never
// blocks: a subscriber whose buffer is full has its message dropped, not
// the caller stalled. A subscriber whose transport later fails (e.g. a
// WebSocket write error) is removed by its owning handler calling the
// unsubscribe func Subscribe returned — Publish itself only drops messages,
// it does not evict subscribers, since a full buffer does not imply a dead
// connection.
func (p *Publisher) Publish(tenantID, event string, data any) {
	p.mu.RLock()
	subs := make([]*subscriber, len(p.subscribers[tenantID]))
	copy(subs, p.subscribers[tenantID])
	p.mu.RUnlock()

	msg := Message{Event: event, Data: data}
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
}
