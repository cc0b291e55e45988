// Package fanout implements C10 LiveFanout: per-user in-process delivery
// of freshly stored messages to whoever is currently subscribed (the
// verification-code waiter, any live UI long-poll). Grounded on the
// subscription-manager/Watch shape used for real-time inbox delivery
// elsewhere in the ecosystem, generalized from a per-inbox to a per-user
// keyspace and from push-style Watch to direct Subscribe/Unsubscribe.
package fanout

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stoik/mailhouse/internal/domain"
)

type subscriber struct {
	id     string
	ch     chan domain.Message
	active atomic.Bool
}

// Fanout delivers Publish calls to every live Subscribe channel for a user.
// Delivery is non-blocking: a subscriber that is not reading is skipped
// rather than stalling the publisher (spec §5, async broadcast decision).
type Fanout struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[string]*subscriber
	nextID atomic.Uint64
}

// New builds an empty Fanout.
func New() *Fanout {
	return &Fanout{subs: make(map[uuid.UUID]map[string]*subscriber)}
}

// Subscribe registers a buffered channel for userID and returns it along
// with an unsubscribe function. Callers must call unsubscribe exactly once
// when done listening.
func (f *Fanout) Subscribe(userID uuid.UUID, bufferSize int) (<-chan domain.Message, func()) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	id := strconv.FormatUint(f.nextID.Add(1), 10)
	sub := &subscriber{id: id, ch: make(chan domain.Message, bufferSize)}
	sub.active.Store(true)

	f.mu.Lock()
	if f.subs[userID] == nil {
		f.subs[userID] = make(map[string]*subscriber)
	}
	f.subs[userID][id] = sub
	f.mu.Unlock()

	return sub.ch, func() { f.unsubscribe(userID, id) }
}

func (f *Fanout) unsubscribe(userID uuid.UUID, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userSubs, ok := f.subs[userID]; ok {
		if sub, ok := userSubs[id]; ok {
			sub.active.Store(false)
			delete(userSubs, id)
			if len(userSubs) == 0 {
				delete(f.subs, userID)
			}
		}
	}
}

// Publish delivers msg to every live subscriber of userID. A subscriber
// whose buffer is full is dropped for this message, not blocked on.
func (f *Fanout) Publish(userID uuid.UUID, msg domain.Message) {
	f.mu.RLock()
	userSubs := f.subs[userID]
	if len(userSubs) == 0 {
		f.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(userSubs))
	for _, sub := range userSubs {
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// SubscriberCount reports how many live subscribers userID currently has,
// used by tests and diagnostics.
func (f *Fanout) SubscriberCount(userID uuid.UUID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[userID])
}
