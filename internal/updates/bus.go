package updates

import (
	"sync"

	"github.com/convoy-ops/convoy/internal/types"
)

// subscriberBufferSize is the channel buffer for each subscriber. A
// subscriber that falls behind loses older messages rather than blocking
// the pipeline; clients reread history from the store on reconnect.
const subscriberBufferSize = 64

// Bus is a fan-out pub/sub channel for persisted updates.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan types.UpdateListItem
	next uint64
}

// NewBus creates a ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan types.UpdateListItem)}
}

// Publish sends an item to all current subscribers. If a subscriber's
// buffer is full the item is dropped for that subscriber (non-blocking).
func (b *Bus) Publish(item types.UpdateListItem) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- item:
		default:
			// Subscriber buffer full -- drop rather than block.
		}
	}
}

// Subscribe returns a channel receiving all future items and a cancel
// function that unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan types.UpdateListItem, func()) {
	ch := make(chan types.UpdateListItem, subscriberBufferSize)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}
