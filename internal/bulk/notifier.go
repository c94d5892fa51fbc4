package bulk

import "sync"

// Broadcaster fans completion events out to every subscriber. Delivery is
// best effort: a subscriber whose buffer is full misses the event rather than
// blocking the publishing batch.
type Broadcaster struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
