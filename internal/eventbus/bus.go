package eventbus

import (
	"sync"
	"time"
)

// Event is one item on sendlater's operator stream: task lifecycle
// (message_sent, task_failed), delivery-channel state (ready, disconnected,
// qr_code) and forwarded log notices. Data holds the matching payload struct
// from events.go.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks; a subscriber
// whose buffer is full misses the event. Suitable for signals, not for
// anything that must not be lost (the journal covers that).
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

// fanout sends while holding the read lock and closes channels only under
// the write lock, so a Publish can never race a close.
type fanout struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	f.next++
	id := f.next
	f.subs[id] = ch
	f.mu.Unlock()

	unsubscribe := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(s)
		}
	}
	return ch, unsubscribe
}
