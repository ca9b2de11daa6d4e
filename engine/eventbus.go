package engine

import (
	"log"
	"sync"
	"time"
)

type EventType int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

type subscription struct {
	id    int
	types map[EventType]bool
	fn    func(Event)
}

// EventBus delivers events synchronously to subscribers in subscription
// order. A panicking handler is logged and does not stop delivery.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID int
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers fn for every event type.
func (b *EventBus) Subscribe(fn func(Event)) int {
	return b.SubscribeTypes(fn)
}

// SubscribeTypes registers fn for the listed types; no types means all.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := subscription{id: b.nextID, fn: fn}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)
	return sub.id
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		if s.types != nil && !s.types[evt.Type] {
			continue
		}
		deliver(s.fn, evt)
	}
}

func deliver(fn func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: event handler panic on type %d: %v", evt.Type, r)
		}
	}()
	fn(evt)
}
