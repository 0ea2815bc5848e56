// Package events carries in-process notifications about the execution cycle
// and keeps the append-only outcome log.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

type EventType string

const (
	// EventTaskDispatched is published right before a task's capability runs.
	EventTaskDispatched EventType = "task_dispatched"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	// EventStoreCorruption is published when the queue file was quarantined.
	EventStoreCorruption EventType = "store_corruption"
	EventPlanCompiled    EventType = "plan_compiled"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe hub. Each subscriber owns a
// buffered channel; when it is full the event is dropped for that subscriber
// and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	dropped     atomic.Uint64
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for eventType. fn runs on its own goroutine and a
// panic inside it is swallowed. The returned function unsubscribes.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			deliver(fn, event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

func deliver(fn Subscriber, event Event) {
	defer func() { _ = recover() }()
	fn(event)
}

// Publish fans event out to current subscribers without blocking.
// Publishing on a nil Bus is a no-op so components can run without one.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
