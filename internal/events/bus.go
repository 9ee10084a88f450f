// Package events carries task and execution events from the engines to the
// audit log and, optionally, a NATS subject.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vibeflow/taskvibe/internal/model"
)

type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskUpdated       EventType = "task_updated"
	EventTodosUpdated      EventType = "todos_updated"
	EventStatusChanged     EventType = "status_changed"
	EventExecutionStep     EventType = "execution_step"
	EventExecutionFinished EventType = "execution_finished"
)

// AllEvents subscribes to every event type.
const AllEvents EventType = "*"

type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type Subscriber func(Event)

// Bus delivers events asynchronously through a buffered channel per
// subscriber. Publish never blocks: when a subscriber's buffer is full the
// event is dropped for that subscriber and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	wg          sync.WaitGroup
	dropped     atomic.Int64
	closed      bool
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

// Subscribe registers fn for eventType, or for every type with AllEvents.
// The returned function unsubscribes.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range ch {
			deliver(fn, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[eventType]
			for i, c := range subs {
				if c == ch {
					b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

func deliver(fn Subscriber, ev Event) {
	defer func() {
		// A panicking subscriber must not take the bus down.
		_ = recover()
	}()
	fn(ev)
}

// Publish stamps and fans out an event.
func (b *Bus) Publish(eventType EventType, taskID string, data map[string]any) {
	id, err := model.GenerateID(model.IDTypeEvent)
	if err != nil {
		id = ""
	}
	ev := Event{ID: id, Type: eventType, TaskID: taskID, Timestamp: time.Now().UTC(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, key := range []EventType{eventType, AllEvents} {
		for _, ch := range b.subscribers[key] {
			select {
			case ch <- ev:
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// Dropped counts events discarded because a subscriber fell behind.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops every subscriber after it drains its buffer.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for t, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, t)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
