package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeflow/taskvibe/internal/model"
)

func collect(t *testing.T, bus *Bus, typ EventType) (func() []Event, func()) {
	t.Helper()
	var mu sync.Mutex
	var got []Event
	unsub := bus.Subscribe(typ, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	return func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), got...)
	}, unsub
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	created, _ := collect(t, bus, EventTaskCreated)
	all, _ := collect(t, bus, AllEvents)

	bus.Publish(EventTaskCreated, "task_1", map[string]any{"title": "x"})
	bus.Publish(EventStatusChanged, "task_1", nil)
	bus.Close()

	require.Len(t, created(), 1)
	ev := created()[0]
	assert.Equal(t, "task_1", ev.TaskID)
	assert.True(t, model.ValidateID(ev.ID))
	assert.Equal(t, "x", ev.Data["title"])
	assert.Len(t, all(), 2)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	got, unsub := collect(t, bus, EventTaskUpdated)
	unsub()
	unsub()
	bus.Publish(EventTaskUpdated, "task_1", nil)
	bus.Close()
	assert.Empty(t, got())
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(1)
	release := make(chan struct{})
	bus.Subscribe(EventExecutionStep, func(Event) { <-release })

	for i := 0; i < 5; i++ {
		bus.Publish(EventExecutionStep, "task_1", nil)
	}
	assert.Eventually(t, func() bool { return bus.Dropped() >= 3 }, time.Second, 10*time.Millisecond)
	close(release)
	bus.Close()
}

func TestBus_SubscriberPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(10)
	calls := 0
	var mu sync.Mutex
	bus.Subscribe(EventTaskCreated, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	bus.Publish(EventTaskCreated, "a", nil)
	bus.Publish(EventTaskCreated, "b", nil)
	bus.Close()
	assert.Equal(t, 2, calls)
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(1)
	bus.Close()
	unsub := bus.Subscribe(EventTaskCreated, func(Event) {})
	unsub()
	bus.Publish(EventTaskCreated, "a", nil)
}

func TestRecorder(t *testing.T) {
	bus := NewBus(10)
	all, _ := collect(t, bus, AllEvents)
	rec := NewRecorder(bus)

	ref := model.TodoRef{Section: 0, Path: []int{1}}
	rec.StepRecorded("task_1", model.ProgressionStep{Type: model.StepTodo, Completed: true, Ref: &ref})
	rec.StatusChanged("task_1", "todo", "in_progress")
	rec.ExecutionFinished(&model.ExecutionResult{TaskID: "task_1", State: model.StateCompleted}, 1500*time.Millisecond)
	bus.Close()

	evs := all()
	require.Len(t, evs, 3)
	assert.Equal(t, EventExecutionStep, evs[0].Type)
	assert.Equal(t, "0:1", evs[0].Data["ref"])
	assert.Equal(t, "in_progress", evs[1].Data["to"])
	assert.Equal(t, int64(1500), evs[2].Data["duration_ms"])
}
