package weave

import (
	"sync"
	"time"
)

// EventType identifies the kind of engine event.
type EventType string

const (
	EventNodeStarted      EventType = "node_started"
	EventNodeCompleted    EventType = "node_completed"
	EventNodeFailed       EventType = "node_failed"
	EventNodeSkipped      EventType = "node_skipped"
	EventNodeReset        EventType = "node_reset"
	EventCheckpointPaused EventType = "checkpoint_paused"
	EventGraphReplaced    EventType = "graph_replaced"
	EventRunCompleted     EventType = "run_completed"
	EventRunAborted       EventType = "run_aborted"
	EventRunDeadlocked    EventType = "run_deadlocked"
)

// Event is one engine state transition, published to subscribers after the
// transition has been applied.
type Event struct {
	Type      EventType
	RunID     string
	NodeID    int
	Step      string
	Error     string
	Timestamp time.Time
}

// eventBus fans engine events out to subscribers. Delivery is synchronous
// on the scheduler goroutine; subscribers must not block.
type eventBus struct {
	mu          sync.RWMutex
	subscribers []func(Event)
}

func (b *eventBus) subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

func (b *eventBus) publish(ev Event) {
	ev.Timestamp = time.Now()
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
