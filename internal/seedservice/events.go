package seedservice

import (
	"fmt"
	"sync"

	"github.com/roach88/nutools/internal/seed"
)

// EventKind names a framework lifecycle callback.
type EventKind int

const (
	PostServiceConstruction EventKind = iota + 1
	PreModuleConstruction
	PostModuleConstruction
	PreModuleBeginRun
	PostModuleBeginRun
	PreProcessEvent
	PreModule
	PostModule
	PostProcessEvent
	PreModuleEndJob
	PostModuleEndJob
	PostEndJob
)

var eventKindNames = map[EventKind]string{
	PostServiceConstruction: "postServiceConstruction",
	PreModuleConstruction:   "preModuleConstruction",
	PostModuleConstruction:  "postModuleConstruction",
	PreModuleBeginRun:       "preModuleBeginRun",
	PostModuleBeginRun:      "postModuleBeginRun",
	PreProcessEvent:         "preProcessEvent",
	PreModule:               "preModule",
	PostModule:              "postModule",
	PostProcessEvent:        "postProcessEvent",
	PreModuleEndJob:         "preModuleEndJob",
	PostModuleEndJob:        "postModuleEndJob",
	PostEndJob:              "postEndJob",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("eventKind(%d)", int(k))
}

// ParseEventKind maps a callback name back to its kind.
func ParseEventKind(name string) (EventKind, error) {
	for k, n := range eventKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle event %q", name)
}

// LifecycleEvent is one callback delivered by the host framework.
// Module is set for module-scoped callbacks, Event for PreProcessEvent.
type LifecycleEvent struct {
	Kind   EventKind
	Module string
	Event  seed.EventID
}

func (e LifecycleEvent) String() string {
	switch {
	case e.Kind == PreProcessEvent:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Event)
	case e.Module != "":
		return fmt.Sprintf("%s(%s)", e.Kind, e.Module)
	default:
		return e.Kind.String()
	}
}

// mailbox is a FIFO of lifecycle messages awaiting delivery.
//
// The host may post from a different goroutine than the one that flushes, so
// access is serialised; handling itself always happens on the flushing goroutine.
type mailbox struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func newMailbox() *mailbox {
	return &mailbox{events: make([]LifecycleEvent, 0, 16)}
}

func (q *mailbox) Enqueue(e LifecycleEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

// Peek returns the front message without removing it.
func (q *mailbox) Peek() (LifecycleEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return LifecycleEvent{}, false
	}
	return q.events[0], true
}

// Drop removes the front message.
func (q *mailbox) Drop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return
	}
	q.events[0] = LifecycleEvent{}
	q.events = q.events[1:]
}

func (q *mailbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
