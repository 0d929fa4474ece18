// Package events keeps a bounded, sequenced history of UI-facing events.
package events

import (
	"sync"
	"time"

	"video-detector/internal/domain"
)

// Type classifies messages emitted by the application.
type Type string

const (
	TypeState    Type = "state"
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeResult   Type = "result"
	TypeError    Type = "error"
	TypeNotice   Type = "notice"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64                `json:"seq"`
	Timestamp  time.Time            `json:"timestamp"`
	Type       Type                 `json:"type"`
	SessionID  string               `json:"sessionId,omitempty"`
	Status     domain.SessionStatus `json:"status,omitempty"`
	Progress   float64              `json:"progress,omitempty"`
	Level      Level                `json:"level,omitempty"`
	Message    string               `json:"message,omitempty"`
	ResultRef  string               `json:"resultRef,omitempty"`
	CanProcess *bool                `json:"canProcess,omitempty"`
}

// Bus stores recent events, provides incremental reads and fans out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	nextSub     int
	subscribers map[int]func(Event)
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]func(Event)),
	}
}

// Publish appends one event, assigns sequence and timestamp, then notifies
// subscribers in sequence order.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, fn := range b.subscribers {
		fn(event)
	}
	return event
}

// Subscribe registers fn for every future event. Subscribers run under the bus
// lock and must not call back into the bus. The returned func unsubscribes.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest event.
func (b *Bus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
