// Package events carries routing and application events to subscribers
// such as the SSE hub.
package events

import (
	"sync"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	EventReplicaDegraded  EventType = "replica_degraded"
	EventReplicaDown      EventType = "replica_down"
	EventReplicaUp        EventType = "replica_up"
	EventAccountCreated   EventType = "account_created"
	EventAccountUpdated   EventType = "account_updated"
	EventAccountDeleted   EventType = "account_deleted"
	EventAccountsImported EventType = "accounts_imported"
	EventRoutingCorrupted EventType = "routing_corrupted"
)

// Event represents something that happened in the system
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Publisher accepts events. A nil Publisher is not allowed; use Discard.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Bus fans events out to subscriber channels
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (b *Bus) Subscribe(ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, ch)
}

// Publish sends an event to all subscribers without blocking. A zero
// Timestamp is filled in.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
