// Package bus publishes governance events: validation runs, patch artifacts
// written, team patches composed or applied. Events are JSON on a NATS
// subject tree; the gateway tap mirrors them to websocket clients.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subjects for governance events.
const (
	SubjectValidation = "polgov.validation"
	SubjectPatch      = "polgov.patch"
	SubjectTeamPatch  = "polgov.teampatch"
)

// Event is one governance event.
type Event struct {
	ID      string         `json:"id"`
	Subject string         `json:"subject"`
	Type    string         `json:"type"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(subject, eventType string, data map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Subject: subject,
		Type:    eventType,
		Time:    time.Now().UTC(),
		Data:    data,
	}
}

// Publisher sends events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(event Event) error
	Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(Event) error { return nil }
func (Noop) Close()              {}

// Memory is an in-process publisher that fans events out to subscribers.
// The gateway uses it when no NATS URL is configured; tests use it to
// observe event flow.
type Memory struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewMemory returns an in-process publisher.
func NewMemory() *Memory {
	return &Memory{subs: map[int]chan Event{}}
}

// Publish delivers the event to every subscriber. Slow subscribers drop
// events rather than block the producer.
func (m *Memory) Publish(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("bus closed")
	}
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of future events and a cancel function.
func (m *Memory) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan Event, 64)
	m.subs[id] = ch
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close drops all subscribers.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func encode(event Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func decode(data []byte, event *Event) error {
	if err := json.Unmarshal(data, event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}
