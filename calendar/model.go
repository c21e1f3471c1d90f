// Package calendar holds the in-memory calendar model: the set of
// events currently in the view, keyed by identity. The model is a
// mirror of what the documents say; it is written only by the sync
// engine and read by every serving surface.
package calendar

import (
	"sort"
	"sync"

	"github.com/lumenisola/obsidian-full-calendar/types"
)

// Model is the live event set, keyed by event ID. Each identity holds
// at most one event. Safe for concurrent use.
type Model struct {
	mu     sync.RWMutex
	events map[string]types.Event
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{events: make(map[string]types.Event)}
}

// Get returns the event stored under id.
func (m *Model) Get(id string) (types.Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	return ev, ok
}

// Remove drops the event stored under id and reports whether one was
// present. Removing an absent identity is a no-op.
func (m *Model) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	delete(m.events, id)
	return ok
}

// Upsert stores ev under its ID, removing any event already held there
// first. Reports whether an existing event was replaced.
func (m *Model) Upsert(ev types.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, replaced := m.events[ev.ID]
	delete(m.events, ev.ID)
	m.events[ev.ID] = ev
	return replaced
}

// Events returns a snapshot of all events, ordered by start time and
// then by ID.
func (m *Model) Events() []types.Event {
	m.mu.RLock()
	out := make([]types.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of events in the view.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Clear empties the model.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string]types.Event)
}
