package events

import (
	"context"
	"sync"
)

// Handler consumes an event synchronously.
type Handler func(Event)

// Hub delivers events in process, in publish order, to subscribers of a job.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]Handler)}
}

// Subscribe registers h for jobID; an empty jobID receives every job.
// The returned func removes the subscription.
func (h *Hub) Subscribe(jobID string, fn Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[int]Handler)
	}
	h.subs[jobID][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[jobID], id)
		if len(h.subs[jobID]) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Publish implements Publisher. Handlers run on the caller's goroutine.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[e.JobID])+len(h.subs[""]))
	for _, fn := range h.subs[e.JobID] {
		handlers = append(handlers, fn)
	}
	if e.JobID != "" {
		for _, fn := range h.subs[""] {
			handlers = append(handlers, fn)
		}
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
	return nil
}
