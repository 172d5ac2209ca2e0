// Package notify fans committed workflow events out to listeners. Delivery is
// best effort and happens after the store transaction commits.
package notify

import (
	"context"
	"sync"

	"orderline/internal/domain"
)

// Publisher is implemented by every notification sink.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Publish(_ context.Context, evt domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
