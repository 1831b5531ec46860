package notify

import (
	"context"
	"sync"

	"github.com/warp/tutoring-ledger/ledger"
)

// Recorder is an EventSink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

var _ ledger.EventSink = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, event ledger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in publish order.
func (r *Recorder) Kinds() []ledger.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ledger.EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind ledger.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
