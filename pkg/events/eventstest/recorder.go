// Package eventstest records emitted events for assertions.
package eventstest

import (
	"context"
	"sync"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/events"
	"github.com/flaboy/aira-checkout/pkg/types"
)

type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *Recorder) HandleEvent(ctx context.Context, e *types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*types.Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(t types.EventType) []*types.Event {
	var out []*types.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Install resets the bus and subscribes a fresh recorder for the test.
func Install(t testing.TB) *Recorder {
	t.Helper()
	events.Reset()
	r := &Recorder{}
	events.Subscribe(r)
	t.Cleanup(events.Reset)
	return r
}
