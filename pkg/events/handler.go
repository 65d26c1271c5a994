package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flaboy/aira-checkout/pkg/types"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, event *types.Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *types.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, event *types.Event) error {
	return f(ctx, event)
}

var (
	mu       sync.RWMutex
	handlers []EventHandler
)

// Subscribe registers a handler for every event.
func Subscribe(h EventHandler) {
	mu.Lock()
	defer mu.Unlock()
	handlers = append(handlers, h)
}

// Reset drops all handlers. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	handlers = nil
}

// Emit delivers event to every handler. A failing handler is logged and the
// rest still run; the emitter never sees handler errors.
func Emit(ctx context.Context, event *types.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	mu.RLock()
	hs := append([]EventHandler(nil), handlers...)
	mu.RUnlock()

	for i, h := range hs {
		if err := h.HandleEvent(ctx, event); err != nil {
			slog.Error("[Events] Handler failed", "handlerIndex", i, "event", event.Type, "error", err)
		}
	}
}
