package events

import (
	"context"
	"errors"
	"testing"

	"github.com/flaboy/aira-checkout/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestEmit_FansOutAndSurvivesErrors(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	var got []string
	Subscribe(HandlerFunc(func(ctx context.Context, e *types.Event) error {
		got = append(got, "first:"+string(e.Type))
		return errors.New("boom")
	}))
	Subscribe(HandlerFunc(func(ctx context.Context, e *types.Event) error {
		got = append(got, "second:"+string(e.Type))
		return nil
	}))

	ev := &types.Event{Type: types.EventOrderCompleted}
	Emit(context.Background(), ev)

	assert.Equal(t, []string{"first:order.completed", "second:order.completed"}, got)
	assert.False(t, ev.OccurredAt.IsZero())
}

func TestEmit_NoHandlers(t *testing.T) {
	Reset()
	assert.NotPanics(t, func() {
		Emit(context.Background(), &types.Event{Type: types.EventWebhookTest})
	})
}
