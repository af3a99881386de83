package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitterDispatches(t *testing.T) {
	var captured []Event
	emitter := NewEmitter(ListenerFunc(func(ctx context.Context, event Event) {
		captured = append(captured, event)
	}))

	emitter.Emit(context.Background(), Event{
		Type:      AccessTokenIssued,
		GrantType: "client_credentials",
		ClientID:  "web-app",
	})

	assert.Len(t, captured, 1)
	assert.Equal(t, AccessTokenIssued, captured[0].Type)
	assert.Equal(t, "web-app", captured[0].ClientID)
}

func TestEmitterNilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEmitter(nil).Emit(context.Background(), Event{Type: AccessTokenIssued})
	})
	assert.NotPanics(t, func() {
		var emitter *Emitter
		emitter.Emit(context.Background(), Event{Type: AccessTokenIssued})
	})
}
