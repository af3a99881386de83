// Package events carries the fire-and-forget domain events the grants emit.
// No core logic depends on listener behavior; a nil listener is valid.
package events

import "context"

// Type names a domain event.
type Type string

const (
	ClientAuthenticationFailed Type = "client.authentication.failed"
	UserAuthenticationFailed   Type = "user.authentication.failed"
	RefreshTokenClientMismatch Type = "refresh_token.client.mismatch"
	AccessTokenIssued          Type = "access_token.issued"
	RefreshTokenIssued         Type = "refresh_token.issued"
)

// Event is a single domain event. Fields are best-effort; ClientID may be
// empty when authentication failed before the client was resolved.
type Event struct {
	Type      Type
	GrantType string
	ClientID  string
	UserID    string
}

// Listener receives events. Implementations must not block the calling grant;
// anything slow belongs behind a buffered channel or broker.
type Listener interface {
	Notify(ctx context.Context, event Event)
}

// Emitter wraps an optional Listener so call sites never nil-check.
type Emitter struct {
	listener Listener
}

// NewEmitter returns an Emitter for the listener; nil is permitted.
func NewEmitter(listener Listener) *Emitter {
	return &Emitter{listener: listener}
}

// Emit delivers the event when a listener is configured.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.listener == nil {
		return
	}
	e.listener.Notify(ctx, event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, event Event)

func (f ListenerFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }
