// Package broadcast defines the port for streaming engine progress events
// to connected clients.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Noop drops all events. Used in tests and when the hub is disabled.
type Noop struct{}

// BroadcastEvent implements Broadcaster.
func (Noop) BroadcastEvent(context.Context, string, any) {}
