package logger

import "context"

// contextKey is a private type to prevent collisions with other context keys.
type contextKey struct{}

// sessionIDKey is the context key for the orchestration session ID.
var sessionIDKey = contextKey{}

// WithSessionID returns a new context carrying the session ID, so log
// records emitted anywhere in a session's call tree can be correlated.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the session ID from the context.
// Returns an empty string if none is set.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}
