// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for the out-of-process retrieval worker. Search is a
// request/reply pair correlated by request ID.
const (
	SubjectRetrievalSearchRequest = "retrieval.search.request"
	SubjectRetrievalSearchResult  = "retrieval.search.result"
)

// SearchRequest asks the retrieval worker for passages.
type SearchRequest struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

// SearchResult carries ranked passages back from the worker.
type SearchResult struct {
	RequestID string          `json:"request_id"`
	Passages  []SearchPassage `json:"passages"`
	Error     string          `json:"error,omitempty"`
}

// SearchPassage is one passage on the wire.
type SearchPassage struct {
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}
