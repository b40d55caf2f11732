package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/internal/port/messagequeue"
	"github.com/quorumlabs/quorum/internal/port/retrieval"
)

const searchTimeout = 30 * time.Second

// Retriever implements the retrieval port by publishing search requests to
// the retrieval worker and waiting for the correlated reply.
type Retriever struct {
	queue messagequeue.Queue

	mu      sync.Mutex
	waiters map[string]chan *messagequeue.SearchResult
}

// NewRetriever creates a Retriever over the given queue.
func NewRetriever(queue messagequeue.Queue) *Retriever {
	return &Retriever{
		queue:   queue,
		waiters: make(map[string]chan *messagequeue.SearchResult),
	}
}

// Retrieve publishes a search request and waits synchronously for the
// worker's result.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Passage, error) {
	requestID := uuid.NewString()

	ch := make(chan *messagequeue.SearchResult, 1)
	r.mu.Lock()
	r.waiters[requestID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiters, requestID)
		r.mu.Unlock()
	}()

	payload := messagequeue.SearchRequest{
		RequestID: requestID,
		Query:     query,
		TopK:      topK,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	if err := r.queue.Publish(ctx, messagequeue.SubjectRetrievalSearchRequest, data); err != nil {
		return nil, fmt.Errorf("publish search request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	select {
	case result := <-ch:
		if result.Error != "" {
			return nil, fmt.Errorf("retrieval worker: %s", result.Error)
		}
		passages := make([]retrieval.Passage, len(result.Passages))
		for i, p := range result.Passages {
			passages[i] = retrieval.Passage{Source: p.Source, Text: p.Text, Score: p.Score}
		}
		return passages, nil
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("retrieval timeout: %w", timeoutCtx.Err())
	}
}

// StartSubscriber subscribes to search results and routes them to waiting
// callers. Returns the subscription cancel func.
func (r *Retriever) StartSubscriber(ctx context.Context) (func(), error) {
	cancel, err := r.queue.Subscribe(ctx, messagequeue.SubjectRetrievalSearchResult, func(_ context.Context, _ string, data []byte) error {
		var result messagequeue.SearchResult
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("unmarshal search result: %w", err)
		}
		r.deliver(&result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe search result: %w", err)
	}
	return cancel, nil
}

func (r *Retriever) deliver(result *messagequeue.SearchResult) {
	r.mu.Lock()
	ch, ok := r.waiters[result.RequestID]
	if ok {
		delete(r.waiters, result.RequestID)
	}
	r.mu.Unlock()

	if !ok {
		slog.Warn("no waiter for search result", "request_id", result.RequestID)
		return
	}

	ch <- result
}
