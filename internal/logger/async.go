package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes buffered log records on shutdown.
type Closer interface {
	Close()
}

// nopCloser is the Closer for synchronous mode, where nothing buffers.
type nopCloser struct{}

func (nopCloser) Close() {}

// defaultQueueSize bounds the record queue when logging.queue_size is unset.
const defaultQueueSize = 4096

// queued pairs a record with the handler it was enqueued through, so
// attributes added via WithAttrs/WithGroup survive the queue.
type queued struct {
	handler slog.Handler
	rec     slog.Record
}

// asyncCore is the state shared by every handler derived from one
// NewAsyncHandler call: derived handlers feed the same queue and drop
// counter, and a single Close drains them all.
type asyncCore struct {
	queue   chan queued
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler takes log I/O off the dispatch path. A concurrent round
// emits a burst of per-call records; the handler enqueues them for worker
// goroutines and drops on overflow rather than letting a provider call
// block on a slow sink.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner with a bounded queue and worker goroutines.
// queueSize <= 0 falls back to the default; workers below 1 gets one.
func NewAsyncHandler(inner slog.Handler, queueSize, workers int) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers < 1 {
		workers = 1
	}

	h := &AsyncHandler{
		inner: inner,
		core:  &asyncCore{queue: make(chan queued, queueSize)},
	}
	for range workers {
		h.core.wg.Add(1)
		go h.pump()
	}
	return h
}

func (h *AsyncHandler) pump() {
	defer h.core.wg.Done()
	for q := range h.core.queue {
		_ = q.handler.Handle(context.Background(), q.rec)
	}
}

// Enabled delegates to the wrapped handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record, counting it as dropped when the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.queue <- queued{handler: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler feeding the same queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup derives a handler feeding the same queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of records lost to queue overflow.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close drains the queue, then writes an overflow report through the
// wrapped handler when records were lost, so drops leave a trace in the
// same sink as everything else.
func (h *AsyncHandler) Close() {
	close(h.core.queue)
	h.core.wg.Wait()

	if n := h.core.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async log queue overflowed", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}
