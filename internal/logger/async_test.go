package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// sinkHandler collects records for assertions.
type sinkHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration // optional per-record write delay
	attrs   []slog.Attr
}

func (h *sinkHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *sinkHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	h.attrs = append(h.attrs, attrs...)
	h.mu.Unlock()
	return h
}

func (h *sinkHandler) WithGroup(string) slog.Handler { return h }

func (h *sinkHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func (h *sinkHandler) last() slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records[len(h.records)-1]
}

func TestAsyncHandlerDeliversRecord(t *testing.T) {
	sink := &sinkHandler{}
	ah := NewAsyncHandler(sink, 100, 1)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if err := ah.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ah.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
	if ah.DroppedCount() != 0 {
		t.Fatalf("dropped = %d, want 0", ah.DroppedCount())
	}
}

func TestAsyncHandlerConcurrentWrites(t *testing.T) {
	const goroutines = 50
	const perGoroutine = 100
	total := goroutines * perGoroutine

	sink := &sinkHandler{}
	ah := NewAsyncHandler(sink, total, 4)

	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "burst", 0))
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := sink.count(); got != total {
		t.Fatalf("records = %d, want %d", got, total)
	}
}

func TestAsyncHandlerDropsOnOverflowAndReports(t *testing.T) {
	// A slow sink behind a one-slot queue forces drops.
	sink := &sinkHandler{delay: 10 * time.Millisecond}
	ah := NewAsyncHandler(sink, 1, 1)

	for range 50 {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0))
	}
	ah.Close()

	dropped := ah.DroppedCount()
	if dropped == 0 {
		t.Fatal("no records dropped despite overflow")
	}

	// Close writes the overflow report through the sink.
	report := sink.last()
	if report.Message != "async log queue overflowed" {
		t.Fatalf("last record = %q, want the overflow report", report.Message)
	}
	var reported int64
	report.Attrs(func(a slog.Attr) bool {
		if a.Key == "dropped" {
			reported = a.Value.Int64()
		}
		return true
	})
	if reported != dropped {
		t.Fatalf("report says %d dropped, counter says %d", reported, dropped)
	}
}

func TestAsyncHandlerCloseFlushesQueue(t *testing.T) {
	sink := &sinkHandler{}
	ah := NewAsyncHandler(sink, 1000, 2)

	const total = 200
	for range total {
		_ = ah.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "flush", 0))
	}
	ah.Close()

	if got := sink.count(); got != total {
		t.Fatalf("records after close = %d, want %d", got, total)
	}
}

func TestAsyncHandlerDerivedSharesQueue(t *testing.T) {
	sink := &sinkHandler{}
	ah := NewAsyncHandler(sink, 100, 1)

	derived := ah.WithAttrs([]slog.Attr{slog.String("session_id", "s1")})
	_ = derived.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "derived", 0))

	// Closing the root drains records enqueued through the derived handler.
	ah.Close()

	if got := sink.count(); got != 1 {
		t.Fatalf("records = %d, want 1 via the derived handler", got)
	}
	if len(sink.attrs) == 0 || sink.attrs[0].Key != "session_id" {
		t.Fatal("derived handler attributes did not reach the sink")
	}
}
