package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/quorumlabs/quorum/internal/resilience"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := resilience.NewBreaker(3, time.Minute)
	boom := errors.New("boom")

	for range 3 {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("err = %v, want the call error while closed", err)
		}
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after threshold", err)
	}
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := resilience.NewBreaker(2, time.Minute)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("err = %v, breaker opened despite interleaved success", err)
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	b := resilience.NewBreaker(1, 10*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	if b.State() != resilience.StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// The next call probes; its success closes the circuit.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call rejected: %v", err)
	}
	if b.State() != resilience.StateClosed {
		t.Fatalf("state = %s, want closed after successful probe", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := resilience.NewBreaker(1, 10*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	time.Sleep(20 * time.Millisecond)

	_ = b.Execute(func() error { return boom })
	if err := b.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen after failed probe", err)
	}
}
