// Package gateway defines the provider gateway port, the engine's only
// view of independently-hosted model providers. Provider idiosyncrasies
// live entirely behind this boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CompletionRequest is one uniform completion call to one model.
// Logprobs asks the provider for per-token logprobs; only set it for
// models declared to report them, since some providers reject the field.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Logprobs    bool
}

// Completion is the successful result of a completion call.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	Confidence       float64 // provider-reported; 0 when the provider gives none
}

// ErrorKind classifies a failed provider call for retry decisions.
type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindRateLimited   ErrorKind = "rate_limited"
	KindAuthFailed    ErrorKind = "auth_failed"
	KindContentPolicy ErrorKind = "content_policy"
	KindTransport     ErrorKind = "transport"
	KindBadRequest    ErrorKind = "bad_request"
)

// Error is a typed provider call failure.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Auth failures,
// malformed requests and content-policy rejections never recover on retry.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindTransport:
		return true
	default:
		return false
	}
}

// AsError extracts a typed provider error from err, or wraps err as a
// transport failure so callers always see a classified kind.
func AsError(err error, model string) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Kind: KindTransport, Model: model, Err: err}
}

// Gateway is the uniform async completion call per model.
type Gateway interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
