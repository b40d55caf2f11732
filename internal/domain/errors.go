// Package domain provides shared domain-level sentinel errors for the
// orchestration engine. Per-call provider errors never reach this level;
// they are absorbed inside the dispatcher. Everything here is session-fatal
// or caller-visible.
package domain

import "errors"

// ErrNoEligibleProvider indicates no available model covers the skill the
// query requires. Selection fails before any dispatch is attempted.
var ErrNoEligibleProvider = errors.New("no eligible provider for task")

// ErrAllProvidersFailed indicates every provider call in a round reached a
// terminal failure. No consensus result exists for the session.
var ErrAllProvidersFailed = errors.New("all provider calls failed")

// ErrBudgetExceeded indicates the query deadline or cost ceiling was hit
// before the session could complete.
var ErrBudgetExceeded = errors.New("query budget exceeded")

// ErrVerificationFailed indicates the answer was rejected with a blocking
// issue, or the iteration budget ran out with blocking issues outstanding.
// It is surfaced as a hard failure, never downgraded to a success.
var ErrVerificationFailed = errors.New("verification failed")

// ErrValidation indicates a malformed caller request.
var ErrValidation = errors.New("validation failed")
