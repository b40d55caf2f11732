// Package candidate defines the output of a single successful provider call.
package candidate

import "time"

// Role tags the part a candidate played in the strategy that produced it.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleCritic   Role = "critic"
	RolePanelist Role = "panelist"
	RoleVerifier Role = "verifier"
)

// Answer is one model's raw output for a round. Immutable once created.
type Answer struct {
	Model            string
	Role             Role
	Aspect           string // sub-aspect covered, set for expert-panel calls
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	Confidence       float64 // provider-reported or derived; 0 means unreported
	Arrival          int     // completion order within the round, 0-based
}

// Tokens returns the total token count of the call that produced the answer.
func (a *Answer) Tokens() int {
	return a.PromptTokens + a.CompletionTokens
}
