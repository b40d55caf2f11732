// Package session holds the mutable context for one query's full lifecycle.
package session

import (
	"time"

	"github.com/quorumlabs/quorum/internal/domain/consensus"
	"github.com/quorumlabs/quorum/internal/domain/query"
	"github.com/quorumlabs/quorum/internal/domain/verify"
)

// State is the refinement controller's position in the lifecycle.
// Terminal states are Done, Escalated and Failed.
type State string

const (
	StateInit       State = "init"
	StateDispatched State = "dispatched"
	StateAggregated State = "aggregated"
	StateVerified   State = "verified"
	StateRetry      State = "retry"
	StateDone       State = "done"
	StateEscalated  State = "escalated"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateDone || s == StateEscalated || s == StateFailed
}

// Round is one dispatch→aggregate→verify cycle, retained in order on the
// session for escalation ranking and the audit trail.
type Round struct {
	Strategy  consensus.Strategy
	Consensus consensus.Result
	Report    *verify.Report
	Elapsed   time.Duration
}

// OutstandingIssues counts the issues the round's verification flagged.
// Rounds without a report rank worst.
func (r *Round) OutstandingIssues() int {
	if r.Report == nil {
		return int(^uint(0) >> 1)
	}
	return len(r.Report.Issues)
}

// Session is the mutable context for one query. It is mutated only between
// rounds by the dispatcher and refinement controller, never concurrently;
// the single-writer discipline makes locking unnecessary.
type Session struct {
	ID            string
	Query         query.Query
	State         State
	Iteration     int // completed refinement iterations (round 0 is not one)
	MaxIterations int
	StartedAt     time.Time
	TokensIn      int
	TokensOut     int
	CostUSD       float64
	Rounds        []Round
}

// New creates a session in the INIT state.
func New(id string, q query.Query, maxIterations int, now time.Time) *Session {
	return &Session{
		ID:            id,
		Query:         q,
		State:         StateInit,
		MaxIterations: maxIterations,
		StartedAt:     now,
	}
}

// AddCost accumulates token usage and dollar cost from a finished call.
// Called only after a round fully completes.
func (s *Session) AddCost(tokensIn, tokensOut int, usd float64) {
	s.TokensIn += tokensIn
	s.TokensOut += tokensOut
	s.CostUSD += usd
}

// BudgetLeft reports whether another refinement iteration is allowed.
func (s *Session) BudgetLeft() bool {
	return s.Iteration < s.MaxIterations
}

// OverCostCeiling reports whether accumulated cost exceeds the query's
// declared ceiling, when one was declared.
func (s *Session) OverCostCeiling() bool {
	return s.Query.CostCeilingUSD > 0 && s.CostUSD >= s.Query.CostCeilingUSD
}

// BestRound returns the round with the fewest outstanding issues, preferring
// the earliest on ties. Nil when no round produced a consensus.
func (s *Session) BestRound() *Round {
	var best *Round
	for i := range s.Rounds {
		r := &s.Rounds[i]
		if best == nil || r.OutstandingIssues() < best.OutstandingIssues() {
			best = r
		}
	}
	return best
}

// LastRound returns the most recent round, or nil before the first one.
func (s *Session) LastRound() *Round {
	if len(s.Rounds) == 0 {
		return nil
	}
	return &s.Rounds[len(s.Rounds)-1]
}

// FinalAnswer is the caller-facing outcome of a successful (or escalated)
// session.
type FinalAnswer struct {
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence"`
	Strategy   consensus.Strategy `json:"strategy_used"`
	Iterations int                `json:"iterations"`
	Caveats    []string           `json:"caveats,omitempty"`
	SessionID  string             `json:"session_id"`
	CostUSD    float64            `json:"cost_usd"`
	Elapsed    time.Duration      `json:"elapsed_ns"`
}
