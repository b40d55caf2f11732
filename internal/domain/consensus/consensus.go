// Package consensus defines orchestration strategies and the combined
// per-round result the aggregator produces.
package consensus

import (
	"github.com/quorumlabs/quorum/internal/domain/candidate"
)

// Strategy is the closed set of ways one query maps onto provider calls.
// The aggregator switches exhaustively over this set; adding a value here
// without a handler is a compile-visible defect, not a silent fallthrough.
type Strategy string

const (
	SingleBest            Strategy = "single_best"
	ParallelRace          Strategy = "parallel_race"
	BestOfN               Strategy = "best_of_n"
	QualityWeightedFusion Strategy = "quality_weighted_fusion"
	ExpertPanel           Strategy = "expert_panel"
	ChallengeAndRefine    Strategy = "challenge_and_refine"
)

// Concurrent reports whether the strategy issues its calls in parallel.
// ChallengeAndRefine is the only strictly sequential strategy.
func (s Strategy) Concurrent() bool {
	return s != ChallengeAndRefine
}

// MinSuccesses is the number of successful calls below which the round is
// degraded rather than meaningful. Zero successes is always a hard failure
// regardless of this value.
func (s Strategy) MinSuccesses() int {
	if s == QualityWeightedFusion {
		return 2
	}
	return 1
}

// Assignment pairs a model with the role it plays in a round, and for
// expert panels the sub-aspect it is asked to cover.
type Assignment struct {
	Model  string
	Role   candidate.Role
	Aspect string
}

// Result is the engine's single combined output for one round. Exactly one
// Result exists per round, and it is never fabricated without at least one
// successful candidate.
type Result struct {
	Strategy   Strategy
	Text       string
	Confidence float64 // always in [0,1]
	Candidates []candidate.Answer
	Divergence float64 // pairwise candidate divergence in [0,1], where computed
	Degraded   bool    // successes fell below the strategy minimum
	Failed     int     // terminal call failures absorbed this round
}
